package main

import (
	"github.com/rsionnach/nthlayer/internal/config"
	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/awstags"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/azuretags"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/consul"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/dotags"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/gcptags"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/k8snetpol"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/portal"
	"github.com/rsionnach/nthlayer/internal/discovery/providers/promtraffic"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/metricsdiscovery"
)

func optString(opts map[string]interface{}, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// buildDiscoveryProviders turns the configured provider entries into
// concrete discovery.Provider instances, skipping any whose required
// client isn't available and logging why.
func buildDiscoveryProviders(cfg config.DiscoveryConfig, clients *cloudClients, metrics *metricsdiscovery.Client) []discovery.Provider {
	logger := logging.GetLogger()
	var providers []discovery.Provider

	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}

		switch p.Name {
		case "consul":
			providers = append(providers, consul.New(consul.Config{
				BaseURL: optString(p.Options, "base_url"), Token: optString(p.Options, "token"),
				ClientID: optString(p.Options, "client_id"), ClientSecret: optString(p.Options, "client_secret"),
				TokenURL: optString(p.Options, "token_url"), Timeout: p.Timeout,
			}))
		case "portal":
			providers = append(providers, portal.New(portal.Config{
				BaseURL: optString(p.Options, "base_url"), Token: optString(p.Options, "token"), Timeout: p.Timeout,
			}))
		case "promtraffic":
			providers = append(providers, promtraffic.New(metrics))
		case "k8snetpol":
			if clients.k8s == nil {
				logger.Warning("k8snetpol provider enabled but no kubeconfig available, skipping")
				continue
			}
			providers = append(providers, k8snetpol.New(clients.k8s, clients.k8sDyn, optString(p.Options, "namespace")))
		case "awstags":
			if clients.ec2 == nil {
				logger.Warning("awstags provider enabled but no AWS credentials available, skipping")
				continue
			}
			providers = append(providers, awstags.New(clients.ec2))
		case "azuretags":
			if clients.azure == nil {
				logger.Warning("azuretags provider enabled but no Azure credentials available, skipping")
				continue
			}
			providers = append(providers, azuretags.New(clients.azure, optString(p.Options, "subscription_id")))
		case "gcptags":
			if clients.gcp == nil {
				logger.Warning("gcptags provider enabled but no GCP credentials available, skipping")
				continue
			}
			providers = append(providers, gcptags.New(clients.gcp, optString(p.Options, "project"), optString(p.Options, "zone")))
		case "dotags":
			if clients.do == nil {
				logger.Warning("dotags provider enabled but DIGITALOCEAN_TOKEN unset, skipping")
				continue
			}
			providers = append(providers, dotags.New(clients.do))
		default:
			logger.Warning("unknown discovery provider in config", logging.String("name", p.Name))
		}
	}

	return providers
}
