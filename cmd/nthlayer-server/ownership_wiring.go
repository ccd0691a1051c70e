package main

import (
	"fmt"

	"github.com/rsionnach/nthlayer/internal/config"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/ownership"
	"github.com/rsionnach/nthlayer/internal/ownership/providers/codeowners"
	"github.com/rsionnach/nthlayer/internal/ownership/providers/costcenter"
	"github.com/rsionnach/nthlayer/internal/ownership/providers/gitactivity"
	"github.com/rsionnach/nthlayer/internal/ownership/providers/pagerduty"
	"github.com/rsionnach/nthlayer/internal/ownership/providers/slackconvention"
)

func githubRawURL(repo string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/HEAD/.github/CODEOWNERS", repo)
}

func localCloneDir(workDir string) func(repo string) string {
	return func(repo string) string {
		return workDir + "/" + sanitizeRepo(repo)
	}
}

func sanitizeRepo(repo string) string {
	out := make([]rune, 0, len(repo))
	for _, r := range repo {
		if r == '/' || r == ':' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}

// buildOwnershipProviders wires the six ownership signal sources
// whose config entries are enabled, skipping any needing a cloud
// client that isn't available.
func buildOwnershipProviders(cfg config.OwnershipConfig, clients *cloudClients, cloneDir string) []ownership.Provider {
	logger := logging.GetLogger()
	var providers []ownership.Provider

	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}

		switch p.Name {
		case "codeowners":
			providers = append(providers, codeowners.New(githubRawURL))
		case "oncall_primary":
			providers = append(providers, pagerduty.New(pagerduty.Config{
				BaseURL: optString(p.Options, "base_url"), Token: optString(p.Options, "token"), Timeout: p.Timeout,
			}))
		case "oncall_secondary":
			providers = append(providers, pagerduty.NewSecondary(pagerduty.Config{
				BaseURL: optString(p.Options, "base_url"), Token: optString(p.Options, "token"), Timeout: p.Timeout,
			}))
		case "chat_convention":
			providers = append(providers, slackconvention.New(slackconvention.Config{
				Token: optString(p.Options, "token"), Prefix: optString(p.Options, "prefix"),
			}))
		case "cost_center":
			ec2Client, err := clients.requireEC2()
			if err != nil {
				logger.Warning("cost_center provider enabled but no AWS credentials available, skipping")
				continue
			}
			providers = append(providers, costcenter.New(ec2Client))
		case "git_activity":
			providers = append(providers, gitactivity.New(localCloneDir(cloneDir)))
		default:
			logger.Warning("unknown ownership provider in config", logging.String("name", p.Name))
		}
	}

	return providers
}
