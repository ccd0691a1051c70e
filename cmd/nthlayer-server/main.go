// Command nthlayer-server runs the Reliability Intelligence Core: the
// dependency discovery orchestrator, ownership resolver, drift
// analyzer, dashboard generator, and deployment event correlator,
// behind a single HTTP listener.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsionnach/nthlayer/internal/api"
	"github.com/rsionnach/nthlayer/internal/config"
	"github.com/rsionnach/nthlayer/internal/dashboard"
	"github.com/rsionnach/nthlayer/internal/deployevents"
	"github.com/rsionnach/nthlayer/internal/deployevents/providers/githubactions"
	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/internal/drift"
	"github.com/rsionnach/nthlayer/internal/graph"
	"github.com/rsionnach/nthlayer/internal/identity"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/metricsdiscovery"
	"github.com/rsionnach/nthlayer/internal/orchestrator"
	"github.com/rsionnach/nthlayer/internal/ownership"
	"github.com/rsionnach/nthlayer/internal/secrets"
	"github.com/rsionnach/nthlayer/internal/specstore"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the NthLayer configuration file")
	flag.Parse()

	logging.InitGlobalLogger("info", os.Stdout)
	logger := logging.GetLogger()

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logging.Err(err))
		return
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	logging.InitGlobalLogger(cfg.LogLevel, os.Stdout)
	logger = logging.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "nthlayer-server", ServiceVersion: "dev", Environment: os.Getenv("NTHLAYER_ENV"),
	}); err != nil {
		logger.Fatal("failed to init telemetry", logging.Err(err))
		return
	}

	var secretsProvider *secrets.Provider
	if cfg.Secrets.VaultAddr != "" {
		secretsProvider, err = secrets.NewProvider(secrets.Config{
			Address: cfg.Secrets.VaultAddr, MountPath: cfg.Secrets.MountPath, CacheTTL: cfg.Secrets.CacheTTL,
		})
		if err != nil {
			logger.Warning("vault unavailable, continuing with config-file secrets only", logging.Err(err))
		}
	}
	_ = secretsProvider // not read by the provider wiring below, which takes credentials from the config file

	specs, err := specstore.New(cfg.SpecsDir)
	if err != nil {
		logger.Fatal("failed to load service specs", logging.Err(err))
		return
	}
	logger.Info("loaded service specs", logging.Int("count", len(specs.Names())))

	clients := buildCloudClients(ctx)

	identityResolver := identity.New(cfg.Identity.FuzzyThreshold, cfg.CacheTTL)
	identityResolver.SetCorrelationConfig(cfg.Identity.StrongAttrs, cfg.Identity.WeakAttrs, cfg.Identity.WeakMatchCount)
	identityResolver.LoadExplicitMappings(cfg.Identity.ExplicitMappings)
	metricsClient := metricsdiscovery.New(metricsdiscovery.Config{BaseURL: cfg.Drift.MetricsBackendURL})

	discoveryProviders := buildDiscoveryProviders(cfg.Discovery, clients, metricsClient)
	discoveryOrchestrator := discovery.New(discoveryProviders, identityResolver, cfg.CacheTTL)

	depGraph := buildInitialGraph(ctx, discoveryOrchestrator, specs)

	ownershipProviders := buildOwnershipProviders(cfg.Ownership, clients, "./.ownership-clones")
	ownershipResolver := ownership.New(ownershipProviders, cfg.Ownership.ConfidenceFloor, cfg.Ownership.FallbackOwner)

	driftAnalyzer := drift.New(metricsClient)
	dashboardResolver := dashboard.New(metricsClient)
	dashboardGenerator := dashboard.NewGenerator(dashboardResolver)

	generators := orchestrator.Generators(dashboardGenerator, depGraph)
	sink := orchestrator.NewLocalSink(cfg.Orchestrator.OutputDir)
	orch := orchestrator.New(generators, sink)

	store, err := deployevents.Open(cfg.DeployEvents.SQLitePath)
	if err != nil {
		logger.Fatal("failed to open deployment event store", logging.Err(err))
		return
	}
	defer store.Close()

	var lock deployevents.Locker = deployevents.NoopLock{}
	if len(cfg.DeployEvents.EtcdEndpoints) > 0 {
		distLock, err := deployevents.NewDistributedLock(cfg.DeployEvents.EtcdEndpoints)
		if err != nil {
			logger.Warning("etcd unavailable, falling back to single-replica correlation", logging.Err(err))
		} else {
			defer distLock.Close()
			lock = distLock
		}
	}

	correlator := deployevents.NewCorrelator(store, driftAnalyzer, specs, lock, cfg.DeployEvents.CorrelationWindow)
	go correlator.Run(ctx)

	if cfg.Orchestrator.RequireApply {
		applyAll(ctx, orch, specs)
	}

	webhookHandlers := newWebhookHandlers(store, cfg)
	queryHandlers := api.NewQueryHandlers(depGraph, ownershipResolver, driftAnalyzer, dashboardGenerator, specs.Get)

	server := api.NewServer(cfg.Server, webhookHandlers.RegisterRoutes, queryHandlers.RegisterRoutes)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Error("api server stopped", logging.Err(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = telemetry.Get().Shutdown(shutdownCtx)
	_ = server.Shutdown()
}

// newWebhookHandlers registers the githubactions adapter when the
// deployment config carries a webhook secret. The tfecloud adapter is
// not registered here.
func newWebhookHandlers(store *deployevents.Store, cfg *config.Config) *api.WebhookHandlers {
	handlers := api.NewWebhookHandlersWithLimit(store, cfg.Server.WebhookMaxConcurrent)
	if cfg.DeployEvents.WebhookSecret != "" {
		handlers.Register(githubactions.ProviderName, "X-Hub-Signature-256",
			githubactions.New([]byte(cfg.DeployEvents.WebhookSecret), nil))
	}
	return handlers
}

// buildInitialGraph does a best-effort full-graph build at startup so
// the blast-radius query endpoint has data before the first scheduled
// refresh completes; a failure here is logged, not fatal.
func buildInitialGraph(ctx context.Context, orch *discovery.Orchestrator, specs *specstore.Store) *graph.Graph {
	buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dg, err := orch.BuildFullGraph(buildCtx, specs.Names())
	if err != nil {
		logging.GetLogger().Warning("initial dependency graph build failed, starting with an empty graph", logging.Err(err))
		dg = &nthlayer.DependencyGraph{Identities: map[string]*nthlayer.ServiceIdentity{}}
	}
	return graph.Build(dg)
}

func applyAll(ctx context.Context, orch *orchestrator.Orchestrator, specs *specstore.Store) {
	logger := logging.GetLogger()
	for _, name := range specs.Names() {
		spec, ok := specs.Get(name)
		if !ok {
			continue
		}
		if _, err := orch.Apply(ctx, spec); err != nil {
			logger.Error("apply failed at startup", logging.String("service", name), logging.Err(err))
		}
	}
}
