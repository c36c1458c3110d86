package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secops-orchestrator/api/rest/middleware"
	"secops-orchestrator/api/rest/routes"
	"secops-orchestrator/config"
	"secops-orchestrator/core/agents"
	"secops-orchestrator/core/events"
	"secops-orchestrator/core/executor"
	"secops-orchestrator/core/models"
	"secops-orchestrator/core/monitoring"
	"secops-orchestrator/core/registry"
	"secops-orchestrator/core/repository"
	"secops-orchestrator/core/scheduler"
	"secops-orchestrator/core/textgen"
	"secops-orchestrator/logging"
	"secops-orchestrator/providers/aws"
	"secops-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promRegistry)

	// Archive is optional; without it records live only in memory.
	var (
		archive      *repository.JobArchive
		artifactRepo *repository.ArtifactRepository
	)
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer db.Close()
		archive = repository.NewJobArchive(db)
		artifactRepo = repository.NewArtifactRepository(db)
		logger.Info("archive connected", "driver", db.Driver())
	}

	evidence, err := storage.NewEvidenceStore(cfg.Evidence.Dir, artifactRepo)
	if err != nil {
		return err
	}

	generator := textgen.New(cfg.TextGen.APIKey,
		textgen.WithModel(cfg.TextGen.Model),
		textgen.WithBaseURL(cfg.TextGen.BaseURL),
	)
	if _, disabled := generator.(textgen.Disabled); disabled {
		logger.Warn("text generator not configured; report generation will fail until API_KEY is set")
	}

	publisher := events.NewPublisher(logger,
		events.WithBufferSize(cfg.Orchestrator.AlertBuffer),
		events.WithHistorySize(cfg.Orchestrator.AlertHistory),
		events.WithDropObserver(func(string) { metrics.AlertDropped() }),
	)

	store := repository.NewJobStore(cfg.Orchestrator.MaxRecords)

	runnerOpts := []executor.RunnerOption{
		executor.WithGracePeriod(cfg.Orchestrator.GracePeriod),
		executor.WithMetrics(metrics),
		executor.WithLogger(logger),
	}
	if archive != nil {
		runnerOpts = append(runnerOpts, executor.WithArchive(archive))
	}
	runner := executor.NewRunner(store, publisher, runnerOpts...)

	agentRegistry, err := buildRegistry(ctx, cfg, evidence, generator, logger)
	if err != nil {
		return err
	}

	dispatcher := scheduler.NewDispatcher(agentRegistry, store, runner,
		scheduler.WithMetrics(metrics),
		scheduler.WithLogger(logger),
	)

	monitor := monitoring.NewJobMonitor(runner, store, metrics, cfg.Orchestrator.MonitorInterval, logger)

	deps := routes.Dependencies{
		Dispatcher:     dispatcher,
		Publisher:      publisher,
		Verifier:       middleware.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		Artifacts:      evidence,
		Generator:      generator,
		Gatherer:       promRegistry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}
	if archive != nil {
		deps.Archive = archive
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, deps)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Jobs first so their terminal alerts reach open streams, then close
		// the streams so the HTTP server can drain.
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Error("jobs did not finish before shutdown deadline", "error", err)
		}
		publisher.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

func buildRegistry(ctx context.Context, cfg *config.Config, evidence *storage.EvidenceStore, generator textgen.Generator, logger *slog.Logger) (*registry.Registry, error) {
	inventories := []agents.AssetInventory{agents.NewStaticInventory(cfg.StaticAssets())}

	var awsClient *aws.Client
	if cfg.Recon.AWSEnabled || cfg.Containment.Backend == config.ContainmentAWS {
		client, err := aws.NewClient(ctx, cfg.Recon.AWSRegions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise aws client: %w", err)
		}
		awsClient = client
		logger.Info("aws provider enabled", "regions", client.Regions())
	}
	if cfg.Recon.AWSEnabled {
		inventories = append(inventories, awsClient)
	}

	containment, err := buildContainment(cfg, awsClient)
	if err != nil {
		return nil, err
	}

	handlers := map[models.AgentKind]registry.Handler{
		models.AgentRecon:            agents.NewReconAgent(logger, inventories...),
		models.AgentThreatDetect:     agents.NewThreatDetectionAgent(cfg.Threat.Threshold),
		models.AgentIncidentResponse: agents.NewIncidentResponseAgent(containment, logger),
		models.AgentForensics:        agents.NewForensicsAgent(evidence, generator, logger),
	}

	reg := registry.New()
	policies := cfg.Policies()
	for _, kind := range models.AgentKinds {
		if err := reg.Register(kind, handlers[kind], policies[kind]); err != nil {
			return nil, err
		}
		logger.Info("agent registered", "agent", kind,
			"max_concurrent", policies[kind].MaxConcurrent,
			"timeout", policies[kind].Timeout)
	}
	return reg, nil
}

func buildContainment(cfg *config.Config, awsClient *aws.Client) (agents.Containment, error) {
	switch cfg.Containment.Backend {
	case config.ContainmentSSH:
		return agents.NewSSHContainment(agents.SSHConfig{
			Address:        cfg.Containment.SSH.Address,
			User:           cfg.Containment.SSH.User,
			PrivateKeyPath: cfg.Containment.SSH.PrivateKeyPath,
			KnownHostsPath: cfg.Containment.SSH.KnownHostsPath,
			IsolateCommand: cfg.Containment.SSH.IsolateCommand,
			BlockCommand:   cfg.Containment.SSH.BlockCommand,
		})
	case config.ContainmentAWS:
		if awsClient == nil {
			return nil, fmt.Errorf("aws containment requires an aws client")
		}
		return aws.NewQuarantine(awsClient, cfg.QuarantineGroups(awsClient.Regions()))
	default:
		return agents.NewBlocklist(), nil
	}
}
