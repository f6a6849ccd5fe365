// Command server runs the boundary validation API: layer submission, run
// history, quarantine review, and failure-pattern reporting behind a single
// HTTP listener. Postgres, Redis, and Kafka are each optional; the process
// degrades to memory stores, uncached geocoding, and store-plus-log auditing
// when they are not configured.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"

	"tessera/internal/attribution"
	attributionmetrics "tessera/internal/attribution/metrics"
	"tessera/internal/audit"
	auditmetrics "tessera/internal/audit/metrics"
	"tessera/internal/boundary"
	"tessera/internal/geocode"
	"tessera/internal/geometry"
	httpapi "tessera/internal/http"
	"tessera/internal/pipeline"
	pipelinehandler "tessera/internal/pipeline/handler"
	pipelinemetrics "tessera/internal/pipeline/metrics"
	"tessera/internal/platform/config"
	"tessera/internal/platform/httpserver"
	"tessera/internal/platform/logger"
	platformmetrics "tessera/internal/platform/metrics"
	"tessera/internal/platform/postgres"
	platformredis "tessera/internal/platform/redis"
	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	provermetrics "tessera/internal/prover/metrics"
	"tessera/internal/quarantine"
	quarantinehandler "tessera/internal/quarantine/handler"
	quarantinemetrics "tessera/internal/quarantine/metrics"
	"tessera/internal/registry"
	"tessera/internal/report"
	reporthandler "tessera/internal/report/handler"
	"tessera/internal/reviewertoken"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
)

const (
	tokenIssuer   = "tessera"
	tokenAudience = "tessera-reviewers"

	shutdownTimeout = 10 * time.Second
)

func main() {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = postgres.Open(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
	}

	runStore, quarantineStore, auditStore, err := buildStores(ctx, db)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var kafkaClient *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()
		if err := audit.EnsureTopic(ctx, kafkaClient, cfg.Kafka.AuditTopic); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	log.Info("backends configured",
		"postgres", db != nil,
		"redis", redisClient != nil,
		"kafka", kafkaClient != nil,
	)

	registries, err := registry.LoadSet(cfg.Registry.RegistryDir)
	if err != nil {
		return fmt.Errorf("load registries: %w", err)
	}
	authority, err := boundary.NewFileAuthority(cfg.Registry.BoundaryDir)
	if err != nil {
		return fmt.Errorf("load boundary authority: %w", err)
	}
	log.Info("reference data loaded",
		"exclusions", registries.Exclusions.Len(),
		"expected_counts", registries.ExpectedCounts.Len(),
		"organizations", registries.Organizations.Len(),
		"spatial_refs", registries.SpatialRefs.Len(),
		"centroids", registries.Centroids.Len(),
		"boundaries", authority.Len(),
	)

	var geocoder geocode.Geocoder = geocode.NewGazetteer(registries.Centroids)
	if redisClient != nil {
		geocoder = geocode.NewCachedGeocoder(geocoder, redisClient.Client, cfg.Redis.CacheTTL, log)
	}

	resolver := attribution.NewResolver(
		registries.Organizations,
		registries.SpatialRefs,
		registries.Centroids,
		geocoder,
		log,
		attributionmetrics.New(),
	)

	deriver, err := tolerance.NewDeriver(cfg.Tolerance)
	if err != nil {
		return fmt.Errorf("tolerance config: %w", err)
	}
	prevalidator, err := prevalidate.NewValidator(cfg.Prevalidate)
	if err != nil {
		return fmt.Errorf("prevalidate config: %w", err)
	}
	tessellation := prover.New(geometry.NewKernel(), log, provermetrics.New())

	auditMetrics := auditmetrics.New()
	publisher := audit.NewPublisher(cfg.Audit.BufferSize, log, auditMetrics)
	sinks := []audit.Sink{audit.NewStoreSink(auditStore), audit.NewLogSink(log)}
	if kafkaClient != nil {
		sinks = append(sinks, audit.NewKafkaSink(kafkaClient, cfg.Kafka.AuditTopic))
	}
	worker := audit.NewWorker(publisher.Events(), log, auditMetrics, sinks...)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// The pipeline needs the quarantine service to file refusals and the
	// quarantine service needs the pipeline to re-validate corrections. The
	// handle breaks that cycle: quarantine is built against it first, the
	// pipeline is bound into it after.
	reval := &revalidatorHandle{}
	quarantineSvc := quarantine.NewService(quarantineStore, reval, publisher, log, quarantinemetrics.New())

	pipelineSvc, err := pipeline.NewService(
		resolver,
		registries,
		authority,
		deriver,
		prevalidator,
		tessellation,
		runStore,
		quarantineSvc,
		pipeline.WithPublisher(publisher),
		pipeline.WithParallelism(cfg.Pipeline.Parallelism),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(pipelinemetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	reval.svc = pipelineSvc

	aggregator, err := report.NewAggregator(runStore)
	if err != nil {
		return fmt.Errorf("build report aggregator: %w", err)
	}

	tokenSvc := reviewertoken.NewService(cfg.Server.JWTSigningKey, tokenIssuer, tokenAudience)

	var readiness []httpapi.ReadyCheck
	if db != nil {
		readiness = append(readiness, httpapi.ReadyCheck{Name: "postgres", Check: db.PingContext})
	}
	if redisClient != nil {
		readiness = append(readiness, httpapi.ReadyCheck{Name: "redis", Check: redisClient.Health})
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:     log,
		Metrics:    platformmetrics.New(),
		Validation: pipelinehandler.New(pipelineSvc, log),
		Quarantine: quarantinehandler.New(quarantineSvc, log, tokenSvc),
		Reports:    reporthandler.New(aggregator, log),
		Readiness:  readiness,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-quit:
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Stop the audit worker only after the listener drains so events from
	// in-flight requests still reach the sinks. The worker delivers what is
	// already buffered before returning.
	stopWorker()
	<-workerDone

	return nil
}

// buildStores picks the persistence tier. With no database every store runs
// in process memory, which is how tests and demo environments operate.
func buildStores(ctx context.Context, db *sql.DB) (pipeline.RunStore, quarantine.Store, audit.Store, error) {
	if db == nil {
		return pipeline.NewMemoryRunStore(), quarantine.NewInMemoryStore(), audit.NewInMemoryStore(), nil
	}

	runs := pipeline.NewPostgresRunStore(db)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("run store schema: %w", err)
	}
	entries := quarantine.NewPostgresStore(db)
	if err := entries.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("quarantine store schema: %w", err)
	}
	events := audit.NewPostgresStore(db)
	if err := events.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("audit store schema: %w", err)
	}
	return runs, entries, events, nil
}

// revalidatorHandle defers the quarantine-to-pipeline edge until both
// services exist. Remediation never runs before startup completes, so the
// unsynchronized field is safe.
type revalidatorHandle struct {
	svc *pipeline.Service
}

func (h *revalidatorHandle) Revalidate(ctx context.Context, layer geometry.CandidateLayer) (id.RunID, id.Verdict, error) {
	return h.svc.Revalidate(ctx, layer)
}
