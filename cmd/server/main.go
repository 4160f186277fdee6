package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"npi-gateway/internal/npi/cache"
	"npi-gateway/internal/npi/events"
	"npi-gateway/internal/npi/handler"
	npimetrics "npi-gateway/internal/npi/metrics"
	"npi-gateway/internal/npi/registry"
	"npi-gateway/internal/npi/service"
	"npi-gateway/internal/npi/worker"
	"npi-gateway/internal/platform/config"
	"npi-gateway/internal/platform/httpserver"
	"npi-gateway/internal/platform/logger"
	httpmetrics "npi-gateway/internal/platform/metrics"
	"npi-gateway/internal/platform/postgres"
	"npi-gateway/internal/platform/redis"
	httptransport "npi-gateway/internal/transport/http"
)

const startupTimeout = 15 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("npi-gateway exited", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := npimetrics.NewWithRegisterer(reg)

	redisClient, err := redis.New(startCtx, cfg.Redis)
	if err != nil {
		// Cache tiers are optional. A nil client leaves the tier unconfigured.
		log.Warn("redis unavailable, shared cache tier disabled", "error", err)
	}
	defer func() { _ = redisClient.Close() }()

	db, err := postgres.Open(startCtx, cfg.Database)
	if err != nil {
		log.Warn("postgres unavailable, durable cache tier disabled", "error", err)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	durable := cache.NewPostgresStore(db, cache.WithPostgresLogger(log))
	if db != nil && cfg.Database.BootstrapSchema {
		if err := durable.Bootstrap(startCtx); err != nil {
			return err
		}
	}
	defer durable.Wait()

	manager := cache.NewManager(cache.NewMemoryStore(),
		cache.WithSharedTier(cache.NewRedisStore(redisClient.Universal())),
		cache.WithDurableTier(durable),
		cache.WithLogger(log),
		cache.WithMetrics(mx),
	)

	health := map[string]httptransport.HealthCheck{"redis": nil, "postgres": nil, "kafka": nil}
	if redisClient != nil {
		health["redis"] = redisClient.Health
	}
	if db != nil {
		health["postgres"] = db.PingContext
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := events.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		kp := events.NewKafkaPublisher(kc, events.WithTopic(cfg.Kafka.Topic), events.WithLogger(log))
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := kp.Close(flushCtx); err != nil {
				log.Warn("kafka flush failed", "error", err)
			}
		}()
		publisher = kp
		health["kafka"] = kc.Ping
	}

	client := registry.NewHTTPClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, registry.WithLogger(log))
	svc, err := service.NewService(client, manager,
		service.WithLogger(log),
		service.WithMetrics(mx),
		service.WithPublisher(publisher),
		service.WithDefaultConcurrency(cfg.Batch.Concurrency),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:   log,
		Gatherer: reg,
		Metrics:  httpmetrics.NewHTTP(reg),
		Health:   health,
		Routes:   []httptransport.Registrar{handler.New(svc, log, cfg.Batch.MaxItems)},
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		err := worker.NewCleanupWorker(svc, cfg.Cleanup.Interval, log).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	log.Info("npi-gateway started",
		"addr", cfg.Server.Addr,
		"redis", redisClient != nil,
		"postgres", db != nil,
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	return g.Wait()
}
