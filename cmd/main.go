// Command bpmengine boots one worker process: it dials Postgres,
// migrates the engine's own tables, wires the signal bus, job queue,
// and dispatcher, registers every known activity class, and starts the
// worker pool. It is the engine's only binary (spec.md deliberately
// excludes any HTTP/admin front-end — see DESIGN.md's dropped-modules
// list), grounded on the teacher's cmd/main.go wiring idiom: build every
// dependency up front, fail fast on error, defer cleanup, then block.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/arcwelder/bpmengine/internal/data/db"
	"github.com/arcwelder/bpmengine/internal/engine/jobs"
	"github.com/arcwelder/bpmengine/internal/engine/queue/dbqueue"
	"github.com/arcwelder/bpmengine/internal/engine/queue/temporalqueue"
	"github.com/arcwelder/bpmengine/internal/engine/registry"
	"github.com/arcwelder/bpmengine/internal/engine/signal"
	"github.com/arcwelder/bpmengine/internal/engine/worker"
	"github.com/arcwelder/bpmengine/internal/examples/onboarding"
	"github.com/arcwelder/bpmengine/internal/graph/neo4jmirror"
	"github.com/arcwelder/bpmengine/internal/observability"
	"github.com/arcwelder/bpmengine/internal/platform/config"
	"github.com/arcwelder/bpmengine/internal/platform/envutil"
	"github.com/arcwelder/bpmengine/internal/platform/logger"
	"github.com/arcwelder/bpmengine/internal/platform/neo4jdb"
	"github.com/arcwelder/bpmengine/internal/store/activitystore"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadYAML(config.FromEnv(), os.Getenv("BPM_CONFIG_FILE"))
	if err != nil {
		log.Error("failed to load config overlay", "error", err)
		os.Exit(1)
	}

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "bpmengine"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("BPM_VERSION", "dev"),
	})
	defer shutdownOTel(context.Background())

	metrics := observability.New()
	metrics.StartServer(ctx, log, envutil.String("METRICS_ADDR", ":9090"))

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		os.Exit(1)
	}

	bus, err := buildBus(ctx, log)
	if err != nil {
		log.Error("failed to build signal bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	if client, err := neo4jdb.NewFromEnv(log); err != nil {
		log.Warn("neo4j mirror disabled", "error", err)
	} else if client != nil {
		defer client.Close(context.Background())
		mirror := neo4jmirror.New(client, log)
		mirror.EnsureSchema(ctx)
		mirror.Subscribe(bus)
	}

	store := activitystore.New(pg.DB(), log)

	reg := registry.New()
	onboarding.Register(reg)

	metrics.StartJobQueueCollector(ctx, log, pg.DB())

	// Temporal and dbqueue dispatch fundamentally differently: dbqueue
	// is polled by engine/worker's generic pool, while Temporal pushes
	// work directly to a registered activity (temporalqueue.StartWorker
	// blocks on its own worker.Run loop). Both end up calling the same
	// Dispatcher.Dispatch.
	if temporalAddr := envutil.String("TEMPORAL_ADDRESS", ""); temporalAddr != "" {
		runTemporal(ctx, store, reg, bus, cfg, metrics, log)
		return
	}
	runDBQueue(ctx, pg, store, reg, bus, cfg, metrics, log)
}

func runDBQueue(ctx context.Context, pg *db.PostgresService, store *activitystore.Store, reg *registry.Registry, bus signal.Bus, cfg config.Config, metrics *observability.Metrics, log *logger.Logger) {
	q := dbqueue.New(pg.DB(), dbqueue.DefaultConfig(), log)
	dispatcher := jobs.New(store, reg, q, bus, cfg, metrics, log)

	w := worker.New(q, dispatcher.Dispatch, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
	}, metrics, log)
	w.Start(ctx)

	log.Info("bpmengine worker started", "transport", "dbqueue", "concurrency", cfg.WorkerConcurrency)
	<-ctx.Done()
	log.Info("shutting down")
}

func runTemporal(ctx context.Context, store *activitystore.Store, reg *registry.Registry, bus signal.Bus, cfg config.Config, metrics *observability.Metrics, log *logger.Logger) {
	tcfg := temporalqueue.LoadConfig()
	q, err := temporalqueue.New(ctx, tcfg, log)
	if err != nil {
		log.Error("failed to connect to temporal", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	dispatcher := jobs.New(store, reg, q, bus, cfg, metrics, log)

	log.Info("bpmengine worker started", "transport", "temporal", "task_queue", tcfg.TaskQueue)
	if err := temporalqueue.StartWorker(ctx, tcfg, dispatcher.Dispatch, log); err != nil {
		log.Error("temporal worker exited", "error", err)
		os.Exit(1)
	}
}

// buildBus wires the in-process dispatcher alone, or layers a Redis
// transport on top when REDIS_ADDR is set so lifecycle events fan out
// to every worker process (spec.md section 5's multi-worker dispatch).
func buildBus(ctx context.Context, log *logger.Logger) (signal.Bus, error) {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return signal.New(), nil
	}
	return signal.NewRedisBus(ctx, signal.RedisConfig{
		Addr:    addr,
		Channel: envutil.String("REDIS_SIGNAL_CHANNEL", "bpm_signals"),
	}, log)
}
