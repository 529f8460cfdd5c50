package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/beach-weather-cache/internal/api/http"
	"github.com/i474232898/beach-weather-cache/internal/batch"
	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/config"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/metrics"
	"github.com/i474232898/beach-weather-cache/internal/partition"
	"github.com/i474232898/beach-weather-cache/internal/pipeline"
	"github.com/i474232898/beach-weather-cache/internal/scheduler"
	"github.com/i474232898/beach-weather-cache/internal/store"
)

const usage = `usage: beach-weather-cache <command> [flags]

commands:
  prepare    geocode the beaches file once and write the resolved work set (YAML)
  worker     fetch one batch and store its partial result
  aggregate  merge a run's partial results into the cache
  run        run all batches in-process and aggregate (repeats every REFRESH_INTERVAL unless -once)
  serve      refresh on a schedule and serve the cache over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "prepare":
		err = runPrepare(ctx, cfg, args)
	case "worker":
		err = runWorker(ctx, cfg, args)
	case "aggregate":
		err = runAggregate(ctx, cfg, args)
	case "run":
		err = runAll(ctx, cfg, args)
	case "serve":
		err = serve(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		stop()
		logger.Fatalf("%s: %v", cmd, err)
	}
}

// app bundles the stores and pipeline shared by every command.
type app struct {
	pipeline *pipeline.Pipeline
	reader   httpapi.CacheReader
	metrics  *metrics.Prometheus
	history  *store.MemoryStore[pipeline.Summary]
	closers  closers
}

func newApp(ctx context.Context, cfg *config.AppConfig, batchSize int) (*app, error) {
	a := &app{
		metrics: metrics.NewPrometheus(),
		history: store.NewMemoryStore[pipeline.Summary](cfg.ReportHistory, cfg.ReportMaxAge),
	}

	cacheStore, reader, err := openCacheStore(ctx, cfg, &a.closers)
	if err != nil {
		a.closers.Close()
		return nil, err
	}
	partials, err := openPartialStore(ctx, cfg, &a.closers)
	if err != nil {
		a.closers.Close()
		return nil, err
	}

	a.reader = reader
	a.pipeline = pipeline.New(pipeline.Deps{
		Partials:   partials,
		Cache:      cacheStore,
		NewFetcher: newFetcherFactory(cfg),
		Metrics:    a.metrics,
		History:    a.history,
	}, pipeline.Options{
		BatchSize:        batchSize,
		CollectionWindow: cfg.CollectionWindow,
		Worker:           batch.Config{Concurrency: cfg.BatchConcurrency, ItemTimeout: cfg.ItemTimeout},
		Commit:           cache.CommitOptions{MaxAttempts: cfg.CommitAttempts, RetryDelay: time.Second},
		PartialRetention: cfg.PartialRetention,
	})
	return a, nil
}

func runPrepare(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	out := fs.String("out", "beaches.resolved.yaml", "where to write the resolved work set")
	_ = fs.Parse(args)

	items, err := loadBeaches(ctx, cfg, false)
	if err != nil {
		return err
	}
	if err := writeWorkSet(*out, items); err != nil {
		return err
	}
	logger.Infof("wrote %d beaches to %s", len(items), *out)
	return nil
}

func runWorker(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	size := fs.Int("batch-size", cfg.BatchSize, "beaches per batch")
	index := fs.Int("batch-index", -1, "zero-based batch index")
	runID := fs.String("run-id", "", "identifier shared by all workers of a run")
	_ = fs.Parse(args)

	if *index < 0 || *runID == "" {
		return errors.New("-batch-index and -run-id are required")
	}

	items, err := loadBeaches(ctx, cfg, true)
	if err != nil {
		return err
	}
	if *size > 0 && partition.Empty(len(items), *size, *index) {
		logger.Infof("batch %d is past the last batch (%d batches); writing empty result", *index, partition.Count(len(items), *size))
	}

	a, err := newApp(ctx, cfg, *size)
	if err != nil {
		return err
	}
	defer a.closers.Close()

	res, err := a.pipeline.RunWorker(ctx, *runID, items, *index)
	if err != nil {
		return err
	}
	logger.Infof("batch %d done: beaches %d-%d, %d fetched, %d skipped", res.BatchIndex, res.Start, res.End, res.Fetched, len(res.Skipped))
	return nil
}

func runAggregate(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	runID := fs.String("run-id", "", "run whose partial results to merge")
	count := fs.Int("batch-count", 0, "expected number of batches (0 derives it from the beach list)")
	size := fs.Int("batch-size", cfg.BatchSize, "beaches per batch, used to derive -batch-count")
	_ = fs.Parse(args)

	if *runID == "" {
		return errors.New("-run-id is required")
	}
	if *count <= 0 {
		items, err := loadBeaches(ctx, cfg, true)
		if err != nil {
			return err
		}
		*count = partition.Count(len(items), *size)
	}

	a, err := newApp(ctx, cfg, *size)
	if err != nil {
		return err
	}
	defer a.closers.Close()

	_, err = a.pipeline.RunAggregate(ctx, *runID, *count)
	return err
}

func runAll(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	size := fs.Int("batch-size", cfg.BatchSize, "beaches per batch")
	runID := fs.String("run-id", "", "run identifier (generated when empty; only with -once)")
	once := fs.Bool("once", false, "run a single refresh and exit")
	_ = fs.Parse(args)

	items, err := loadBeaches(ctx, cfg, false)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, *size)
	if err != nil {
		return err
	}
	defer a.closers.Close()

	if *once {
		_, err := a.pipeline.RunAll(ctx, *runID, items)
		return err
	}

	sched := scheduler.New(cfg.RefreshInterval, 0, func(ctx context.Context) error {
		_, err := a.pipeline.RunAll(ctx, "", items)
		return err
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	logger.Infof("refreshing every %s; press Ctrl+C to stop", cfg.RefreshInterval)
	<-ctx.Done()
	return nil
}

func serve(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	size := fs.Int("batch-size", cfg.BatchSize, "beaches per batch")
	_ = fs.Parse(args)

	items, err := loadBeaches(ctx, cfg, false)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, *size)
	if err != nil {
		return err
	}
	defer a.closers.Close()

	// Scheduler that periodically refreshes the cache.
	sched := scheduler.New(cfg.RefreshInterval, 0, func(ctx context.Context) error {
		_, err := a.pipeline.RunAll(ctx, "", items)
		if errors.Is(err, cache.ErrUnwritable) {
			logger.Errorf("cache store is unwritable; serving the last committed cache")
		}
		return err
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	server := fiber.New(fiber.Config{
		AppName:               "beach-weather-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	server.Use(fiberlogger.New())
	server.Use(recover.New())

	// Basic health endpoint
	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "beach-weather-cache",
			"beaches": len(items),
		})
	})

	httpapi.RegisterRoutes(server, httpapi.Deps{
		Cache:    a.reader,
		History:  a.history,
		Registry: a.metrics.Registry(),
	})

	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			logger.Errorf("fiber server stopped: %v", err)
		}
	}()
	logger.Infof("listening on :%s", cfg.Port)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("error during shutdown: %v", err)
	}
	return nil
}
