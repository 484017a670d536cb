package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ghazaziz76/data-scraper/internal/adapter/chromedp_fetcher"
	"github.com/ghazaziz76/data-scraper/internal/adapter/filesource"
	"github.com/ghazaziz76/data-scraper/internal/adapter/httpfetch"
	"github.com/ghazaziz76/data-scraper/internal/adapter/memory"
	"github.com/ghazaziz76/data-scraper/internal/adapter/postgres"
	redis_adapter "github.com/ghazaziz76/data-scraper/internal/adapter/redis"
	"github.com/ghazaziz76/data-scraper/internal/adapter/sqlite"
	"github.com/ghazaziz76/data-scraper/internal/adapter/websocket"
	"github.com/ghazaziz76/data-scraper/internal/delivery/http/handler"
	"github.com/ghazaziz76/data-scraper/internal/delivery/http/router"
	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/jobfile"
	"github.com/ghazaziz76/data-scraper/internal/proxy"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/internal/usecase"
	"github.com/ghazaziz76/data-scraper/pkg/config"
	"github.com/ghazaziz76/data-scraper/pkg/logger"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	// --- Configuration ---
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
	log.Info("server exiting")
}

type stores struct {
	jobs    repository.JobRepository
	runs    repository.RunRepository
	results repository.ResultRepository
	check   handler.HealthCheck
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if err := postgres.Migrate(cfg.PostgresURL, log); err != nil {
			return nil, err
		}
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		log.Info("postgresql connection pool established")
		return &stores{
			jobs:    postgres.NewJobRepo(pool),
			runs:    postgres.NewRunRepo(pool),
			results: postgres.NewResultRepo(pool),
			check:   pool.Ping,
			close:   pool.Close,
		}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Info("sqlite database opened", zap.String("path", cfg.SQLitePath))
		return &stores{
			jobs:    db.Jobs(),
			runs:    db.Runs(),
			results: db.Results(),
			check:   db.Pool.PingContext,
			close:   func() { _ = db.Close() },
		}, nil
	default:
		store := memory.NewStore()
		log.Warn("using in-memory store; jobs and results are lost on restart")
		return &stores{
			jobs:    store.Jobs(),
			runs:    store.Runs(),
			results: store.Results(),
			close:   func() {},
		}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Storage ---
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()
	checks := map[string]handler.HealthCheck{}
	if st.check != nil {
		checks[cfg.StoreDriver] = st.check
	}

	// --- Redis (optional) ---
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redis_adapter.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	// --- Transports ---
	proxies, err := proxy.NewManager(config.SplitList(cfg.Proxies), config.SplitList(cfg.UserAgents))
	if err != nil {
		return err
	}
	files, err := filesource.NewFileSource(cfg.FileRoot, cfg.MaxBodyBytes)
	if err != nil {
		return err
	}
	transport := &fetcher.Router{
		HTTP: httpfetch.NewHTTPFetcher(proxies, cfg.FetchTimeout(), cfg.MaxBodyBytes, log),
		File: files,
	}
	if cfg.RenderEnabled {
		browser := chromedp_fetcher.NewChromedpFetcher(cfg.Workers, cfg.FetchTimeout(), proxies, log)
		defer browser.Close()
		transport.Browser = browser
	}

	var limiter repository.HostLimiter
	switch cfg.RateLimitScope {
	case "host":
		limiter = fetcher.NewHostLimiter()
	case "redis":
		limiter = redis_adapter.NewHostLimiter(rdb)
	}
	log.Info("rate limiting configured", zap.String("scope", cfg.RateLimitScope))

	// --- Progress fan-out ---
	hub := websocket.NewHub(log)
	defer hub.Close()
	notifiers := []repository.ProgressNotifier{hub}
	if rdb != nil {
		notifiers = append(notifiers, redis_adapter.NewProgressPublisher(rdb, cfg.ProgressChannel))
	}
	dispatcher := usecase.NewProgressDispatcher(0, log, m, notifiers...)
	defer dispatcher.Close()

	// --- Scheduler ---
	overrides, defaultTimeout := cfg.JobTimeouts()
	timeouts := make(map[entity.JobType]time.Duration, len(overrides))
	for t, d := range overrides {
		timeouts[entity.JobType(t)] = d
	}
	sched := usecase.NewScheduler(usecase.SchedulerConfig{
		Workers:          cfg.Workers,
		DefaultMaxPages:  cfg.DefaultMaxPages,
		MaxPagesCap:      cfg.MaxPagesCap,
		DefaultRateLimit: cfg.DefaultRateLimit(),
		Retry: fetcher.RetryPolicy{
			MaxAttempts:   cfg.RetryMaxAttempts,
			BaseDelay:     cfg.RetryBaseDelay(),
			MaxDelay:      cfg.RetryMaxDelay(),
			RetryAfterCap: cfg.RetryAfterCap(),
		},
		JobTimeouts:       timeouts,
		DefaultJobTimeout: defaultTimeout,
		EmptyPolicy:       entity.EmptyPolicy(cfg.EmptyResultPolicy),
		RenderEnabled:     cfg.RenderEnabled,
	}, usecase.SchedulerDeps{
		Jobs:          st.jobs,
		Runs:          st.runs,
		Results:       st.results,
		Transport:     transport,
		SharedLimiter: limiter,
		Notifier:      dispatcher,
		Logger:        log,
		Metrics:       m,
	})
	if _, err := sched.Recover(ctx); err != nil {
		return err
	}
	sched.Start()

	if cfg.JobsFile != "" {
		if err := seedJobs(ctx, sched, st.jobs, cfg.JobsFile, log); err != nil {
			return err
		}
	}

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(sched, hub, checks, log)
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router.New(apiHandler, reg, m, log),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on port %s: %w", cfg.ServerPort, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		httpErr := server.Shutdown(shutdownCtx)
		if err := sched.Shutdown(shutdownCtx); err != nil {
			log.Warn("scheduler did not drain before the deadline", zap.Error(err))
		}
		return httpErr
	})
	return g.Wait()
}

// seedJobs submits the jobs of the seed file once, into an empty store.
func seedJobs(ctx context.Context, sched *usecase.Scheduler, jobs repository.JobRepository, path string, log *zap.Logger) error {
	existing, err := jobs.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("job store not empty, skipping seed file", zap.String("path", path), zap.Int("jobs", len(existing)))
		return nil
	}
	specs, err := jobfile.Load(path)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		id, err := sched.Submit(ctx, spec)
		if err != nil {
			log.Error("failed to submit seeded job", zap.String("name", spec.Name), zap.Error(err))
			continue
		}
		log.Info("seeded job submitted", zap.String("name", spec.Name), zap.String("job_id", id))
	}
	return nil
}
