package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"hookrelay/internal/analytics"
	"hookrelay/internal/api"
	"hookrelay/internal/circuitbreaker"
	"hookrelay/internal/config"
	"hookrelay/internal/dispatcher"
	"hookrelay/internal/emitter"
	"hookrelay/internal/metrics"
	"hookrelay/internal/reconciler"
	"hookrelay/internal/retry"
	"hookrelay/internal/stats"
	"hookrelay/internal/store/postgres"
	"hookrelay/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// subjectTable names the single entity table whose mutations are relayed.
const subjectTable = "events"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`hookrelay - webhook delivery relay for entity mutations

Usage:
  hookrelay <command>

Commands:
  serve      Start the API server and delivery pipeline
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  SINK_URL                  Webhook sink endpoint (required)
  SINK_TOKEN                Bearer token for the sink (optional)
  SINK_TIMEOUT              Per-attempt delivery timeout (default: "30s")
  SOURCE_TAG                Source tag stamped on outbound events (default: "hookrelay")
  REDIS_ADDR                Redis address for analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  MAX_ATTEMPTS              Delivery attempts per event before giving up (default: "4")
  BACKOFF_BASE              Base retry backoff delay (default: "1s")
  BACKOFF_CAP               Maximum retry backoff delay (default: "2m")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCHER_DRAIN_TIMEOUT  Dispatcher event drain timeout (default: "30s")
  DISPATCHER_WORKERS        Concurrent delivery workers (default: "1")
  EVENTBUS_BUFFER_SIZE      In-process envelope buffer size (default: "100")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  RECONCILE_ENABLED         Enable stale-record reconciler (default: "false")
  RECONCILE_INTERVAL        How often to scan for stale records (default: "5m")
  RECONCILE_THRESHOLD       Age before a pending/sent record is stale (default: "15m")
  RECONCILE_BATCH_SIZE      Max stale records per cycle (default: "100")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before the sink circuit opens,
                            0 disables the breaker (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open-circuit cooldown before probing (default: "2m")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("hookrelay: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("hookrelay: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("hookrelay: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("hookrelay: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("hookrelay: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	retrySched := retry.NewScheduler(retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase,
		MaxDelay:    cfg.BackoffCap,
	}, bus)

	disp := dispatcher.New(
		dispatcher.Config{
			SinkURL:     cfg.SinkURL,
			SinkToken:   cfg.SinkToken,
			SinkTimeout: cfg.SinkTimeout,
			UserAgent:   "hookrelay/" + version,
			Source:      cfg.SourceTag,
		},
		store,
		store,
		dispatcher.NewHTTPSinkSender(),
	).
		WithRetryScheduler(retrySched).
		WithDrainTimeout(cfg.DispatcherDrainTimeout)
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}

	if cfg.CircuitBreakerThreshold > 0 {
		disp = disp.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("hookrelay: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient)
		disp = disp.WithAnalytics(sink)
		log.Printf("hookrelay: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("hookrelay: REDIS_ADDR not set; analytics disabled")
	}

	// The emitter hands persisted mutations to the bus; the API announces
	// through it after every durable write.
	emit := emitter.New(subjectTable, bus)
	if metricsSink != nil {
		emit = emit.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(store, emit).
		WithStats(stats.New(store)).
		WithHealthChecker(db)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("hookrelay: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("hookrelay: http server error: %v", err)
		}
	}()

	// Separate contexts per stage enable ordered shutdown.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var dispatcherWg sync.WaitGroup
	var reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc

	for i := 0; i < cfg.DispatcherWorkers; i++ {
		dispatcherWg.Add(1)
		go func() {
			defer dispatcherWg.Done()
			disp.Run(dispatcherCtx, bus.Channel())
		}()
	}
	log.Printf("hookrelay: dispatcher started (workers=%d)", cfg.DispatcherWorkers)

	// Start reconciler if enabled
	if cfg.ReconcileEnabled {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		recon := reconciler.New(
			reconciler.Config{
				Interval:     cfg.ReconcileInterval,
				Threshold:    cfg.ReconcileThreshold,
				BatchSize:    cfg.ReconcileBatchSize,
				SubjectTable: subjectTable,
			},
			store,
			bus,
		)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
		log.Printf("hookrelay: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	} else {
		log.Println("hookrelay: RECONCILE_ENABLED not set; reconciler disabled")
	}

	log.Printf("hookrelay: started (sink=%s, http=%s)", cfg.SinkURL, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("hookrelay: received signal %v, shutting down", received)

	// Phase 1: Stop the HTTP server so no new mutations are accepted.
	log.Println("hookrelay: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("hookrelay: http server shutdown error: %v", err)
	}
	log.Println("hookrelay: http server stopped")

	// Phase 2: Stop reconciler (no new re-emits)
	if cancelReconciler != nil {
		log.Println("hookrelay: stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Println("hookrelay: reconciler stopped")
	}

	// Phase 3: Stop the retry scheduler; pending timers are abandoned and
	// left to the reconciler on next startup.
	log.Println("hookrelay: stopping retry scheduler...")
	retrySched.Stop()
	log.Println("hookrelay: retry scheduler stopped")

	// Phase 4: Stop dispatcher workers (drain buffered envelopes first)
	log.Println("hookrelay: stopping dispatcher (draining events)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("hookrelay: dispatcher stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("hookrelay: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("hookrelay: metrics server shutdown error: %v", err)
		}
		log.Println("hookrelay: metrics server stopped")
	}

	log.Println("hookrelay: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("hookrelay version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
