// Package main runs the hedge service: pending orders in the ledger are hedged
// in batches through the aggregator and settled on Solana.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-hedge/internal/config"
	"solana-hedge/internal/hedge"
	"solana-hedge/internal/jupiter"
	"solana-hedge/internal/observability"
	"solana-hedge/internal/orchestrator"
	"solana-hedge/internal/signer"
	"solana-hedge/internal/solana"
	"solana-hedge/internal/storage"
	chstore "solana-hedge/internal/storage/clickhouse"
	"solana-hedge/internal/storage/memory"
	"solana-hedge/internal/storage/migrations"
	pgstore "solana-hedge/internal/storage/postgres"
	"solana-hedge/internal/tracker"
	"solana-hedge/internal/wallet"
)

// stores holds the storage backends used by the orchestrator.
type stores struct {
	ledger  storage.OrderLedger
	journal storage.BroadcastJournal
	events  storage.SettlementEventStore
}

func main() {
	configFile := flag.String("config", "", "Config file (YAML/TOML/JSON)")
	envFile := flag.String("env-file", "", "Dotenv file (default .env)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	interval := flag.Duration("interval", time.Minute, "Batch interval")
	once := flag.Bool("once", false, "Run a single batch and exit")
	flag.Parse()

	logger := log.New(os.Stdout, "[hedge] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if !*useMemory && cfg.PostgresDSN == "" {
		logger.Fatal("postgres_dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	o := newOrchestrator(cfg, st, logger)

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if cfg.MetricsAddr != "" {
		go startHTTPServer(cfg.MetricsAddr, logger)
	}

	err = run(ctx, o, *interval, *once, logger)
	o.Wait()
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		fail(logger, err, cleanup, cancel)
	}
	logger.Println("Shutdown complete")
}

// osExit is replaced in tests.
var osExit = os.Exit

// fail logs err, runs release in order and exits non-zero. log.Fatal would
// skip the deferred pool shutdown.
func fail(logger *log.Logger, err error, release ...func()) {
	logger.Printf("Hedge error: %v", err)
	for _, f := range release {
		f()
	}
	osExit(1)
}

// run executes batches until ctx is cancelled. With once set the first
// batch error is returned; otherwise failures are logged and retried on the
// next tick.
func run(ctx context.Context, o *orchestrator.Orchestrator, interval time.Duration, once bool, logger *log.Logger) error {
	if once {
		_, err := o.ProcessBatch(ctx)
		return err
	}

	logger.Printf("Starting batch loop (interval: %v)...", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := o.ProcessBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Printf("Batch failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func newOrchestrator(cfg *config.Config, st *stores, logger *log.Logger) *orchestrator.Orchestrator {
	rpc := solana.NewHTTPClient(cfg.SolanaEndpoint, solana.WithTimeout(cfg.HTTPTimeout))

	aggregator := jupiter.NewClient(
		jupiter.WithQuoteURL(cfg.QuoteURL),
		jupiter.WithSwapURL(cfg.SwapURL),
		jupiter.WithTimeout(cfg.HTTPTimeout),
	)

	opts := orchestrator.Options{
		Ledger:      st.ledger,
		Journal:     st.journal,
		Generator:   hedge.NewGenerator(hedge.NewDecimals(cfg.DefaultDecimals, cfg.TokenDecimals), cfg.SlippageBps),
		Aggregator:  aggregator,
		Signer:      signer.New(cfg.Key),
		Broadcaster: solana.NewBroadcaster(rpc, log.New(os.Stdout, "[broadcast] ", log.LstdFlags|log.Lshortfile)),
		Status:      rpc,
		Events:      st.events,
		Balances:    wallet.NewReporter(rpc, log.New(os.Stdout, "[wallet] ", log.LstdFlags)),
		Submit: solana.SubmitOptions{
			SkipPreflight:       cfg.SkipPreflight,
			PreflightCommitment: solana.Commitment(cfg.PreflightCommitment),
			Commitment:          solana.Commitment(cfg.Commitment),
			ConfirmTimeout:      cfg.ConfirmTimeout,
			PollInterval:        cfg.PollInterval,
		},
		StepTimeout:    cfg.StepTimeout,
		TrackerTimeout: cfg.TrackerTimeout,
		Logger:         logger,
	}
	if cfg.TrackNotifications {
		tc := tracker.DefaultConfig()
		tc.Commitment = cfg.Commitment
		opts.Tracker = tracker.New(cfg.WSEndpoint, &tc, log.New(os.Stdout, "[tracker] ", log.LstdFlags|log.Lshortfile))
	}
	return orchestrator.New(opts)
}

// createStores connects to PostgreSQL (ledger and journal) and ClickHouse
// (settlement events) and applies migrations. ClickHouse is optional.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *log.Logger) (*stores, func(), error) {
	if useMemory {
		ledger := memory.NewLedger()
		return &stores{
			ledger:  ledger,
			journal: ledger,
			events:  memory.NewSettlementEventStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithApplicationName("solana-hedge"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	ledger := pgstore.NewLedger(pool)

	if cfg.ClickhouseDSN == "" {
		logger.Println("clickhouse_dsn not set, settlement events kept in memory")
		return &stores{
			ledger:  ledger,
			journal: ledger,
			events:  memory.NewSettlementEventStore(),
		}, pool.Close, nil
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return &stores{
		ledger:  ledger,
		journal: ledger,
		events:  chstore.NewSettlementEventStore(chConn),
	}, cleanup, nil
}

// startHTTPServer serves health and Prometheus metrics.
func startHTTPServer(addr string, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
