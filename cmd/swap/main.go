// Package main executes a single ad-hoc swap without touching the ledger.
//
// Usage:
//
//	swap [flags] <inputMint> <outputMint> <amount> <swapMode> <slippageBps>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"solana-hedge/internal/config"
	"solana-hedge/internal/domain"
	"solana-hedge/internal/jupiter"
	"solana-hedge/internal/orchestrator"
	"solana-hedge/internal/signer"
	"solana-hedge/internal/solana"
	"solana-hedge/internal/storage/memory"
	"solana-hedge/internal/tracker"
	"solana-hedge/internal/wallet"
)

func main() {
	configFile := flag.String("config", "", "Config file (YAML/TOML/JSON)")
	envFile := flag.String("env-file", "", "Dotenv file (default .env)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <inputMint> <outputMint> <amount> <swapMode> <slippageBps>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New(os.Stdout, "[swap] ", log.LstdFlags|log.Lshortfile)

	params, err := parseArgs(flag.Args())
	if err != nil {
		flag.Usage()
		logger.Fatalf("Invalid arguments: %v", err)
	}

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc := solana.NewHTTPClient(cfg.SolanaEndpoint, solana.WithTimeout(cfg.HTTPTimeout))
	reporter := wallet.NewReporter(rpc, log.New(os.Stdout, "", log.LstdFlags))
	sgn := signer.New(cfg.Key)

	// The ledger is required by the orchestrator but never read by ExecuteSwap.
	ledger := memory.NewLedger()
	opts := orchestrator.Options{
		Ledger:  ledger,
		Journal: ledger,
		Aggregator: jupiter.NewClient(
			jupiter.WithQuoteURL(cfg.QuoteURL),
			jupiter.WithSwapURL(cfg.SwapURL),
			jupiter.WithTimeout(cfg.HTTPTimeout),
		),
		Signer:      sgn,
		Broadcaster: solana.NewBroadcaster(rpc, logger),
		Status:      rpc,
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
		opts.Tracker = tracker.New(cfg.WSEndpoint, &tc, logger)
	}
	o := orchestrator.New(opts)

	if _, err := reporter.Report(ctx, sgn.Address(), "PRE"); err != nil {
		logger.Printf("PRE balance report failed: %v", err)
	}

	signature, err := o.ExecuteSwap(ctx, params)
	o.Wait()
	if err != nil {
		logger.Printf("Swap failed: %v", err)
		stop()
		os.Exit(1)
	}
	logger.Printf("Swap settled: %s", signature)

	if _, err := reporter.Report(ctx, sgn.Address(), "POST"); err != nil {
		logger.Printf("POST balance report failed: %v", err)
	}
}

// parseArgs converts the positional arguments into swap parameters.
func parseArgs(args []string) (domain.SwapParams, error) {
	if len(args) != 5 {
		return domain.SwapParams{}, fmt.Errorf("expected 5 arguments, got %d", len(args))
	}

	amount, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil || amount == 0 {
		return domain.SwapParams{}, fmt.Errorf("amount %q: must be a positive integer in base units", args[2])
	}

	mode := domain.SwapMode(args[3])
	if !mode.Valid() {
		return domain.SwapParams{}, fmt.Errorf("swapMode %q: must be %s or %s", args[3], domain.SwapModeExactIn, domain.SwapModeExactOut)
	}

	slippage, err := strconv.Atoi(args[4])
	if err != nil || slippage < 1 || slippage > 10000 {
		return domain.SwapParams{}, fmt.Errorf("slippageBps %q: must be between 1 and 10000", args[4])
	}

	return domain.SwapParams{
		InputMint:   args[0],
		OutputMint:  args[1],
		Amount:      amount,
		SwapMode:    mode,
		SlippageBps: slippage,
	}, nil
}
