// Package main prints the operator wallet's SOL and SPL token balances.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"solana-hedge/internal/config"
	"solana-hedge/internal/solana"
	"solana-hedge/internal/wallet"
)

func main() {
	configFile := flag.String("config", "", "Config file (YAML/TOML/JSON)")
	envFile := flag.String("env-file", "", "Dotenv file (default .env)")
	owner := flag.String("owner", "", "Wallet address (operator wallet when empty)")
	flag.Parse()

	logger := log.New(os.Stdout, "[balance] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	address := *owner
	if address == "" {
		address = cfg.PublicKey()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc := solana.NewHTTPClient(cfg.SolanaEndpoint, solana.WithTimeout(cfg.HTTPTimeout))
	reporter := wallet.NewReporter(rpc, log.New(os.Stdout, "", log.LstdFlags))

	if _, err := reporter.Report(ctx, address, "CURRENT"); err != nil {
		logger.Fatalf("Failed to read balances: %v", err)
	}
}
