// Package main watches one transaction signature over the node's WebSocket
// endpoint and prints the first notification.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-hedge/internal/tracker"
)

func main() {
	// Missing .env is fine
	_ = godotenv.Load()

	signature := flag.String("signature", os.Getenv("TXN_SIGNATURE"), "Transaction signature to watch")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("HEDGE_WS_ENDPOINT"), "Solana WebSocket endpoint (derived from SOLANA_ENDPOINT when empty)")
	commitment := flag.String("commitment", "", "Subscription commitment (node default when empty)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Give up after this long")
	flag.Parse()

	logger := log.New(os.Stdout, "[txscan] ", log.LstdFlags|log.Lshortfile)

	if *signature == "" {
		logger.Fatal("--signature or TXN_SIGNATURE is required")
	}

	endpoint := *wsEndpoint
	if endpoint == "" {
		rpcURL := os.Getenv("HEDGE_SOLANA_ENDPOINT")
		if rpcURL == "" {
			rpcURL = os.Getenv("SOLANA_ENDPOINT")
		}
		var err error
		if endpoint, err = tracker.Endpoint(rpcURL); err != nil {
			logger.Fatalf("--ws-endpoint or SOLANA_ENDPOINT is required: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg := tracker.DefaultConfig()
	cfg.Commitment = *commitment
	t := tracker.New(endpoint, &cfg, logger)

	logger.Printf("Watching %s on %s", *signature, endpoint)
	res, err := t.Track(ctx, *signature)
	if err != nil {
		logger.Printf("Tracking failed: %v", err)
		cancel()
		stop()
		os.Exit(1)
	}

	switch res.State {
	case tracker.StateFailed:
		logger.Printf("Transaction %s failed at slot %d: %s", res.Signature, res.Slot, res.Reason())
		os.Exit(1)
	default:
		logger.Printf("Transaction %s confirmed at slot %d", res.Signature, res.Slot)
	}
}
