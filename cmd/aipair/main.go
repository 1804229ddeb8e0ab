package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// API keys may live in a .env file next to the project.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// stdout may carry the stdio protocol; errors go to stderr.
		fmt.Fprintf(os.Stderr, "aipair: %v\n", err)
		os.Exit(1)
	}
}
