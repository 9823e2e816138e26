package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"porter/internal/app/bootstrap"
)

// Bot process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (channel consumer + dispatch pipeline + diagnostics).
// 3) Consume inbound units until interrupted.
func main() {
	log.Println("porter bot starting")
	app, err := bootstrap.BuildBot()
	if err != nil {
		log.Fatalf("bootstrap bot failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("bot shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("porter bot stopped with error: %v", err)
	}
}
