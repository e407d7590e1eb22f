package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"settlement-service/internal/config"
	"settlement-service/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("Settlement: No .env file found, relying on system env vars")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		log.Fatalf("Settlement service failed: %v", err)
	}
	log.Println("Settlement service stopped")
}
