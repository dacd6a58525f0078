// Auth service - credential exchange, refresh-token rotation with reuse
// detection, revocation, and the projection of token family events.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/astrolabs/astroevents/pkg/api"
	"github.com/astrolabs/astroevents/pkg/auth"
	"github.com/astrolabs/astroevents/pkg/broker"
	"github.com/astrolabs/astroevents/pkg/config"
	"github.com/astrolabs/astroevents/pkg/store"
	"github.com/astrolabs/astroevents/pkg/token"
)

const connectTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded, continuing with existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireSigningKey(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	st, err := store.Connect(connectCtx, cfg.MongoURL, cfg.MongoDatabase)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to store: %v", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			slog.Error("error closing store client", "error", err)
		}
	}()

	emitter, err := broker.NewEmitter(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("Failed to connect to broker as a producer: %v", err)
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			slog.Error("error closing emitter", "error", err)
		}
	}()

	fanout := broker.NewFanout(cfg.KafkaBrokers, cfg.UniquePodID)

	signer, err := token.NewSigner(cfg.PublicKeysPEM, cfg.PrivateKeyPEM)
	if err != nil {
		log.Fatalf("Failed to import pem keys: %v", err)
	}

	commander := auth.NewCommander(emitter, st, signer)
	synchronizer := auth.NewSynchronizer(fanout, st)

	server := api.NewServer(&signer.Verifier)
	server.RegisterAuthRoutes(commander)

	slog.Info("auth service starting", "port", cfg.HTTPPort, "pod_id", cfg.UniquePodID)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		synchronizer.Run(ctx)
		return nil
	})
	group.Go(func() error {
		return server.Run(ctx, ":"+cfg.HTTPPort)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Service failed: %v", err)
	}
}
