package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/gateway"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/logger"
	"github.com/scholfa/MLOpsEmotion/internal/server"
	"github.com/scholfa/MLOpsEmotion/internal/trigger"
)

func main() {
	_ = godotenv.Load() // loads .env

	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	log := logger.New()
	log.WithField("service", "emotiond").Info("starting service")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.WithError(err).Fatal("could not create data directories")
	}

	// Only one daemon per data directory; the ledger's in-flight gate
	// assumes a single ingestion front door.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		log.WithError(err).Fatal("could not acquire daemon lock")
	}
	if !locked {
		log.WithField("lock", cfg.LockPath()).Fatal("another emotiond instance holds the lock")
	}
	defer lock.Unlock()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		log.WithError(err).Fatal("could not open submission ledger")
	}
	defer store.Close()

	// The daemon serves uploads even while the backend warms up; the probe
	// only reports readiness.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.ModelVersion,
			time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
		if err := gw.WaitHealthy(ctx); err != nil {
			log.WithError(err).Warn("inference backend not reachable yet")
			return
		}
		log.WithField("backend", cfg.Gateway.BaseURL).Info("inference backend healthy")
	}()

	srv := &http.Server{
		Addr:         cfg.Paths.APIBind,
		Handler:      server.New(cfg, store, buildTrigger(cfg)).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("shutdown did not finish cleanly")
		}
		close(done)
	}()

	log.WithField("addr", cfg.Paths.APIBind).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
	<-done
}

func buildTrigger(cfg *config.Config) trigger.Trigger {
	if cfg.Trigger.Transport == "cli" {
		return trigger.NewCLITrigger(cfg.Trigger.Command)
	}
	return trigger.NewHTTPTrigger(
		cfg.Trigger.APIURL,
		cfg.Trigger.DeploymentID,
		time.Duration(cfg.Trigger.TimeoutSeconds)*time.Second,
	)
}
