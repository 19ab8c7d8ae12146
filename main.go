package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlfredDev/kontext/server/anomaly"
	"github.com/AlfredDev/kontext/server/billing"
	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/ledger"
	"github.com/AlfredDev/kontext/server/logger"
	"github.com/AlfredDev/kontext/server/metrics"
	"github.com/AlfredDev/kontext/server/redisclient"
	"github.com/AlfredDev/kontext/server/router"
	"github.com/AlfredDev/kontext/server/store"
	"github.com/AlfredDev/kontext/server/task"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("kontext server starting")

	var rc *redisclient.Client
	if client, err := redisclient.New(cfg); err != nil {
		log.Warn().Err(err).Msg("redis init failed — continuing without Redis")
	} else if err := client.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing without Redis")
	} else {
		rc = client
		log.Info().Msg("redis connected")
	}

	s := store.New()
	l := ledger.New(cfg.PlanAssignments, rc)
	tasks := task.New(s)
	anomalies := anomaly.New(s)

	billingClient := billing.NewClient(cfg.StripeSecretKey)
	mediator := billing.New(*cfg, billingClient, l)

	var reconciler *billing.Reconciler
	if cfg.ReconcileInterval > 0 {
		reconciler = billing.NewReconciler(billingClient, log, cfg.ReconcileInterval)
		mediator.SetReconciler(reconciler)
		reconciler.Start()
	}

	registry := metrics.New(log)

	deps := router.Dependencies{
		Store:     s,
		Ledger:    l,
		Tasks:     tasks,
		Anomalies: anomalies,
		Billing:   mediator,
		Redis:     rc,
		Metrics:   registry,
	}
	r := router.NewRouter(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("kontext server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	if reconciler != nil {
		reconciler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("kontext server stopped gracefully")
	}
}
