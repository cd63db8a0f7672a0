package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eternisai/group-notifier/internal/config"
	"github.com/eternisai/group-notifier/internal/directory"
	"github.com/eternisai/group-notifier/internal/dispatch"
	"github.com/eternisai/group-notifier/internal/email"
	"github.com/eternisai/group-notifier/internal/events"
	"github.com/eternisai/group-notifier/internal/firebaseapp"
	"github.com/eternisai/group-notifier/internal/groups"
	"github.com/eternisai/group-notifier/internal/logger"
	"github.com/eternisai/group-notifier/internal/metrics"
	"github.com/eternisai/group-notifier/internal/notifications"
	"github.com/eternisai/group-notifier/internal/server"
	"github.com/eternisai/group-notifier/internal/sweep"
)

const sweepTimeout = 30 * time.Minute

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting group notifier",
		slog.String("project_id", cfg.FirebaseProjectID),
		slog.String("groups", cfg.GroupCollection),
		slog.Bool("push_enabled", cfg.PushNotificationsEnabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := firebaseapp.NewClients(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
	if err != nil {
		log.Error("failed to initialize firebase", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := clients.Close(); err != nil {
			log.Error("failed to close firestore client", slog.String("error", err.Error()))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	tokenStore := notifications.NewTokenStore(clients.Firestore, cfg.TokenCollection, log)
	gateway := notifications.NewGateway(clients.Messaging, log, cfg.PushNotificationsEnabled)
	repository := groups.NewRepository(clients.Firestore, cfg.GroupCollection)
	dir := directory.New(clients.Firestore, cfg.ProfileCollection, clients.Auth)

	opts := []dispatch.Option{
		dispatch.WithMetrics(m),
		dispatch.WithFanoutConcurrency(cfg.Dispatch.FanoutConcurrency),
	}

	if cfg.EmailEnabled() {
		mailer := email.NewMailer(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}, log)
		opts = append(opts, dispatch.WithMailer(mailer))
	}

	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = events.Connect(cfg.NatsURL, log)
		if err != nil {
			// Summaries are optional; keep dispatching without them.
			log.Warn("nats unavailable, dispatch results will not be published", slog.String("error", err.Error()))
		} else {
			opts = append(opts, dispatch.WithPublisher(events.NewPublisher(nc, cfg.NatsSubject, log)))
		}
	}

	engine := dispatch.NewEngine(tokenStore, gateway, repository, dir, log, opts...)
	pool := dispatch.NewPool(engine, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, cfg.Dispatch.Timeout, log)

	sweepJob := sweep.NewJob(tokenStore, cfg.Sweep.Retention, log, m)
	scheduler, err := sweep.NewScheduler(cfg.Sweep.Schedule, sweepJob, sweepTimeout, log)
	if err != nil {
		log.Error("failed to create sweep scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.Start()

	srv := server.New(":"+cfg.Port, registry, log)
	srv.Start()

	watcher := groups.NewWatcher(clients.Firestore, cfg.GroupCollection, cfg.Dispatch.WatchRetryDelay, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx, pool.Submit); err != nil {
			log.Error("group watcher exited", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down group notifier")

	// Stop intake first, then let queued events finish before tearing down
	// the clients they depend on.
	wg.Wait()
	pool.Shutdown()
	log.Info("dispatch pool drained")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server forced to shutdown", slog.String("error", err.Error()))
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Error("failed to drain nats connection", slog.String("error", err.Error()))
		}
	}

	log.Info("group notifier stopped")
}
