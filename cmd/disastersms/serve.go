package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/disaster-sms/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-sms/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-sms/internal/adapter/redis"
	"github.com/couchcryptid/disaster-sms/internal/adapter/twilio"
	"github.com/couchcryptid/disaster-sms/internal/observability"
	"github.com/couchcryptid/disaster-sms/internal/pipeline"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Twilio webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if err := a.cfg.ValidateServe(); err != nil {
		return err
	}
	logger := a.logger
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := redis.Connect(ctx, a.cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}()

	completer := a.completer()
	handler := pipeline.NewHandler(
		twilio.NewValidator(a.cfg.TwilioAuthToken),
		a.aggregator(cache, completer, clock, metrics),
		a.summarizer(cache, completer, clock, metrics),
		a.notifier(clock, metrics),
		logger,
		metrics,
	)

	var status httpadapter.StatusPublisher
	if a.cfg.StatusEnabled() {
		publisher := kafkaadapter.NewStatusPublisher(a.cfg, clock, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		status = publisher
		logger.Info("status publishing enabled", "topic", a.cfg.StatusTopic, "brokers", a.cfg.KafkaBrokers)
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:          a.cfg.HTTPAddr,
		PublicBaseURL: a.cfg.PublicBaseURL,
	}, handler, cache, status, logger, metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
