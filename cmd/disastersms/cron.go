package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/disaster-sms/internal/adapter/redis"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

func newCollectCmd(a *app) *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Refresh every source into the cache once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCache(cmd.Context(), func(ctx context.Context, cache *redis.Store) error {
				clock := clockwork.NewRealClock()
				agg := a.aggregator(cache, a.completer(), clock, observability.NewMetrics())
				agg.Refresh(ctx, trigger)
				a.logger.Info("collection finished")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "message", "", "message to steer the news search, as if sent by a user")
	return cmd
}

func newSummarizeCmd(a *app) *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the cached data and store the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCache(cmd.Context(), func(ctx context.Context, cache *redis.Store) error {
				s := a.summarizer(cache, a.completer(), clockwork.NewRealClock(), observability.NewMetrics())
				text, err := s.Summarize(ctx, trigger)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "message", "", "user message to include in the prompt")
	return cmd
}

func (a *app) withCache(ctx context.Context, fn func(context.Context, *redis.Store) error) error {
	cache, err := redis.Connect(ctx, a.cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			a.logger.Error("redis close error", "error", err)
		}
	}()
	return fn(ctx, cache)
}
