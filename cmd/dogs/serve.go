package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/dogquery/internal/app"
	"github.com/mohammed-shakir/dogquery/internal/core/server"
	"github.com/mohammed-shakir/dogquery/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/dogquery/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dog demo over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr, _ = cmd.Flags().GetString("addr")
			}
			log := newLogger(cfg, "dogs")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var metricsHandler http.Handler
			if cfg.MetricsEnabled {
				p, err := metrics.Init(metrics.Config{
					Runtime: true,
					Build: metrics.BuildInfo{
						Version:   Version,
						Revision:  os.Getenv("BUILD_REVISION"),
						BuildDate: os.Getenv("BUILD_DATE"),
					},
				})
				if err != nil {
					return fmt.Errorf("metrics: %w", err)
				}
				metricsHandler = p.Handler()
			}

			rt, err := app.Build(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					log.Warn("shutdown", "err", err)
				}
			}()

			log.Info("starting dogs",
				"addr", cfg.Addr,
				"version", Version,
				"graphql", cfg.GraphQLURL,
				"cache", cfg.CacheDriver,
				"photo_next", cfg.PhotoNext)

			if cfg.InvalidationEnabled {
				consumer := kafkaconsumer.New(kafkaconsumer.FromEnv(), log, rt)
				go func() {
					if err := consumer.Start(ctx); err != nil {
						log.Error("invalidation consumer stopped", "err", err)
					}
				}()
			}

			r := server.NewRouter(log)
			rt.Mount(r, metricsHandler)
			return server.Run(ctx, cfg.Addr, r, log)
		},
	}
	cmd.Flags().String("addr", "", "Listen address; overrides ADDR")
	return cmd
}
