package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/bootstrap"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/config"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/services/approval"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/tracing"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "approval",
		Short:        "verification approval endpoint",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("ALERTS_CONFIG"), "YAML config file")
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "serve the approval link and admin routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	name := cfg.Service + "-approval"
	logger.Init(cfg.Log, name)
	log := logger.WithComponent("main")

	shutdownTracing, err := tracing.Init(cfg.Tracing, name)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, closeStore, err := bootstrap.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()
	if cfg.Approval.JWTSecret == "" {
		log.Warn().Msg("approval.jwt_secret not set, admin routes reject every request")
	}

	svc := approval.NewService(st, cfg.Approval.TokenTTL, nil)
	log.Info().Int("port", cfg.Approval.Port).Msg("approval service started")
	err = bootstrap.ServeHTTP(ctx, cfg.Approval.Port, approval.NewHandler(svc, []byte(cfg.Approval.JWTSecret)), cfg.HTTP)
	log.Info().Msg("shutting down...")
	return err
}
