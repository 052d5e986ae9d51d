// Package bootstrap wires the shared infrastructure of the service binaries
// from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/config"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/lock"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/notify"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

// Backend is a store that also serves the latest sensor readings.
type Backend interface {
	store.Store
	store.ReadingSource
}

// OpenStore returns the configured store and its closer.
func OpenStore(cfg config.DatabaseConfig) (Backend, func() error, error) {
	switch cfg.Driver {
	case "memory":
		logger.Logger.Warn().Msg("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() error { return nil }, nil
	case "mysql":
		s, err := store.OpenMySQL(cfg.DSN, cfg.MaxOpen, cfg.AutoMigrate)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// OpenLocker returns a Redis lock when an address is configured, an
// in-process one otherwise.
func OpenLocker(ctx context.Context, cfg config.RedisConfig) (lock.Locker, func() error, error) {
	if cfg.Addr == "" {
		return lock.NewLocal(), func() error { return nil }, nil
	}
	rdb, err := lock.Dial(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Logger.Info().Str("addr", cfg.Addr).Msg("redis locks enabled")
	return lock.NewRedis(rdb, cfg.LockTTL), rdb.Close, nil
}

func NewMailer(cfg config.MailConfig) notify.Mailer {
	if cfg.Host == "" {
		logger.Logger.Warn().Msg("mail host not set, admin mails disabled")
		return notify.DisabledMailer{}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
	})
}

func NewFCMGateway(cfg config.PushConfig) *notify.FCMGateway {
	return notify.NewFCMGateway(notify.FCMConfig{
		Endpoint:        cfg.Endpoint,
		ProjectID:       cfg.ProjectID,
		AccessToken:     cfg.AccessToken,
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
		BreakerFailures: cfg.BreakerFailures,
		BreakerOpenFor:  cfg.BreakerOpenFor,
	})
}

// ServeHTTP serves h until ctx is done, then shuts down gracefully.
func ServeHTTP(ctx context.Context, port int, h http.Handler, cfg config.HTTPConfig) error {
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Logger.Info().Int("port", port).Msg("HTTP listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shCtx)
}

// HealthServer exposes the standard gRPC health service.
type HealthServer struct {
	srv     *grpc.Server
	health  *health.Server
	service string
}

// StartHealth listens on port and reports service as SERVING.
func StartHealth(port int, service string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc health: %w", err)
	}
	h := &HealthServer{srv: grpc.NewServer(), health: health.NewServer(), service: service}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		logger.Logger.Info().Int("port", port).Msg("gRPC health listening")
		if err := h.srv.Serve(lis); err != nil {
			logger.Logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()
	return h, nil
}

// Stop flips every service to NOT_SERVING and stops the server.
func (h *HealthServer) Stop() {
	if h == nil {
		return
	}
	h.health.Shutdown()
	h.srv.GracefulStop()
}
