package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/inventory-ledger/internal/adapter/handler"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/config"
	"github.com/rl1809/inventory-ledger/internal/logger"
	"github.com/rl1809/inventory-ledger/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: handler.ServiceName}).
			Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: handler.ServiceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.OpTimeout)
	store, closeStore, err := storage.OpenDocumentStore(openCtx, cfg, logg)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeStore())
		logg.Info(ctx, "store connections closed")
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.NewStoreUpGauge(reg, cfg.Store.Driver, store)

	// gRPC health
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, handler.NewGRPCHealthHandler(store))

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.App.GRPCAddr), "gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// HTTP health + metrics
	httpHandler := handler.NewHTTPHealthHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.App.HTTPAddr), "HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logg.Info(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	serveErr = multierr.Append(serveErr, httpServer.Shutdown(shutdownCtx))
	logg.Info(ctx, "HTTP server stopped")

	grpcServer.GracefulStop()
	logg.Info(ctx, "gRPC server stopped")

	return serveErr
}
