package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nrjais/emquery/internal/api"
	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/config"
	"github.com/nrjais/emquery/internal/grpcapi"
	"github.com/nrjais/emquery/pkg/executor"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sample entities over HTTP and gRPC",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	slog.Info("Starting emquery server...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cat, closeSource, err := setupCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var wg sync.WaitGroup
	httpServer, err := startHTTPServer(&wg, cat, cfg)
	if err != nil {
		return err
	}
	grpcServer, err := startGRPCServer(&wg, cat, cfg)
	if err != nil {
		shutdownHTTP(httpServer)
		wg.Wait()
		return err
	}

	waitForShutdownSignal(ctx)
	slog.Info("Shutting down server...")

	shutdownHTTP(httpServer)
	grpcServer.GracefulStop()

	wg.Wait()
	slog.Info("Server stopped gracefully.")
	return nil
}

func setupCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, func(), error) {
	parser, err := newParser(cfg)
	if err != nil {
		return nil, nil, err
	}
	cat := catalog.New(parser, executor.New(executor.WithLogger(slog.Default())))
	closeSource, err := registerEntities(ctx, cfg, cat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register entities: %w", err)
	}
	return cat, closeSource, nil
}

func startHTTPServer(wg *sync.WaitGroup, cat *catalog.Catalog, cfg *config.Config) (*http.Server, error) {
	if cfg.Level() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	lis, err := net.Listen("tcp", cfg.HTTPPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", cfg.HTTPPort, err)
	}

	srv := &http.Server{
		Handler:           api.NewRouter(api.NewHandlers(cat, cfg.Compression.MinBytes)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("HTTP server listening", "addr", cfg.HTTPPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to serve HTTP", "error", err)
		}
	}()
	return srv, nil
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server did not shut down cleanly", "error", err)
	}
}

func startGRPCServer(wg *sync.WaitGroup, cat *catalog.Catalog, cfg *config.Config) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", cfg.GRPCPort, err)
	}

	s := grpcapi.NewServer(cat)
	reflection.Register(s)

	slog.Info("gRPC server listening", "addr", cfg.GRPCPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Serve(lis); err != nil {
			if !errors.Is(err, grpc.ErrServerStopped) {
				slog.Error("Failed to serve gRPC", "error", err)
			} else {
				slog.Info("gRPC server stopped gracefully.")
			}
		}
	}()
	return s, nil
}

func waitForShutdownSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
