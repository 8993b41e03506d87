package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"ecowatch.org/internal/archive"
	"ecowatch.org/internal/config"
	"ecowatch.org/internal/httpapi"
	"ecowatch.org/internal/monitor"
	"ecowatch.org/internal/obs"
	"ecowatch.org/internal/store/pg"
	"ecowatch.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.Configure(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.OTelEndpoint, "ecowatch-api", version)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	deps := map[string]httpapi.Pinger{}
	var store monitor.Store
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		deps["postgres"] = pgStore
	} else {
		logger.Warn("ECOWATCH_PG_DSN not set, using in-memory store")
		store = monitor.NewInMemory()
	}

	live := stream.New()
	opts := []monitor.Option{monitor.WithPublisher(live)}
	if cfg.Influx.Enabled() {
		history := archive.NewInflux(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer history.Close()
		opts = append(opts, monitor.WithReadingArchive(history))
		deps["influx"] = history
	}
	if cfg.S3.Enabled() {
		images, err := archive.NewImages(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint)
		if err != nil {
			log.Fatalf("s3: %v", err)
		}
		opts = append(opts, monitor.WithImageStore(images))
	}
	svc := monitor.NewService(store, opts...)

	probe := httpapi.ReadyProbe{Deps: deps}
	api := httpapi.New(probe, version, svc, live, httpapi.Options{
		CORSOrigins:   cfg.CORSOrigins,
		RateBurst:     cfg.RateBurst,
		RatePerSec:    cfg.RateLimitRPS,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		TokenExchange: cfg.TokenExchange,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go health.Run(ctx, 10*time.Second)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc serve", "error", err)
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	logger.Info("ecowatch-api started", "version", version, "http", srv.Addr, "grpc", cfg.GRPCAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", "error", err)
	}
	logger.Info("stopped")
}
