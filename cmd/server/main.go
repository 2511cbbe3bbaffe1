package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/stockpilot/internal/adapter/bridge"
	"github.com/rl1809/stockpilot/internal/adapter/handler"
	"github.com/rl1809/stockpilot/internal/adapter/storage"
	"github.com/rl1809/stockpilot/internal/config"
	"github.com/rl1809/stockpilot/internal/logger"
	"github.com/rl1809/stockpilot/internal/panel"
	"github.com/rl1809/stockpilot/internal/port"
)

const (
	sweepInterval = time.Minute
	probeInterval = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewForEnvironment(cfg.App.Env, logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Pinger{}

	// Tab storage
	var tabs port.TabStore
	switch cfg.Storage.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
		tabs = storage.NewRedisTabs(rdb, cfg.Redis.TabTTL)
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	default:
		tabs = storage.NewMemoryTabs()
	}

	// Preferences
	var prefs port.PreferenceRepository
	switch cfg.Preferences.Backend {
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		log.Info("connected to mysql")

		repo := storage.NewMySQLPreferenceRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate preferences: %w", err)
		}
		prefs = repo
		checks["mysql"] = handler.PingFunc(db.PingContext)
	default:
		prefs = storage.NewMemoryPreferenceRepository()
	}

	if !cfg.BridgeEnabled() {
		log.Warn("bridge credentials not configured, outbound calls will be anonymous")
	}

	deps := panel.Deps{
		APIBaseURL:  cfg.API.BaseURL,
		AdminDomain: cfg.Platform.AdminDomain,
		Credentials: bridge.Credentials{
			Key:      cfg.Bridge.APIKey,
			Secret:   cfg.Bridge.APISecret,
			TokenTTL: cfg.Bridge.TokenTTL,
		},
		HTTPClient:  &http.Client{Timeout: cfg.API.Timeout},
		Preferences: prefs,
		Logger:      log,
	}

	registry := panel.NewRegistry()
	httpHandler := handler.NewHTTPHandler(registry, tabs, deps, cfg.FrameAncestors())
	grpcHandler := handler.NewGRPCHandler(checks, log)

	grpcServer := grpc.NewServer()
	grpcHandler.Register(grpcServer)

	httpServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("gRPC server listening", zap.String("port", cfg.GRPC.Port))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("port", cfg.App.Port))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sweep := time.NewTicker(sweepInterval)
		probe := time.NewTicker(probeInterval)
		defer sweep.Stop()
		defer probe.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sweep.C:
				if n := registry.Sweep(cfg.App.PageIdleTimeout); n > 0 {
					log.Debug("swept idle pages", zap.Int("count", n), zap.Int("remaining", registry.Len()))
				}
			case <-probe.C:
				grpcHandler.Probe(gctx)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		grpcHandler.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown failed", zap.Error(err))
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	return g.Wait()
}
