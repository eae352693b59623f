package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/beacons-backend-go/internal/analysis"
	"github.com/jengzang/beacons-backend-go/internal/api"
	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/database"
	"github.com/jengzang/beacons-backend-go/internal/ingest"
	"github.com/jengzang/beacons-backend-go/internal/logger"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/repository"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	if err := database.Init(database.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	repo := repository.NewExpandoRepository(database.GetDB())

	// 会话缓存
	cache, err := session.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer cache.Close()

	// 面板间事件总线
	eventBus, err := newBus(ctx, cfg.Bus)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	m := metrics.New()
	svc := service.NewDashboardService(service.Options{
		Repo:         repo,
		Bus:          eventBus,
		Cache:        cache,
		Aggregation:  analysis.Options{IncludeLastBucket: cfg.Aggregation.IncludeLastBucket},
		Metrics:      m,
		PollInterval: time.Second,
		Limits: panel.Limits{
			MaxSessions: cfg.Session.MaxSessions,
			IdleTimeout: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		},
	})
	defer svc.Close()

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           api.SetupRouter(cfg, svc, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Port).Str("bus", cfg.Bus.Driver).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Kafka 数据接入
	if cfg.Ingest.Enabled {
		consumer, err := ingest.NewConsumer(cfg.Ingest, repo, cfg.Tenant.DefaultCompanyID, m)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}

	return g.Wait()
}

func newBus(ctx context.Context, cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Driver {
	case "", "memory":
		return bus.NewMemoryBus(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return bus.NewRedisBus(client), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
