package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/eaglebank/usermanager/internal/config"
	"github.com/eaglebank/usermanager/internal/events"
	"github.com/eaglebank/usermanager/internal/handler"
	"github.com/eaglebank/usermanager/internal/logging"
	"github.com/eaglebank/usermanager/internal/middleware"
	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/password"
	redisClient "github.com/eaglebank/usermanager/internal/redis"
	"github.com/eaglebank/usermanager/internal/repository"
	"github.com/eaglebank/usermanager/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("failed to build logger", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("user service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher, err := password.New(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(logger)}

	// Redis connection (read model cache + event streaming)
	if cfg.RedisEnabled {
		redis, err := redisClient.NewClient(ctx, redisClient.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer redis.Close()

		opts = append(opts,
			service.WithViewCache(redisClient.NewViewCache[models.UserView](redis.Client, cfg.UserViewTTL, logger)),
			service.WithPublisher(events.NewPublisher(redis.Client, cfg.EventsMaxLen)),
		)
	}

	users := service.NewUserService(store, hasher, opts...)
	userHandler := handler.NewUserHandler(users, users)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	userHandler.Register(router.Group("/v1/users"))

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("user service starting", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "http shutdown")
	})
	return g.Wait()
}

// openStore returns the configured UserStore and a function releasing its
// resources.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.UserStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "ping database")
	}
	if cfg.RunMigrations {
		if err := repository.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repository.NewUserRepository(db), func() { _ = db.Close() }, nil
}
