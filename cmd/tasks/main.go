package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kalpovskii/tasktracker/internal/app/handlers"
	"github.com/kalpovskii/tasktracker/internal/app/middleware"
	"github.com/kalpovskii/tasktracker/internal/app/repositories"
	"github.com/kalpovskii/tasktracker/internal/app/services"
	"github.com/kalpovskii/tasktracker/internal/config"
	"github.com/kalpovskii/tasktracker/internal/kafka"
	"github.com/kalpovskii/tasktracker/internal/logging"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer app.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(app.service, app.ready, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("task service started", slog.String("addr", srv.Addr), slog.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}

type application struct {
	service *services.TaskService
	ready   map[string]handlers.Pinger
	closers []io.Closer
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func setup(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{ready: map[string]handlers.Pinger{}}
	opts := []services.Option{services.WithLogger(logger)}

	var repo repositories.TaskRepository
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := repositories.OpenDB(ctx, cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db)

		pg := repositories.NewPostgresTaskRepo(db)
		if err := pg.Migrate(ctx); err != nil {
			app.close()
			return nil, err
		}
		app.ready["postgres"] = pg
		repo = pg
	default:
		repo = repositories.NewMemoryTaskRepo()
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, rdb)

		cache := repositories.NewRedisTaskCache(rdb)
		app.ready["redis"] = cache
		opts = append(opts, services.WithCache(cache, cfg.Cache.ListTTL))
	}

	if cfg.Kafka.Broker != "" {
		producer := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.Topic)
		app.closers = append(app.closers, producer)
		opts = append(opts, services.WithPublisher(producer))
	}

	app.service = services.NewTaskService(repo, opts...)
	return app, nil
}

func newRouter(service handlers.TaskService, ready map[string]handlers.Pinger, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.CORS(),
	)

	r.GET("/healthz", handlers.Healthz)
	r.GET("/readyz", handlers.Readyz(ready))

	handlers.NewTaskHandler(service, logger).Register(r)

	return r
}
