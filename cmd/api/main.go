package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kalpovskii/tasktracker/internal/app/gateway"
	"github.com/kalpovskii/tasktracker/internal/app/handlers"
	"github.com/kalpovskii/tasktracker/internal/app/middleware"
	"github.com/kalpovskii/tasktracker/internal/config"
	"github.com/kalpovskii/tasktracker/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateGateway(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.API.Timeout}
	proxy := gateway.NewProxy(cfg.API.UpstreamURL, client, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           newRouter(proxy, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("API started",
			slog.String("addr", srv.Addr),
			slog.String("upstream", cfg.API.UpstreamURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}

func newRouter(proxy *gateway.Proxy, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	r.GET("/healthz", handlers.Healthz)
	proxy.Register(r)

	return r
}
