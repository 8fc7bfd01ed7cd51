package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ratecard-service/internal/app"
	"ratecard-service/internal/config"
	"ratecard-service/internal/server"
	"ratecard-service/internal/store"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	} else {
		pg, err := store.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to db", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Error("migrate", "err", err)
			os.Exit(1)
		}
		st = pg
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app.App{
		Store:    st,
		Log:      log,
		Metrics:  app.NewMetrics(reg),
		Calendar: app.NewGoogleCalendarConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		Limiter:  app.NewRateLimiter(cfg.BookingRatePerMinute),
		Registry: reg,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	a.Routes(router, app.AuthMiddleware(log, cfg.StaticTokens, cfg.JWTSecret))

	err := server.Run(ctx, log, router, server.Options{
		Port:            cfg.Port,
		AllowedOrigins:  cfg.AllowedOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		log.Error("server", "err", err)
		os.Exit(1)
	}
}
