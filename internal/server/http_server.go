package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
)

type Options struct {
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Handler wraps h with the CORS policy for the API.
func Handler(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "X-Google-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
	}).Handler(h)
}

// Run serves h until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, log *slog.Logger, h http.Handler, opts Options) error {
	addr := ":8080"
	if opts.Port != "" {
		addr = ":" + opts.Port
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(h, opts.AllowedOrigins),
		ReadTimeout:       7 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
