package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/city-weather/internal/api"
	"github.com/neexbeast/city-weather/internal/config"
	"github.com/neexbeast/city-weather/internal/provider"
	"github.com/neexbeast/city-weather/internal/search"
	"github.com/neexbeast/city-weather/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.OpenWeatherAPIKey == "" {
		log.Warn("OPENWEATHER_API_KEY not set; weather lookups will fail")
	}

	// Wire dependencies.
	cities := provider.NewCityClient()
	if cfg.CitySearchURL != "" {
		cities = provider.NewCityClientWithURL(cfg.CitySearchURL)
	}
	weatherClient := provider.NewWeatherClient(cfg.OpenWeatherAPIKey)
	if cfg.WeatherURL != "" {
		weatherClient = provider.NewWeatherClientWithURL(cfg.WeatherURL, cfg.OpenWeatherAPIKey)
	}

	sessions := session.NewStore(func() *search.Controller {
		return search.New(cities,
			search.WithDebounce(cfg.SearchDebounce),
			search.WithLogger(log),
		)
	}, cfg.SessionIdleTTL, log)

	handlers := api.NewHandlers(sessions, weatherClient, log)
	router := api.NewRouter(handlers, sessions, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				err = fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gCtx, cfg.ReapInterval)
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server shut down cleanly")
	return nil
}
