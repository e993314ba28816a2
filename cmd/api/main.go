package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/maitracle/mindnote-server/internal/app"
	"github.com/maitracle/mindnote-server/internal/authpw"
	"github.com/maitracle/mindnote-server/internal/config"
	"github.com/maitracle/mindnote-server/internal/google"
	"github.com/maitracle/mindnote-server/internal/logging"
	"github.com/maitracle/mindnote-server/internal/search"
	"github.com/maitracle/mindnote-server/internal/store"
	"github.com/maitracle/mindnote-server/internal/tokencache"
)

func main() {
	cfg := config.Load()
	logger := logging.New().Level(cfg.LogLevel).Console(cfg.LogFormat).Make()
	ctx := logger.WithContext(context.Background())

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
	logger.Info().Msg("stopped")
}

// run returns instead of exiting so every deferred Close runs.
func run(ctx context.Context, cfg config.Config) error {
	logger := zerolog.Ctx(ctx)

	db, err := store.OpenWithPool(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxOpen: cfg.DBMaxOpenConns,
		MaxIdle: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	dataStore := store.NewPostgresStore(db)

	var googleClient google.Client = google.NewHTTPClient(cfg.GoogleEndpoint, cfg.GoogleTimeout)
	if cfg.GoogleFake {
		logger.Warn().Msg("using the fake google account lookup")
		googleClient = google.NewFake()
	}
	accounts := authpw.NewService(dataStore, googleClient, logger.With().Str("component", "accounts").Logger())

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, *logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger.With().Str("component", "search").Logger())
	searchService.ReindexAllFromPG(ctx, pgfts)

	var resolver *tokencache.Resolver
	var cache *tokencache.RedisCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err = tokencache.NewRedisCache(cfg.RedisURL, cfg.TokenCacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer cache.Close()
		logger.Info().Dur("ttl", cfg.TokenCacheTTL).Msg("token cache enabled")
		resolver = tokencache.NewResolver(cache, dataStore, *logger)
	} else {
		resolver = tokencache.NewResolver(nil, dataStore, *logger)
	}

	service := app.New(dataStore, accounts, resolver, searchService, *logger)
	if cache != nil {
		service.WithCache(cache)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, *logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	logger.Info().Str("addr", cfg.Addr).Msg("mindnote api listening")
	return serve(server, stop, *logger)
}

// serve runs server until it fails or stop fires, then shuts it down.
func serve(server *http.Server, stop <-chan os.Signal, logger zerolog.Logger) error {
	failed := make(chan error, 1)
	go func() { failed <- server.ListenAndServe() }()

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
