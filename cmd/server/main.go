// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/19dig/internal/api/rest"
	"github.com/osa030/19dig/internal/app/aggregator"
	"github.com/osa030/19dig/internal/app/filter"
	"github.com/osa030/19dig/internal/app/interaction"
	"github.com/osa030/19dig/internal/app/library"
	"github.com/osa030/19dig/internal/app/personalize"
	"github.com/osa030/19dig/internal/app/source"
	"github.com/osa030/19dig/internal/infra/cache"
	"github.com/osa030/19dig/internal/infra/config"
	"github.com/osa030/19dig/internal/infra/credential"
	"github.com/osa030/19dig/internal/infra/lastfm"
	"github.com/osa030/19dig/internal/infra/logger"
	"github.com/osa030/19dig/internal/infra/spotify"
	"github.com/osa030/19dig/internal/infra/store"
)

var (
	app        = kingpin.New("19dig-server", "19dig music discovery server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %+v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output:     cfg.Log.Output,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := filter.NewDefaultChain(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer db.Close()

	responses, closeCache, err := newResponseCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache.Close()

	tokens, err := credential.NewClientCredentials(credential.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Margin:       cfg.Spotify.TokenMargin,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify credentials")
	}
	spotifyClient, err := spotify.New(spotify.Config{
		Market:  cfg.Spotify.Market,
		BaseURL: cfg.Spotify.BaseURL,
		Timeout: cfg.Spotify.Timeout,
	}, tokens, responses)
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	lastfmClient, err := lastfm.New(lastfm.Config{
		APIKey:            cfg.LastFM.APIKey,
		BaseURL:           cfg.LastFM.BaseURL,
		RequestsPerSecond: cfg.LastFM.RequestsPerSecond,
		Timeout:           cfg.LastFM.Timeout,
	}, responses)
	if err != nil {
		return errors.Wrap(err, "failed to create Last.fm client")
	}

	breaker := source.BreakerConfig{
		FailureThreshold: cfg.Aggregator.Breaker.FailureThreshold,
		MaxRequests:      cfg.Aggregator.Breaker.MaxRequests,
		Interval:         cfg.Aggregator.Breaker.Interval,
		Timeout:          cfg.Aggregator.Breaker.Timeout,
	}
	agg := aggregator.New(
		source.WithBreaker(source.NewSpotify(spotifyClient), breaker),
		source.WithBreaker(source.NewLastFM(lastfmClient), breaker),
		source.NewLocal(db),
		db,
		chain,
		aggregator.Config{
			BranchTimeout: cfg.Aggregator.BranchTimeout,
			Policy:        personalize.DefaultPolicy(),
		},
	)

	handler := rest.NewHandler(
		agg,
		interaction.New(db),
		library.New(db, lastfmClient),
		lastfmClient,
		db,
	)
	router := rest.NewRouter(handler, rest.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Auth:        rest.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.UserClaim, cfg.Auth.Issuer),
	})

	// h2c keeps HTTP/2 available behind TLS-terminating proxies
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// newResponseCache builds the provider response cache for the configured backend.
func newResponseCache(ctx context.Context, cfg config.CacheConfig) (*cache.Cache, io.Closer, error) {
	if cfg.Backend == "redis" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create response cache")
		}
		zlog.Info().Msgf("Using redis response cache: addr=%s", cfg.RedisAddr)
		return cache.New(rs, cfg.TTL), rs, nil
	}
	zlog.Info().Msgf("Using in-memory response cache: max_entries=%d", cfg.MaxEntries)
	return cache.New(cache.NewMemoryStore(cfg.MaxEntries), cfg.TTL), closerFunc(func() error { return nil }), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
