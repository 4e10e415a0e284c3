package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/config"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/logging"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
	"github.com/liamwears/reeldeck/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		if err := runTUI(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "reeldeck: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.NewStderr(cfg)
	if err := runCommand(ctx, cfg, logger.Logger, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Error("command failed", "command", args[0], "err", err)
		os.Exit(1)
	}
}

// runTUI runs the interactive client until the user quits or a signal arrives
func runTUI(ctx context.Context, cfg *config.Config) error {
	// The TUI owns the terminal, so logs go to a file
	logger, err := logging.NewFile(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("starting reeldeck", "env", cfg.App.Env, "storage", cfg.Storage.Driver)

	if err := cfg.ValidateCatalog(); err != nil {
		return err
	}

	p, err := openProfile(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer p.Close()

	limiter, closeLimiter, err := catalogLimiter(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	catalog := services.NewCatalogService(services.CatalogConfig{
		APIKey:            cfg.TMDB.APIKey,
		ReadAccessToken:   cfg.TMDB.ReadAccessToken,
		BaseURL:           cfg.TMDB.BaseURL,
		ImageBaseURL:      cfg.TMDB.ImageBaseURL,
		Language:          cfg.TMDB.Language,
		Timeout:           cfg.TMDB.Timeout,
		Limiter:           limiter,
		RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
		Burst:             cfg.TMDB.Burst,
		DetailCacheSize:   cfg.TMDB.DetailCacheSize,
		DetailCacheTTL:    cfg.TMDB.DetailCacheTTL,
		Logger:            logger.Logger,
	})

	membership := services.NewMembership(p.store)
	defer membership.Close()

	// Pick up writes from other reeldeck processes on the same profile
	if err := p.store.Watch(ctx); err != nil {
		return err
	}
	if err := p.history.Watch(ctx); err != nil {
		return err
	}

	theme, err := p.accounts.Theme(ctx)
	if err != nil {
		logger.Warn("failed to read theme, using default", "err", err)
	}

	app := ui.NewApp(ctx, ui.ServiceCommands(ctx, catalog, p.store, p.accounts, logger.Logger), ui.Options{
		Sort:       models.SortPopularity,
		Theme:      theme,
		Username:   currentUsername(ctx, p.accounts),
		Debounce:   cfg.Typeahead.Debounce,
		History:    p.history,
		Membership: membership,
		Favorites:  p.store.List(models.CollectionFavorites),
		Watchlist:  p.store.List(models.CollectionWatchlist),
		ImageURL:   catalog.ImageURL,
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := ui.Forward(program, p.store)
	defer unsubscribe()

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		logger.Info("shutting down", "reason", ctx.Err())
		return nil
	}
	if err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}

	logger.Info("reeldeck exited")
	return nil
}

// profile is the local state of one user and the services built on it
type profile struct {
	driver   string
	kv       database.KV
	store    *services.CollectionStore
	history  *services.SearchHistory
	accounts *services.AccountService
}

func openProfile(ctx context.Context, cfg *config.Config, logger *log.Logger) (*profile, error) {
	kv, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}
	if err := kv.Health(ctx); err != nil {
		kv.Close()
		return nil, fmt.Errorf("local state %s is unreachable: %w", cfg.Storage.Driver, err)
	}

	store, err := services.NewCollectionStore(ctx, kv, logger)
	if err != nil {
		kv.Close()
		return nil, err
	}
	history, err := services.NewSearchHistory(ctx, kv, logger)
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &profile{
		driver:   cfg.Storage.Driver,
		kv:       kv,
		store:    store,
		history:  history,
		accounts: services.NewAccountService(kv, logger),
	}, nil
}

// Close closes the local state
func (p *profile) Close() error {
	return p.kv.Close()
}

// catalogLimiter shares one TMDB quota across processes when Redis is available.
// A nil limiter makes the catalog fall back to its in-process token bucket.
func catalogLimiter(ctx context.Context, cfg *config.Config, logger *log.Logger) (services.Limiter, func(), error) {
	if cfg.Storage.Driver != config.DriverRedis {
		return nil, func() {}, nil
	}

	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	perSecond := max(int(cfg.TMDB.RequestsPerSecond), 1)
	limiter := services.NewRedisRateLimiter(client.Client, cfg.Redis.KeyPrefix+"ratelimit:tmdb", perSecond, time.Second)
	return limiter, func() { client.Close() }, nil
}

func currentUsername(ctx context.Context, accounts *services.AccountService) string {
	loggedIn, err := accounts.LoggedIn(ctx)
	if err != nil || !loggedIn {
		return ""
	}
	user, err := accounts.CurrentUser(ctx)
	if err != nil {
		return ""
	}
	return user.Username
}
