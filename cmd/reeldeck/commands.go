package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/config"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
)

var errUsage = errors.New("usage")

const usage = `usage: reeldeck [command]

Without a command reeldeck starts the terminal client.

commands:
  migrate [down]                        apply (or roll back) the postgres schema
  signup <username> <password> <confirm> register the local account
  login <username> <password>           log in to the local account
  logout                                log out
  whoami                                show the logged in user
  theme [light|dark|toggle]             show or change the colour scheme
  favorites                             list favorite movies
  watchlist                             list the watchlist
  history [clear]                       show or clear recent searches
  status                                check the local state backend
`

// runCommand runs a one-shot CLI command against the local profile
func runCommand(ctx context.Context, cfg *config.Config, logger *log.Logger, args []string) error {
	if args[0] == "migrate" {
		return runMigrations(ctx, cfg, logger, args[1:])
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return errUsage
	}

	p, err := openProfile(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	return dispatch(ctx, p, os.Stdout, args)
}

func dispatch(ctx context.Context, p *profile, out io.Writer, args []string) error {
	switch args[0] {
	case "signup":
		if len(args) != 4 {
			return errUsage
		}
		user, err := p.accounts.Signup(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Registered %s. Run `reeldeck login` to sign in.\n", user.Username)

	case "login":
		if len(args) != 3 {
			return errUsage
		}
		user, err := p.accounts.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s\n", user.Username)

	case "logout":
		if err := p.accounts.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out")

	case "whoami":
		if name := currentUsername(ctx, p.accounts); name != "" {
			fmt.Fprintln(out, name)
		} else {
			fmt.Fprintln(out, "not logged in")
		}

	case "theme":
		return runTheme(ctx, p.accounts, out, args[1:])

	case "favorites":
		printMovies(out, p.store.List(models.CollectionFavorites), "No favorites yet.")

	case "watchlist":
		printMovies(out, p.store.List(models.CollectionWatchlist), "Your watchlist is empty.")

	case "history":
		if len(args) > 1 {
			if args[1] != "clear" {
				return errUsage
			}
			if err := p.history.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Search history cleared")
			return nil
		}
		terms := p.history.Terms()
		if len(terms) == 0 {
			fmt.Fprintln(out, "No recent searches.")
		}
		for _, term := range terms {
			fmt.Fprintln(out, term)
		}

	case "status":
		if err := p.kv.Health(ctx); err != nil {
			fmt.Fprintf(out, "storage: %s unreachable: %v\n", p.driver, err)
			return err
		}
		fmt.Fprintf(out, "storage: %s ok\n", p.driver)
		fmt.Fprintf(out, "favorites: %d\nwatchlist: %d\nrecent searches: %d\n",
			len(p.store.List(models.CollectionFavorites)),
			len(p.store.List(models.CollectionWatchlist)),
			len(p.history.Terms()))

	default:
		return errUsage
	}
	return nil
}

func runTheme(ctx context.Context, accounts *services.AccountService, out io.Writer, args []string) error {
	if len(args) == 0 {
		theme, err := accounts.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, theme)
		return nil
	}

	var (
		theme models.ThemeMode
		err   error
	)
	switch args[0] {
	case "toggle":
		theme, err = accounts.ToggleTheme(ctx)
	case string(models.ThemeLight), string(models.ThemeDark):
		theme = models.ThemeMode(args[0])
		err = accounts.SetTheme(ctx, theme)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Theme set to %s\n", theme)
	return nil
}

func printMovies(out io.Writer, movies []models.MovieSummary, empty string) {
	if len(movies) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	for _, m := range movies {
		title := m.Title
		if year := m.Year(); year != "" {
			title += " (" + year + ")"
		}
		fmt.Fprintf(out, "%8d  %-50s ★ %.1f\n", m.ID, title, m.VoteAverage)
	}
}

// runMigrations applies or rolls back the postgres local state schema
func runMigrations(ctx context.Context, cfg *config.Config, logger *log.Logger, args []string) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required to run migrations")
	}

	db, err := database.New(ctx, database.Config{URL: cfg.Database.URL}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Pool, logger)

	if len(args) > 0 && args[0] == "down" {
		if err := migrator.Down(ctx); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		logger.Info("rolled back last migration")
		return nil
	}
	if len(args) > 0 {
		return errUsage
	}

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations completed successfully")
	return nil
}
