package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/browse"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
	"github.com/liamwears/reeldeck/internal/suggest"
	"golang.org/x/sync/errgroup"
)

// Commands are the side effects the App can ask for. Each returns a tea.Cmd
// whose message reports the outcome, so the App never touches a service directly.
type Commands struct {
	Fetch       func(ctx context.Context, req browse.Request) tea.Cmd
	Suggest     func(ctx context.Context, req suggest.Request) tea.Cmd
	Bootstrap   func() tea.Cmd
	Details     func(ctx context.Context, id int) tea.Cmd
	Toggle      func(c models.Collection, movie models.MovieSummary) tea.Cmd
	ToggleTheme func() tea.Cmd
}

// ServiceCommands wires Commands to the real services
func ServiceCommands(ctx context.Context, catalog *services.CatalogService, store *services.CollectionStore, accounts *services.AccountService, logger *log.Logger) Commands {
	logger = logger.WithPrefix("ui")

	return Commands{
		Fetch: func(reqCtx context.Context, req browse.Request) tea.Cmd {
			return func() tea.Msg {
				resp := browse.Fetch(reqCtx, catalog, req)
				if resp.Err != nil && reqCtx.Err() == nil {
					logger.Warn("catalog request failed", "stream", req.Stream, "page", req.Page, "err", resp.Err)
				}
				return PageLoaded{Response: resp}
			}
		},

		Suggest: func(reqCtx context.Context, req suggest.Request) tea.Cmd {
			return func() tea.Msg {
				result := suggest.Result{Seq: req.Seq, Query: req.Query}
				page, err := catalog.Search(reqCtx, req.Query, 1)
				if err != nil {
					result.Err = err
				} else {
					result.Movies = page.Items
				}
				return SuggestionsLoaded{Result: result}
			}
		},

		Bootstrap: func() tea.Cmd {
			return func() tea.Msg {
				var msg Bootstrapped
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					genres, err := catalog.Genres(gctx)
					msg.Genres = genres
					return err
				})
				g.Go(func() error {
					page, err := catalog.Trending(gctx)
					if page != nil {
						msg.Trending = page.Items
					}
					return err
				})
				if err := g.Wait(); err != nil {
					logger.Warn("bootstrap failed", "err", err)
					msg.Err = err
				}
				return msg
			}
		},

		Details: func(reqCtx context.Context, id int) tea.Cmd {
			return func() tea.Msg {
				detail, err := catalog.Details(reqCtx, id)
				return DetailLoaded{ID: id, Detail: detail, Err: err}
			}
		},

		// The store publishes the change itself, so only the outcome is reported here.
		// This must stay asynchronous: the store's subscriber calls Program.Send.
		Toggle: func(c models.Collection, movie models.MovieSummary) tea.Cmd {
			return func() tea.Msg {
				member, err := store.Toggle(ctx, c, movie)
				if err != nil {
					logger.Error("failed to update collection", "collection", c, "id", movie.ID, "err", err)
				}
				return CollectionToggled{Collection: c, MovieID: movie.ID, Member: member, Err: err}
			}
		},

		ToggleTheme: func() tea.Cmd {
			return func() tea.Msg {
				theme, err := accounts.ToggleTheme(ctx)
				return ThemeChanged{Theme: theme, Err: err}
			}
		},
	}
}

// Forward sends every collection change to the running program.
// It returns the subscription's cancel function.
func Forward(p *tea.Program, store *services.CollectionStore) func() {
	return store.Subscribe(func(c services.CollectionChange) {
		p.Send(CollectionChanged{Change: c})
	})
}
