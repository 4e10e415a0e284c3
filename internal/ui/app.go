package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/liamwears/reeldeck/internal/browse"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/suggest"
)

type view int

const (
	viewBrowse view = iota
	viewFavorites
	viewWatchlist
	viewDetail
)

// Membership answers "is this movie in my collections" for list rows
type Membership interface {
	IsFavorite(id int) bool
	IsInWatchlist(id int) bool
	Annotate(movies []models.MovieSummary) []models.AnnotatedMovie
}

// Options configures a new App
type Options struct {
	Sort       models.SortOrder
	Theme      models.ThemeMode
	Username   string
	Debounce   time.Duration
	History    suggest.History
	Membership Membership
	Favorites  []models.MovieSummary
	Watchlist  []models.MovieSummary
	ImageURL   func(path *string) string
}

type detailState struct {
	id      int
	movie   models.MovieSummary
	detail  *models.MovieDetail
	err     error
	loading bool
	back    view
}

// inflight holds cancel funcs for outstanding requests. It is shared by every
// copy of the App so a newer request can cancel an older one.
type inflight struct {
	list    context.CancelFunc
	suggest context.CancelFunc
	detail  context.CancelFunc
}

func cancel(f *context.CancelFunc) {
	if *f != nil {
		(*f)()
		*f = nil
	}
}

// App is the root Bubble Tea model.
// It holds no services; all I/O goes through Commands and comes back as messages.
type App struct {
	ctx      context.Context
	cmds     Commands
	keys     keyMap
	help     help.Model
	inflight *inflight

	list       *browse.Controller
	typeahead  *suggest.Engine
	membership Membership
	imageURL   func(*string) string

	input    textinput.Model
	spinner  spinner.Model
	styles   Styles
	theme    models.ThemeMode
	username string

	view          view
	cursors       [4]int
	suggestCursor int
	genres        []models.Genre
	genreCursor   int
	collections   map[models.Collection][]models.MovieSummary
	detail        detailState

	notice string
	err    error
	width  int
	height int
}

// NewApp creates the root model. ctx bounds every request the App starts.
func NewApp(ctx context.Context, cmds Commands, opts Options) App {
	if !opts.Theme.IsValid() {
		opts.Theme = models.DefaultTheme
	}
	if opts.ImageURL == nil {
		opts.ImageURL = func(*string) string { return "" }
	}

	ti := textinput.New()
	ti.Placeholder = "Search for movies..."
	ti.Prompt = "/ "
	ti.CharLimit = 80

	s := spinner.New()
	s.Spinner = spinner.Dot

	return App{
		ctx:        ctx,
		cmds:       cmds,
		keys:       defaultKeyMap(),
		help:       help.New(),
		inflight:   &inflight{},
		list:       browse.New(opts.Sort),
		typeahead:  suggest.New(opts.History, opts.Debounce),
		membership: opts.Membership,
		imageURL:   opts.ImageURL,
		input:      ti,
		spinner:    s,
		styles:     NewStyles(opts.Theme),
		theme:      opts.Theme,
		username:   opts.Username,
		collections: map[models.Collection][]models.MovieSummary{
			models.CollectionFavorites: opts.Favorites,
			models.CollectionWatchlist: opts.Watchlist,
		},
		suggestCursor: -1,
	}
}

// Init loads the first page, genres and trending movies
func (a App) Init() tea.Cmd {
	var cmds []tea.Cmd
	if req, ok := a.list.Start(); ok {
		cmds = append(cmds, a.fetch(req))
	}
	if a.cmds.Bootstrap != nil {
		cmds = append(cmds, a.cmds.Bootstrap())
	}
	cmds = append(cmds, a.spinner.Tick)
	return tea.Batch(cmds...)
}

// fetch runs a list request, cancelling whichever list request is still out.
// Any older request is stale by the time a new one is issued.
func (a App) fetch(req browse.Request) tea.Cmd {
	cancel(&a.inflight.list)
	if a.cmds.Fetch == nil {
		return nil
	}
	ctx, stop := context.WithCancel(a.ctx)
	a.inflight.list = stop
	return a.cmds.Fetch(ctx, req)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.input.Width = msg.Width - 6
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case PageLoaded:
		if a.list.Apply(msg.Response) {
			a.clampCursor(viewBrowse)
		}
		return a, nil

	case DebounceElapsed:
		req, ok := a.typeahead.Fire(msg.Tick)
		if !ok || a.cmds.Suggest == nil {
			return a, nil
		}
		cancel(&a.inflight.suggest)
		ctx, stop := context.WithCancel(a.ctx)
		a.inflight.suggest = stop
		return a, a.cmds.Suggest(ctx, req)

	case SuggestionsLoaded:
		if a.typeahead.Resolve(msg.Result) {
			a.suggestCursor = -1
		}
		return a, nil

	case Bootstrapped:
		a.genres = msg.Genres
		a.typeahead.SetTrending(msg.Trending)
		if msg.Err != nil {
			a.err = msg.Err
		}
		return a, nil

	case DetailLoaded:
		if a.view == viewDetail && msg.ID == a.detail.id {
			a.detail.loading = false
			a.detail.detail = msg.Detail
			a.detail.err = msg.Err
		}
		return a, nil

	case CollectionChanged:
		a.collections[msg.Change.Collection] = msg.Change.Movies
		switch msg.Change.Collection {
		case models.CollectionFavorites:
			a.clampCursor(viewFavorites)
		case models.CollectionWatchlist:
			a.clampCursor(viewWatchlist)
		}
		if msg.Change.External {
			a.notice = fmt.Sprintf("%s updated from another session", msg.Change.Collection)
		}
		return a, nil

	case CollectionToggled:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		verb := "Removed from"
		if msg.Member {
			verb = "Added to"
		}
		a.notice = fmt.Sprintf("%s %s", verb, msg.Collection)
		return a, nil

	case ThemeChanged:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.theme = msg.Theme
		a.styles = NewStyles(msg.Theme)
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return a, tea.Quit
	}

	// Clear any notice or error on key press
	a.err = nil
	a.notice = ""

	if a.input.Focused() {
		return a.handleSearchKey(msg)
	}
	if a.view == viewDetail {
		return a.handleDetailKey(msg)
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Search):
		a.view = viewBrowse
		a.typeahead.Focus()
		a.suggestCursor = -1
		cmd := a.input.Focus()
		return a, cmd

	case key.Matches(msg, a.keys.Back):
		if a.view != viewBrowse || !a.list.State().Searching {
			return a, nil
		}
		a.typeahead.Clear()
		a.input.SetValue("")
		a.cursors[viewBrowse] = 0
		if req, ok := a.list.ClearSearch(); ok {
			return a, a.fetch(req)
		}
		return a, nil

	case key.Matches(msg, a.keys.Up):
		if a.cursors[a.view] > 0 {
			a.cursors[a.view]--
		}
		return a, nil

	case key.Matches(msg, a.keys.Down):
		if a.cursors[a.view] < len(a.rows(a.view))-1 {
			a.cursors[a.view]++
		}
		return a, nil

	case key.Matches(msg, a.keys.Open):
		if movie, ok := a.selected(); ok {
			return a.openDetail(movie)
		}
		return a, nil

	case key.Matches(msg, a.keys.Favorite):
		if movie, ok := a.selected(); ok {
			return a, a.toggle(models.CollectionFavorites, movie)
		}
		return a, nil

	case key.Matches(msg, a.keys.Watchlist):
		if movie, ok := a.selected(); ok {
			return a, a.toggle(models.CollectionWatchlist, movie)
		}
		return a, nil

	case key.Matches(msg, a.keys.ViewBrowse):
		a.view = viewBrowse
		return a, nil

	case key.Matches(msg, a.keys.ViewFav):
		a.view = viewFavorites
		a.clampCursor(viewFavorites)
		return a, nil

	case key.Matches(msg, a.keys.ViewWatch):
		a.view = viewWatchlist
		a.clampCursor(viewWatchlist)
		return a, nil

	case key.Matches(msg, a.keys.Theme):
		if a.cmds.ToggleTheme != nil {
			return a, a.cmds.ToggleTheme()
		}
		return a, nil
	}

	if a.view == viewBrowse {
		return a.handleBrowseKey(msg)
	}
	return a, nil
}

// handleBrowseKey covers the keys that drive the query state
func (a App) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		req browse.Request
		ok  bool
	)

	switch {
	case key.Matches(msg, a.keys.Sort):
		req, ok = a.list.SetSortOrder(a.list.State().Sort.Next())

	case key.Matches(msg, a.keys.GenreLeft):
		if a.genreCursor > 0 {
			a.genreCursor--
		}
		return a, nil

	case key.Matches(msg, a.keys.GenreRight):
		if a.genreCursor < len(a.genres)-1 {
			a.genreCursor++
		}
		return a, nil

	case key.Matches(msg, a.keys.GenreToggle):
		if len(a.genres) == 0 {
			return a, nil
		}
		req, ok = a.list.ToggleGenre(a.genres[a.genreCursor].ID)

	case key.Matches(msg, a.keys.More):
		req, ok = a.list.NextPage()

	case key.Matches(msg, a.keys.Retry):
		req, ok = a.list.Retry()
	}

	if !ok {
		return a, nil
	}
	if req.Page == 1 {
		a.cursors[viewBrowse] = 0
	}
	return a, a.fetch(req)
}

// handleSearchKey routes keys while the search box has focus
func (a App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.blurSearch()
		return a, nil

	case "up", "ctrl+p":
		if a.suggestCursor > -1 {
			a.suggestCursor--
		}
		return a, nil

	case "down", "ctrl+n", "tab":
		if a.typeahead.Open() && a.suggestCursor < len(a.typeahead.Suggestions())-1 {
			a.suggestCursor++
		}
		return a, nil

	case "enter":
		return a.commitSearch()
	}

	before := a.input.Value()
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	if a.input.Value() == before {
		return a, cmd
	}

	a.suggestCursor = -1
	tick, ok := a.typeahead.Input(a.input.Value())
	if !ok {
		return a, cmd
	}
	debounce := tea.Tick(a.typeahead.Window(), func(time.Time) tea.Msg {
		return DebounceElapsed{Tick: tick}
	})
	return a, tea.Batch(cmd, debounce)
}

// commitSearch runs the highlighted suggestion, or the typed text
func (a App) commitSearch() (tea.Model, tea.Cmd) {
	var (
		term string
		err  error
	)

	suggestions := a.typeahead.Suggestions()
	if a.typeahead.Open() && a.suggestCursor >= 0 && a.suggestCursor < len(suggestions) {
		term, err = a.typeahead.Select(a.ctx, suggestions[a.suggestCursor])
	} else {
		var ok bool
		term, ok, err = a.typeahead.Submit(a.ctx)
		if !ok {
			a.blurSearch()
			return a, nil
		}
	}
	if err != nil {
		// the search still runs; only the history write failed
		a.err = err
	}

	cancel(&a.inflight.suggest)
	a.input.SetValue(term)
	a.blurSearch()

	req, ok := a.list.Search(term)
	if !ok {
		return a, nil
	}
	a.cursors[viewBrowse] = 0
	return a, a.fetch(req)
}

func (a *App) blurSearch() {
	a.input.Blur()
	a.typeahead.Blur()
	a.suggestCursor = -1
}

// handleDetailKey routes keys on the detail view
func (a App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Back):
		cancel(&a.inflight.detail)
		a.view = a.detail.back
		return a, nil

	case key.Matches(msg, a.keys.Retry):
		if a.detail.err == nil {
			return a, nil
		}
		return a.openDetailFrom(a.detail.movie, a.detail.back)

	case key.Matches(msg, a.keys.Favorite):
		return a, a.toggle(models.CollectionFavorites, a.detailSummary())

	case key.Matches(msg, a.keys.Watchlist):
		return a, a.toggle(models.CollectionWatchlist, a.detailSummary())

	case key.Matches(msg, a.keys.Theme):
		if a.cmds.ToggleTheme != nil {
			return a, a.cmds.ToggleTheme()
		}
	}
	return a, nil
}

func (a App) openDetail(movie models.MovieSummary) (tea.Model, tea.Cmd) {
	return a.openDetailFrom(movie, a.view)
}

func (a App) openDetailFrom(movie models.MovieSummary, back view) (tea.Model, tea.Cmd) {
	cancel(&a.inflight.detail)
	a.view = viewDetail
	a.detail = detailState{id: movie.ID, movie: movie, loading: true, back: back}

	if a.cmds.Details == nil {
		return a, nil
	}
	ctx, stop := context.WithCancel(a.ctx)
	a.inflight.detail = stop
	return a, a.cmds.Details(ctx, movie.ID)
}

// detailSummary is the record stored when collecting from the detail view
func (a App) detailSummary() models.MovieSummary {
	if a.detail.detail != nil {
		return a.detail.detail.Summary()
	}
	return a.detail.movie
}

func (a App) toggle(c models.Collection, movie models.MovieSummary) tea.Cmd {
	if a.cmds.Toggle == nil {
		return nil
	}
	return a.cmds.Toggle(c, movie)
}

// rows returns the movies listed by v
func (a App) rows(v view) []models.MovieSummary {
	switch v {
	case viewBrowse:
		return a.list.State().Results
	case viewFavorites:
		return a.collections[models.CollectionFavorites]
	case viewWatchlist:
		return a.collections[models.CollectionWatchlist]
	}
	return nil
}

func (a App) selected() (models.MovieSummary, bool) {
	if a.view == viewDetail {
		return a.detailSummary(), true
	}
	rows := a.rows(a.view)
	c := a.cursors[a.view]
	if c < 0 || c >= len(rows) {
		return models.MovieSummary{}, false
	}
	return rows[c], true
}

func (a *App) clampCursor(v view) {
	n := len(a.rows(v))
	if a.cursors[v] >= n {
		a.cursors[v] = max(n-1, 0)
	}
}

// Cursor returns the cursor of the current list (for testing).
func (a App) Cursor() int {
	if a.view == viewDetail {
		return 0
	}
	return a.cursors[a.view]
}

// State returns the list's query state (for testing).
func (a App) State() browse.State {
	return a.list.State()
}
