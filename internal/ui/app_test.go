package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/liamwears/reeldeck/internal/browse"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/logging"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
	"github.com/liamwears/reeldeck/internal/suggest"
)

// mockCmd records what the App asked for.
type mockCmd struct {
	fetched   []browse.Request
	fetchCtx  []context.Context
	suggested []suggest.Request
	details   []int
	toggled   []models.Collection
	movies    []models.MovieSummary
	themes    int
	booted    bool
}

func (m *mockCmd) commands() Commands {
	return Commands{
		Fetch: func(ctx context.Context, req browse.Request) tea.Cmd {
			m.fetched = append(m.fetched, req)
			m.fetchCtx = append(m.fetchCtx, ctx)
			return func() tea.Msg { return nil }
		},
		Suggest: func(ctx context.Context, req suggest.Request) tea.Cmd {
			m.suggested = append(m.suggested, req)
			return func() tea.Msg { return nil }
		},
		Bootstrap: func() tea.Cmd {
			m.booted = true
			return func() tea.Msg { return Bootstrapped{} }
		},
		Details: func(ctx context.Context, id int) tea.Cmd {
			m.details = append(m.details, id)
			return func() tea.Msg { return nil }
		},
		Toggle: func(c models.Collection, movie models.MovieSummary) tea.Cmd {
			m.toggled = append(m.toggled, c)
			m.movies = append(m.movies, movie)
			return func() tea.Msg { return nil }
		},
		ToggleTheme: func() tea.Cmd {
			m.themes++
			return func() tea.Msg { return nil }
		},
	}
}

func (m *mockCmd) lastFetch(t *testing.T) browse.Request {
	t.Helper()
	if len(m.fetched) == 0 {
		t.Fatal("no fetch issued")
	}
	return m.fetched[len(m.fetched)-1]
}

type fakeMembership map[int]bool

func (f fakeMembership) IsFavorite(id int) bool    { return f[id] }
func (f fakeMembership) IsInWatchlist(id int) bool { return false }

func (f fakeMembership) Annotate(movies []models.MovieSummary) []models.AnnotatedMovie {
	out := make([]models.AnnotatedMovie, len(movies))
	for i, m := range movies {
		out[i] = models.AnnotatedMovie{MovieSummary: m, Favorite: f[m.ID]}
	}
	return out
}

func newTestApp(t *testing.T, opts Options) (App, *mockCmd) {
	t.Helper()
	mock := &mockCmd{}
	if opts.Debounce == 0 {
		opts.Debounce = time.Millisecond
	}
	app := NewApp(context.Background(), mock.commands(), opts)
	app.Init()
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return model.(App), mock
}

func send(t *testing.T, app App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	model, cmd := app.Update(msg)
	return model.(App), cmd
}

func press(t *testing.T, app App, keys string) App {
	t.Helper()
	for _, r := range keys {
		app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return app
}

func pageFor(req browse.Request, first, n, totalPages int) PageLoaded {
	items := make([]models.MovieSummary, n)
	for i := range items {
		items[i] = models.MovieSummary{ID: first + i, Title: fmt.Sprintf("Movie %d", first+i), VoteAverage: 7.5}
	}
	return PageLoaded{Response: browse.Response{
		Seq:    req.Seq,
		Stream: req.Stream,
		Page:   &models.MoviePage{Page: req.Page, Items: items, TotalPages: totalPages},
	}}
}

// debounceTick runs cmd and returns the typeahead tick it eventually produces
func debounceTick(t *testing.T, cmd tea.Cmd) DebounceElapsed {
	t.Helper()
	msgs := make(chan tea.Msg, 16)
	var launch func(c tea.Cmd)
	launch = func(c tea.Cmd) {
		if c == nil {
			return
		}
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, inner := range batch {
					launch(inner)
				}
				return
			}
			select {
			case msgs <- msg:
			default:
			}
		}()
	}
	launch(cmd)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-msgs:
			if d, ok := msg.(DebounceElapsed); ok {
				return d
			}
		case <-deadline:
			t.Fatal("no debounce tick produced")
		}
	}
}

func TestAppInit(t *testing.T) {
	mock := &mockCmd{}
	app := NewApp(context.Background(), mock.commands(), Options{})

	if cmd := app.Init(); cmd == nil {
		t.Fatal("Init should return a command")
	}
	if !mock.booted {
		t.Error("Init should bootstrap genres and trending")
	}
	req := mock.lastFetch(t)
	if req.Page != 1 || req.Sort != models.SortPopularity || req.Stream != browse.StreamBrowse {
		t.Errorf("first fetch = %+v", req)
	}
}

func TestAppSortChangeCancelsAndDropsOldPage(t *testing.T) {
	app, mock := newTestApp(t, Options{})
	first := mock.lastFetch(t)

	app = press(t, app, "s")
	second := mock.lastFetch(t)
	if second.Sort != models.SortTopRated || second.Page != 1 {
		t.Fatalf("fetch after s = %+v", second)
	}
	if mock.fetchCtx[0].Err() == nil {
		t.Error("the superseded request was not cancelled")
	}

	app, _ = send(t, app, pageFor(first, 1, 20, 5))
	if got := len(app.State().Results); got != 0 {
		t.Fatalf("stale page applied: %d results", got)
	}
	app, _ = send(t, app, pageFor(second, 100, 20, 5))
	if st := app.State(); len(st.Results) != 20 || st.Results[0].ID != 100 {
		t.Errorf("State() = %d results", len(st.Results))
	}
}

func TestAppNavigationAndDetailNotFound(t *testing.T) {
	app, mock := newTestApp(t, Options{})
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 1, 3, 1))

	app = press(t, app, "j")
	if app.Cursor() != 1 {
		t.Fatalf("j should move cursor to 1, got %d", app.Cursor())
	}
	app = press(t, app, "jjj")
	if app.Cursor() != 2 {
		t.Errorf("cursor should stop at the last row, got %d", app.Cursor())
	}
	app = press(t, app, "k")

	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if len(mock.details) != 1 || mock.details[0] != 2 {
		t.Fatalf("details requested for %v, want [2]", mock.details)
	}

	notFound := &services.CatalogError{Op: "details", Kind: services.ErrNotFound, Status: 404}
	app, _ = send(t, app, DetailLoaded{ID: 2, Err: notFound})
	out := app.View()
	if !strings.Contains(out, "Movie not found") || !strings.Contains(out, "esc go back") {
		t.Errorf("detail view does not show the failure state:\n%s", out)
	}

	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.view != viewBrowse || app.Cursor() != 1 {
		t.Errorf("esc should return to the list at row 1, view = %v cursor = %d", app.view, app.Cursor())
	}
}

func TestAppIgnoresDetailForAnotherMovie(t *testing.T) {
	app, mock := newTestApp(t, Options{})
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 1, 3, 1))
	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	other := &models.MovieDetail{MovieSummary: models.MovieSummary{ID: 99, Title: "Elsewhere"}}
	app, _ = send(t, app, DetailLoaded{ID: 99, Detail: other})
	if !app.detail.loading {
		t.Error("a detail for another movie was applied")
	}

	runtime := 148
	detail := &models.MovieDetail{
		MovieSummary:   models.MovieSummary{ID: 1, Title: "Movie 1"},
		RuntimeMinutes: &runtime,
		Genres:         []models.Genre{{ID: 28, Name: "Action"}},
		Crew:           []models.CrewMember{{ID: 5, Name: "Christopher Nolan", Job: "Director"}},
	}
	app, _ = send(t, app, DetailLoaded{ID: 1, Detail: detail})
	out := app.View()
	for _, want := range []string{"Movie 1", "2h 28m", "Christopher Nolan"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail view missing %q", want)
		}
	}

	app = press(t, app, "f")
	if len(mock.movies) != 1 || len(mock.movies[0].GenreIDs) != 1 {
		t.Errorf("favorite from detail stored %+v, want the summary with genre ids", mock.movies)
	}
}

func TestAppSearchAndRestore(t *testing.T) {
	history, err := services.NewSearchHistory(context.Background(), database.NewMemoryKV(), logging.Discard())
	if err != nil {
		t.Fatalf("NewSearchHistory() error = %v", err)
	}
	app, mock := newTestApp(t, Options{History: history})

	// browse three pages
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 1, 15, 10))
	app = press(t, app, "m")
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 16, 15, 10))
	app = press(t, app, "m")
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 31, 15, 10))
	if st := app.State(); st.Page != 3 || len(st.Results) != 45 {
		t.Fatalf("State() = page %d, %d results", st.Page, len(st.Results))
	}
	fetches := len(mock.fetched)

	app = press(t, app, "/")
	var cmd tea.Cmd
	for _, r := range "batman" {
		app, cmd = send(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	if len(mock.fetched) != fetches {
		t.Fatal("typing must not search the list before enter")
	}

	tick := debounceTick(t, cmd)
	if tick.Tick.Query != "batman" {
		t.Fatalf("debounce tick = %+v", tick)
	}
	app, _ = send(t, app, tick)
	if len(mock.suggested) != 1 || mock.suggested[0].Query != "batman" {
		t.Fatalf("suggest requests = %+v", mock.suggested)
	}
	app, _ = send(t, app, SuggestionsLoaded{Result: suggest.Result{
		Seq:    mock.suggested[0].Seq,
		Movies: []models.MovieSummary{{ID: 268, Title: "Batman"}},
	}})
	if !strings.Contains(app.View(), "Batman") {
		t.Error("suggestion panel does not show the match")
	}

	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	req := mock.lastFetch(t)
	if req.Stream != browse.StreamSearch || req.Term != "batman" {
		t.Fatalf("search fetch = %+v", req)
	}
	if terms := history.Terms(); len(terms) != 1 || terms[0] != "batman" {
		t.Errorf("history = %v", terms)
	}
	if app.input.Focused() {
		t.Error("search box still focused after enter")
	}

	app, _ = send(t, app, pageFor(req, 9000, 3, 1))
	if st := app.State(); !st.Searching || len(st.Results) != 3 {
		t.Fatalf("search State() = %+v", st)
	}

	fetches = len(mock.fetched)
	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if len(mock.fetched) != fetches {
		t.Error("clearing the search refetched the browse list")
	}
	if st := app.State(); st.Searching || st.Page != 3 || len(st.Results) != 45 {
		t.Errorf("restored State() = page %d, %d results", st.Page, len(st.Results))
	}
}

func TestAppSelectSuggestion(t *testing.T) {
	history, _ := services.NewSearchHistory(context.Background(), database.NewMemoryKV(), logging.Discard())
	app, mock := newTestApp(t, Options{History: history})
	app, _ = send(t, app, Bootstrapped{Trending: []models.MovieSummary{{ID: 1, Title: "Trending One"}}})

	app = press(t, app, "/")
	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyDown})
	app, _ = send(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	req := mock.lastFetch(t)
	if req.Stream != browse.StreamSearch || req.Term != "Trending One" {
		t.Errorf("selecting a trending movie searched %+v", req)
	}
	if app.input.Value() != "Trending One" {
		t.Errorf("input = %q", app.input.Value())
	}
}

func TestAppGenreToggle(t *testing.T) {
	app, mock := newTestApp(t, Options{})
	app, _ = send(t, app, Bootstrapped{Genres: []models.Genre{{ID: 28, Name: "Action"}, {ID: 12, Name: "Adventure"}}})

	app = press(t, app, "x")
	req := mock.lastFetch(t)
	if req.Genre == nil || *req.Genre != 28 {
		t.Fatalf("x should filter by Action, got %+v", req)
	}

	app = press(t, app, "lx")
	if req := mock.lastFetch(t); req.Genre == nil || *req.Genre != 12 {
		t.Fatalf("l x should switch to Adventure, got %+v", req)
	}

	press(t, app, "x")
	if req := mock.lastFetch(t); req.Genre != nil || req.Page != 1 {
		t.Errorf("x on the active genre should clear the filter, got %+v", req)
	}
}

func TestAppRetryAfterFailure(t *testing.T) {
	app, mock := newTestApp(t, Options{})
	req := mock.lastFetch(t)
	app, _ = send(t, app, PageLoaded{Response: browse.Response{Seq: req.Seq, Stream: req.Stream, Err: services.ErrNetwork}})

	if !strings.Contains(app.View(), "press r to retry") {
		t.Error("error state has no retry hint")
	}
	press(t, app, "r")
	if len(mock.fetched) != 2 || mock.lastFetch(t).Page != 1 {
		t.Errorf("retry fetches = %+v", mock.fetched)
	}
}

func TestAppCollections(t *testing.T) {
	membership := fakeMembership{}
	app, mock := newTestApp(t, Options{Membership: membership})
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 1, 3, 1))

	app = press(t, app, "f")
	if len(mock.toggled) != 1 || mock.toggled[0] != models.CollectionFavorites || mock.movies[0].ID != 1 {
		t.Fatalf("toggle = %v %+v", mock.toggled, mock.movies)
	}
	app = press(t, app, "w")
	if mock.toggled[1] != models.CollectionWatchlist {
		t.Errorf("w toggled %v", mock.toggled[1])
	}

	membership[1] = true
	app, _ = send(t, app, CollectionChanged{Change: services.CollectionChange{
		Collection: models.CollectionFavorites,
		Movies:     []models.MovieSummary{{ID: 1, Title: "Movie 1"}},
	}})
	app, _ = send(t, app, CollectionToggled{Collection: models.CollectionFavorites, MovieID: 1, Member: true})
	if !strings.Contains(app.View(), "Added to favorites") {
		t.Error("toggle outcome not shown")
	}

	app = press(t, app, "2")
	out := app.View()
	if !strings.Contains(out, "Movie 1") || !strings.Contains(out, "♥") {
		t.Errorf("favorites view:\n%s", out)
	}

	app, _ = send(t, app, CollectionChanged{Change: services.CollectionChange{
		Collection: models.CollectionFavorites,
		External:   true,
	}})
	out = app.View()
	if !strings.Contains(out, "No favorites yet") || !strings.Contains(out, "another session") {
		t.Errorf("external removal not reflected:\n%s", out)
	}
}

func TestAppRowsMarkOnlyMembers(t *testing.T) {
	app, mock := newTestApp(t, Options{Membership: fakeMembership{2: true}})
	app, _ = send(t, app, pageFor(mock.lastFetch(t), 1, 3, 1))

	var marked []string
	for _, line := range strings.Split(app.View(), "\n") {
		if strings.Contains(line, "♥") {
			marked = append(marked, line)
		}
	}
	if len(marked) != 1 || !strings.Contains(marked[0], "Movie 2") {
		t.Errorf("marked rows = %q, want only Movie 2", marked)
	}

	bare, mock := newTestApp(t, Options{})
	bare, _ = send(t, bare, pageFor(mock.lastFetch(t), 1, 3, 1))
	if out := bare.View(); !strings.Contains(out, "Movie 1") || strings.Contains(out, "♥") {
		t.Errorf("rows without a membership index:\n%s", out)
	}
}

func TestAppToggleFailureShown(t *testing.T) {
	app, _ := newTestApp(t, Options{})
	app, _ = send(t, app, CollectionToggled{Err: errors.New("disk full")})
	if !strings.Contains(app.View(), "disk full") {
		t.Error("toggle error not shown")
	}
}

func TestAppTheme(t *testing.T) {
	app, mock := newTestApp(t, Options{Theme: models.ThemeDark})
	app = press(t, app, "t")
	if mock.themes != 1 {
		t.Fatalf("ToggleTheme called %d times", mock.themes)
	}
	app, _ = send(t, app, ThemeChanged{Theme: models.ThemeLight})
	if app.theme != models.ThemeLight {
		t.Errorf("theme = %v", app.theme)
	}
}

func TestAppQuit(t *testing.T) {
	app, _ := newTestApp(t, Options{})
	_, cmd := send(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}

	// q is text while searching
	app = press(t, app, "/q")
	if app.input.Value() != "q" {
		t.Errorf("input = %q, want q", app.input.Value())
	}
}

func TestFormatRuntime(t *testing.T) {
	v := func(n int) *int { return &n }
	tests := []struct {
		in   *int
		want string
	}{
		{nil, "runtime unknown"},
		{v(0), "runtime unknown"},
		{v(45), "45m"},
		{v(120), "2h"},
		{v(148), "2h 28m"},
	}
	for _, tt := range tests {
		if got := formatRuntime(tt.in); got != tt.want {
			t.Errorf("formatRuntime() = %q, want %q", got, tt.want)
		}
	}
}
