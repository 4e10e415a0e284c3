package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/liamwears/reeldeck/internal/browse"
	"github.com/liamwears/reeldeck/internal/models"
)

// View renders the UI.
func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	var body string
	switch a.view {
	case viewDetail:
		body = a.renderDetail()
	case viewFavorites:
		body = a.renderCollection(models.CollectionFavorites, "No favorites yet. Press f on a movie to add it.")
	case viewWatchlist:
		body = a.renderCollection(models.CollectionWatchlist, "Your watchlist is empty. Press w on a movie to add it.")
	default:
		body = a.renderBrowse()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		body,
		a.renderStatusBar(),
	)
}

func (a App) renderHeader() string {
	tabs := []struct {
		v     view
		label string
	}{
		{viewBrowse, "Browse"},
		{viewFavorites, fmt.Sprintf("Favorites (%d)", len(a.collections[models.CollectionFavorites]))},
		{viewWatchlist, fmt.Sprintf("Watchlist (%d)", len(a.collections[models.CollectionWatchlist]))},
	}

	parts := []string{a.styles.Title.Render("reeldeck")}
	for _, t := range tabs {
		style := a.styles.Tab
		if t.v == a.view || (a.view == viewDetail && t.v == a.detail.back) {
			style = a.styles.ActiveTab
		}
		parts = append(parts, style.Render(t.label))
	}
	if a.username != "" {
		parts = append(parts, a.styles.Muted.Render("  "+a.username))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// listHeight is the number of rows left for a movie list
func (a App) listHeight(reserved int) int {
	h := a.height - reserved
	if h < 3 {
		return 3
	}
	return h
}

func (a App) renderBrowse() string {
	st := a.list.State()
	var b strings.Builder

	b.WriteString(a.input.View())
	b.WriteString("\n")
	if a.input.Focused() && a.typeahead.Open() {
		b.WriteString(a.renderSuggestions())
		b.WriteString("\n")
		// the panel covers the list while open
		return b.String()
	}

	if st.Searching {
		b.WriteString(a.styles.Heading.Render(fmt.Sprintf("Results for %q", st.Term)))
		b.WriteString(a.styles.Muted.Render("  esc to go back to browsing"))
	} else {
		b.WriteString(a.styles.Heading.Render(st.Sort.Label()))
		b.WriteString(a.styles.Muted.Render("  " + a.genreLabel(st.Genre)))
	}
	b.WriteString("\n")
	if !st.Searching {
		b.WriteString(a.renderGenres(st.Genre))
		b.WriteString("\n")
	}

	switch {
	case st.Status == browse.LoadingInitial:
		b.WriteString(fmt.Sprintf("%s Loading movies...\n", a.spinner.View()))
		return b.String()
	case st.Status == browse.Errored && len(st.Results) == 0:
		b.WriteString(a.styles.Error.Render("Couldn't load movies: " + st.Err.Error()))
		b.WriteString("\n")
		b.WriteString(a.styles.Muted.Render("  press r to retry"))
		return b.String()
	case st.Status == browse.Loaded && len(st.Results) == 0:
		b.WriteString(a.styles.Muted.Render("  No movies found."))
		return b.String()
	}

	b.WriteString(a.renderRows(st.Results, a.cursors[viewBrowse], a.listHeight(9)))

	switch {
	case st.Status == browse.LoadingMore:
		b.WriteString(fmt.Sprintf("\n%s Loading page %d...", a.spinner.View(), st.Page))
	case st.Status == browse.Errored:
		b.WriteString("\n" + a.styles.Error.Render("Couldn't load more: "+st.Err.Error()))
		b.WriteString(a.styles.Muted.Render("  r to retry"))
	case st.HasMore:
		b.WriteString("\n" + a.styles.Muted.Render(fmt.Sprintf("  page %d, %d movies. m to load more", st.Page, len(st.Results))))
	}
	return b.String()
}

func (a App) genreLabel(id *int) string {
	if id == nil {
		return "all genres"
	}
	for _, g := range a.genres {
		if g.ID == *id {
			return g.Name
		}
	}
	return fmt.Sprintf("genre %d", *id)
}

// renderGenres draws the genre bar, scrolled so the cursor stays visible
func (a App) renderGenres(active *int) string {
	if len(a.genres) == 0 {
		return ""
	}

	const window = 8
	start := 0
	if a.genreCursor >= window {
		start = a.genreCursor - window + 1
	}
	end := min(start+window, len(a.genres))

	parts := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		g := a.genres[i]
		style := a.styles.Genre
		switch {
		case active != nil && *active == g.ID:
			style = a.styles.ActiveGenre
		case i == a.genreCursor:
			style = a.styles.GenreCursor
		}
		parts = append(parts, style.Render(g.Name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderSuggestions() string {
	var (
		lines []string
		last  = -1
	)
	for i, s := range a.typeahead.Suggestions() {
		if int(s.Kind) != last {
			lines = append(lines, a.styles.PanelHeader.Render(sectionTitle(s.Kind.String())))
			last = int(s.Kind)
		}

		text := s.Text
		if s.Movie != nil {
			if year := s.Movie.Year(); year != "" {
				text += a.styles.Muted.Render(" (" + year + ")")
			}
		}
		style := a.styles.NormalItem
		if i == a.suggestCursor {
			style = a.styles.SelectedItem
		}
		lines = append(lines, style.Render(text))
	}
	if a.typeahead.Loading() {
		lines = append(lines, fmt.Sprintf("%s searching...", a.spinner.View()))
	}
	return a.styles.Panel.Render(strings.Join(lines, "\n"))
}

func sectionTitle(kind string) string {
	switch kind {
	case "recent":
		return "Recent searches"
	case "trending":
		return "Trending today"
	default:
		return "Movies"
	}
}

func (a App) renderCollection(c models.Collection, empty string) string {
	movies := a.collections[c]
	if len(movies) == 0 {
		return a.styles.Muted.Render("  " + empty)
	}
	v := viewFavorites
	if c == models.CollectionWatchlist {
		v = viewWatchlist
	}
	return a.renderRows(movies, a.cursors[v], a.listHeight(3))
}

// renderRows draws a window of movies around cursor
func (a App) renderRows(movies []models.MovieSummary, cursor, height int) string {
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(start+height, len(movies))

	lines := make([]string, 0, end-start)
	for i, m := range a.annotate(movies[start:end]) {
		lines = append(lines, a.renderRow(m, start+i == cursor))
	}
	return strings.Join(lines, "\n")
}

// annotate flags the visible rows; without a membership index nothing is marked
func (a App) annotate(movies []models.MovieSummary) []models.AnnotatedMovie {
	if a.membership != nil {
		return a.membership.Annotate(movies)
	}
	out := make([]models.AnnotatedMovie, len(movies))
	for i, m := range movies {
		out[i] = models.AnnotatedMovie{MovieSummary: m}
	}
	return out
}

func (a App) renderRow(m models.AnnotatedMovie, selected bool) string {
	fav, watch := " ", " "
	if m.Favorite {
		fav = "♥"
	}
	if m.Watchlisted {
		watch = "+"
	}
	badges := fav + watch

	title := m.Title
	if year := m.Year(); year != "" {
		title += " (" + year + ")"
	}
	line := fmt.Sprintf("%s %s  %s", a.styles.Badge.Render(badges), title, a.styles.Rating.Render(fmt.Sprintf("★ %.1f", m.VoteAverage)))

	if selected {
		return a.styles.SelectedItem.Render(line)
	}
	return a.styles.NormalItem.Render(line)
}

func (a App) renderStatusBar() string {
	var line string
	switch {
	case a.err != nil:
		line = a.styles.Error.Render("Error: " + a.err.Error())
	case a.notice != "":
		line = a.styles.StatusBar.Render(a.notice)
	default:
		line = a.help.View(a.keys)
	}
	return "\n" + line
}
