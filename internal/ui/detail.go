package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
)

const topCast = 6

func (a App) renderDetail() string {
	d := a.detail
	switch {
	case d.loading:
		return fmt.Sprintf("\n%s Loading %s...", a.spinner.View(), d.movie.Title)
	case d.err != nil:
		return a.renderDetailFailure(d.err)
	case d.detail == nil:
		return a.renderDetailFailure(services.ErrNotFound)
	}

	m := d.detail
	var b strings.Builder

	title := m.Title
	if year := m.Year(); year != "" {
		title += " (" + year + ")"
	}
	b.WriteString("\n" + a.styles.Heading.Render(title))
	b.WriteString("  " + a.styles.Rating.Render(fmt.Sprintf("★ %.1f", m.VoteAverage)))
	b.WriteString("  " + a.styles.Muted.Render(formatRuntime(m.RuntimeMinutes)))
	b.WriteString("\n")

	if len(m.Genres) > 0 {
		names := make([]string, len(m.Genres))
		for i, g := range m.Genres {
			names[i] = g.Name
		}
		b.WriteString(a.styles.Muted.Render(strings.Join(names, " · ")) + "\n")
	}

	if a.membership != nil {
		var marks []string
		if a.membership.IsFavorite(m.ID) {
			marks = append(marks, "♥ favorite")
		}
		if a.membership.IsInWatchlist(m.ID) {
			marks = append(marks, "+ on watchlist")
		}
		if len(marks) > 0 {
			b.WriteString(a.styles.Badge.Render(strings.Join(marks, "  ")) + "\n")
		}
	}

	if m.Overview != "" {
		width := a.width - 4
		if width < 20 {
			width = 20
		}
		b.WriteString("\n" + a.styles.NormalItem.Width(width).Render(m.Overview) + "\n")
	}

	if directors := m.Directors(); len(directors) > 0 {
		names := make([]string, len(directors))
		for i, c := range directors {
			names[i] = c.Name
		}
		b.WriteString("\n" + a.styles.Heading.Render("Directed by ") + strings.Join(names, ", ") + "\n")
	}

	if cast := m.TopCast(topCast); len(cast) > 0 {
		b.WriteString("\n" + a.styles.Heading.Render("Cast") + "\n")
		for _, c := range cast {
			line := "  " + c.Name
			if c.Character != "" {
				line += a.styles.Muted.Render(" as " + c.Character)
			}
			b.WriteString(line + "\n")
		}
	}

	if url := m.TrailerURL(); url != "" {
		b.WriteString("\n" + a.styles.Muted.Render("Trailer: ") + url + "\n")
	}
	if poster := a.imageURL(m.PosterPath); poster != "" {
		b.WriteString(a.styles.Muted.Render("Poster:  ") + poster + "\n")
	}

	b.WriteString("\n" + a.styles.Muted.Render("f favorite · w watchlist · esc go back"))
	return b.String()
}

// renderDetailFailure is shown instead of the movie when it can't be loaded
func (a App) renderDetailFailure(err error) string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case errors.Is(err, services.ErrNotFound):
		b.WriteString(a.styles.Error.Render("Movie not found"))
		b.WriteString("\n")
		b.WriteString(a.styles.Muted.Render("  The catalog has no movie with this id."))
		b.WriteString("\n\n")
		b.WriteString(a.styles.Muted.Render("  esc go back"))
	default:
		b.WriteString(a.styles.Error.Render("Couldn't load this movie"))
		b.WriteString("\n")
		b.WriteString(a.styles.Muted.Render("  " + err.Error()))
		b.WriteString("\n\n")
		b.WriteString(a.styles.Muted.Render("  r retry · esc go back"))
	}
	return b.String()
}

// formatRuntime renders minutes as "2h 28m"
func formatRuntime(minutes *int) string {
	if minutes == nil || *minutes <= 0 {
		return "runtime unknown"
	}
	h, m := *minutes/60, *minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// DetailSummary returns what the detail view would store in a collection (for testing).
func (a App) DetailSummary() models.MovieSummary {
	return a.detailSummary()
}
