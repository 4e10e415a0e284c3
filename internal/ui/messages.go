// Package ui provides the Bubble Tea TUI for reeldeck.
package ui

import (
	"github.com/liamwears/reeldeck/internal/browse"
	"github.com/liamwears/reeldeck/internal/models"
	"github.com/liamwears/reeldeck/internal/services"
	"github.com/liamwears/reeldeck/internal/suggest"
)

// PageLoaded carries a catalog response for the list view
type PageLoaded struct {
	Response browse.Response
}

// SuggestionsLoaded carries catalog matches for the search box
type SuggestionsLoaded struct {
	Result suggest.Result
}

// DebounceElapsed fires when the typeahead window passes
type DebounceElapsed struct {
	Tick suggest.Tick
}

// Bootstrapped is sent once genres and trending movies have been fetched
type Bootstrapped struct {
	Genres   []models.Genre
	Trending []models.MovieSummary
	Err      error
}

// DetailLoaded carries a movie for the detail view
type DetailLoaded struct {
	ID     int
	Detail *models.MovieDetail
	Err    error
}

// CollectionChanged is sent whenever favorites or the watchlist change,
// locally or from another process sharing the profile
type CollectionChanged struct {
	Change services.CollectionChange
}

// CollectionToggled reports the outcome of a favorite or watchlist toggle
type CollectionToggled struct {
	Collection models.Collection
	MovieID    int
	Member     bool
	Err        error
}

// ThemeChanged is sent after the theme preference was stored
type ThemeChanged struct {
	Theme models.ThemeMode
	Err   error
}
