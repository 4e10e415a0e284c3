// Package suggest implements search-as-you-type suggestions: debounced
// catalog matches, recent searches and trending movies.
package suggest

import (
	"context"
	"strings"
	"time"

	"github.com/liamwears/reeldeck/internal/models"
)

const (
	// DefaultWindow is the quiet period after the last keystroke before matches are fetched
	DefaultWindow = 500 * time.Millisecond
	// MaxPerKind caps each group of suggestions
	MaxPerKind = 5
)

// Kind tells where a suggestion came from
type Kind int

const (
	KindMatch Kind = iota
	KindHistory
	KindTrending
)

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "recent"
	case KindTrending:
		return "trending"
	default:
		return "match"
	}
}

// Suggestion is one selectable entry. Movie is nil for history entries.
type Suggestion struct {
	Kind  Kind
	Text  string
	Movie *models.MovieSummary
}

// Tick is a pending debounce timer. The host delivers it back to Fire once the window elapses.
type Tick struct {
	Seq   uint64
	Query string
}

// Request asks the host to search the catalog for Query
type Request struct {
	Seq   uint64
	Query string
}

// Result carries the catalog response for a Request
type Result struct {
	Seq    uint64
	Query  string
	Movies []models.MovieSummary
	Err    error
}

// History stores recent search terms
type History interface {
	Push(ctx context.Context, term string) ([]string, error)
	Terms() []string
}

// Engine tracks the search box. It does no I/O and no timing of its own: the
// host owns the timer and the catalog call and feeds their outcomes back in.
type Engine struct {
	window  time.Duration
	history History

	input string
	// keySeq numbers every input change; issued is the keySeq of the last request handed out
	keySeq uint64
	issued uint64

	matches  []models.MovieSummary
	trending []models.MovieSummary
	loading  bool
	err      error

	focused bool
	open    bool
}

// New creates an engine. A non-positive window uses DefaultWindow.
func New(history History, window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{window: window, history: history}
}

// Window is the debounce window
func (e *Engine) Window() time.Duration {
	return e.window
}

// Input records the box's new text. When the text needs matches, it returns
// a Tick to schedule after Window; any earlier tick is superseded.
func (e *Engine) Input(text string) (Tick, bool) {
	if text == e.input {
		return Tick{}, false
	}
	e.input = text
	e.keySeq++
	e.matches = nil
	e.err = nil
	if e.focused {
		e.open = true
	}

	query := strings.TrimSpace(text)
	if query == "" {
		e.loading = false
		return Tick{}, false
	}
	e.loading = true
	return Tick{Seq: e.keySeq, Query: query}, true
}

// Fire turns an elapsed tick into a catalog request, unless another keystroke
// arrived within the window
func (e *Engine) Fire(t Tick) (Request, bool) {
	if t.Seq != e.keySeq {
		return Request{}, false
	}
	e.issued = t.Seq
	return Request{Seq: t.Seq, Query: t.Query}, true
}

// Resolve applies r if it answers the latest request and the input has not
// changed since. It reports whether r was applied.
func (e *Engine) Resolve(r Result) bool {
	if r.Seq == 0 || r.Seq != e.issued || r.Seq != e.keySeq {
		return false
	}
	e.loading = false
	e.err = r.Err
	if r.Err != nil {
		e.matches = nil
		return true
	}
	e.matches = limit(r.Movies)
	return true
}

// SetTrending stores the movies shown while the box is empty
func (e *Engine) SetTrending(movies []models.MovieSummary) {
	e.trending = limit(movies)
}

// Suggestions lists matches, then recent searches, then trending movies when
// the box is empty
func (e *Engine) Suggestions() []Suggestion {
	var out []Suggestion
	for i := range e.matches {
		m := e.matches[i]
		out = append(out, Suggestion{Kind: KindMatch, Text: m.Title, Movie: &m})
	}

	if e.history != nil {
		terms := e.history.Terms()
		if len(terms) > MaxPerKind {
			terms = terms[:MaxPerKind]
		}
		for _, term := range terms {
			out = append(out, Suggestion{Kind: KindHistory, Text: term})
		}
	}

	if strings.TrimSpace(e.input) == "" {
		for i := range e.trending {
			m := e.trending[i]
			out = append(out, Suggestion{Kind: KindTrending, Text: m.Title, Movie: &m})
		}
	}
	return out
}

// Select runs a suggestion: the box takes its text, the term goes into the
// history and the panel closes. It returns the term to search for.
func (e *Engine) Select(ctx context.Context, s Suggestion) (string, error) {
	return e.commit(ctx, s.Text)
}

// Submit searches for the typed text. ok is false when the box is blank.
func (e *Engine) Submit(ctx context.Context) (term string, ok bool, err error) {
	if strings.TrimSpace(e.input) == "" {
		return "", false, nil
	}
	term, err = e.commit(ctx, strings.TrimSpace(e.input))
	return term, true, err
}

func (e *Engine) commit(ctx context.Context, term string) (string, error) {
	e.input = term
	// a pending fetch must not reopen or repopulate the panel
	e.keySeq++
	e.loading = false
	e.open = false

	if e.history == nil {
		return term, nil
	}
	if _, err := e.history.Push(ctx, term); err != nil {
		return term, err
	}
	return term, nil
}

// Clear empties the box and drops pending matches
func (e *Engine) Clear() {
	e.input = ""
	e.keySeq++
	e.matches = nil
	e.loading = false
	e.err = nil
}

// Focus opens the panel
func (e *Engine) Focus() {
	e.focused = true
	e.open = true
}

// Blur closes the panel
func (e *Engine) Blur() {
	e.focused = false
	e.open = false
}

// Open reports whether the panel should be shown
func (e *Engine) Open() bool {
	return e.open && len(e.Suggestions()) > 0
}

// Focused reports whether the box has focus
func (e *Engine) Focused() bool {
	return e.focused
}

// Text returns the current input
func (e *Engine) Text() string {
	return e.input
}

// Loading reports whether matches for the current text are still on their way
func (e *Engine) Loading() bool {
	return e.loading
}

// Err is the error from the last applied match request
func (e *Engine) Err() error {
	return e.err
}

func limit(movies []models.MovieSummary) []models.MovieSummary {
	if len(movies) > MaxPerKind {
		movies = movies[:MaxPerKind]
	}
	out := make([]models.MovieSummary, len(movies))
	copy(out, movies)
	return out
}
