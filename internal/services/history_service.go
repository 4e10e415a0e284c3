package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/database"
)

// MaxSearchHistory is how many recent search terms are kept
const MaxSearchHistory = 5

// SearchHistory keeps recent search terms, most recent first
type SearchHistory struct {
	kv     database.KV
	logger *log.Logger

	mu    sync.Mutex
	terms []string
}

// NewSearchHistory loads the stored history; an unreadable record starts empty
func NewSearchHistory(ctx context.Context, kv database.KV, logger *log.Logger) (*SearchHistory, error) {
	h := &SearchHistory{kv: kv, logger: logger.WithPrefix("history")}
	terms, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	h.terms = terms
	return h, nil
}

func (h *SearchHistory) load(ctx context.Context) ([]string, error) {
	var terms []string
	err := loadJSON(ctx, h.kv, database.KeySearchHistory, &terms)
	if errors.Is(err, ErrMalformedLocalState) {
		h.logger.Warn("discarding unreadable search history", "err", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(terms) > MaxSearchHistory {
		terms = terms[:MaxSearchHistory]
	}
	return terms, nil
}

// PushTerm puts term at the front of terms, dropping an exact duplicate and
// anything beyond limit. terms is not modified.
func PushTerm(terms []string, term string, limit int) []string {
	out := make([]string, 0, limit)
	out = append(out, term)
	for _, t := range terms {
		if len(out) == limit {
			break
		}
		if t != term {
			out = append(out, t)
		}
	}
	return out
}

// Push records term as the most recent search. Blank terms are ignored.
// The new record is built from the in-memory terms, which Watch keeps in step
// with other processes.
func (h *SearchHistory) Push(ctx context.Context, term string) ([]string, error) {
	if strings.TrimSpace(term) == "" {
		return h.Terms(), nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := PushTerm(h.terms, term, MaxSearchHistory)
	if err := saveJSON(ctx, h.kv, database.KeySearchHistory, next); err != nil {
		return nil, err
	}
	h.terms = next
	return slices.Clone(next), nil
}

// Terms returns the recent terms, most recent first
func (h *SearchHistory) Terms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.Clone(h.terms)
}

// Clear forgets every term
func (h *SearchHistory) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.kv.Delete(ctx, database.KeySearchHistory); err != nil {
		return err
	}
	h.terms = nil
	return nil
}

// Watch applies search history writes made by other handles on the local
// state until ctx is done.
func (h *SearchHistory) Watch(ctx context.Context) error {
	changes, err := h.kv.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch local state: %w", err)
	}

	go func() {
		for change := range changes {
			if change.Key == database.KeySearchHistory {
				h.applyExternal(change)
			}
		}
	}()
	return nil
}

func (h *SearchHistory) applyExternal(change database.Change) {
	var terms []string
	if !change.Deleted {
		if err := decodeJSON(change.Key, change.Value, &terms); err != nil {
			h.logger.Warn("discarding unreadable search history update", "err", err)
			terms = nil
		}
	}
	if len(terms) > MaxSearchHistory {
		terms = terms[:MaxSearchHistory]
	}

	h.mu.Lock()
	h.terms = terms
	h.mu.Unlock()
}
