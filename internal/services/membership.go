package services

import (
	"sync"

	"github.com/liamwears/reeldeck/internal/models"
)

// Membership answers "is this movie a favorite / on the watchlist" in O(1).
// It is rebuilt from every CollectionStore change notification.
type Membership struct {
	mu     sync.RWMutex
	sets   map[models.Collection]map[int]struct{}
	cancel func()
}

// NewMembership subscribes to store and seeds the index from its current contents
func NewMembership(store *CollectionStore) *Membership {
	m := &Membership{sets: make(map[models.Collection]map[int]struct{})}
	m.cancel = store.Subscribe(func(change CollectionChange) {
		m.rebuild(change.Collection, change.Movies)
	})
	for _, c := range models.Collections {
		m.rebuild(c, store.List(c))
	}
	return m
}

func (m *Membership) rebuild(c models.Collection, movies []models.MovieSummary) {
	set := make(map[int]struct{}, len(movies))
	for _, movie := range movies {
		set[movie.ID] = struct{}{}
	}

	m.mu.Lock()
	m.sets[c] = set
	m.mu.Unlock()
}

// Contains reports whether id is in collection c
func (m *Membership) Contains(c models.Collection, id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sets[c][id]
	return ok
}

// IsFavorite reports whether id is a favorite
func (m *Membership) IsFavorite(id int) bool {
	return m.Contains(models.CollectionFavorites, id)
}

// IsInWatchlist reports whether id is on the watchlist
func (m *Membership) IsInWatchlist(id int) bool {
	return m.Contains(models.CollectionWatchlist, id)
}

// Annotate pairs every movie with its membership flags
func (m *Membership) Annotate(movies []models.MovieSummary) []models.AnnotatedMovie {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AnnotatedMovie, len(movies))
	for i, movie := range movies {
		_, fav := m.sets[models.CollectionFavorites][movie.ID]
		_, watch := m.sets[models.CollectionWatchlist][movie.ID]
		out[i] = models.AnnotatedMovie{MovieSummary: movie, Favorite: fav, Watchlisted: watch}
	}
	return out
}

// Close stops following the store
func (m *Membership) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}
