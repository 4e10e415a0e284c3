package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/models"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidMovie      = errors.New("movie id must be positive")
)

// CollectionChange is published after a collection changes
type CollectionChange struct {
	Collection models.Collection
	Movies     []models.MovieSummary
	// External is set when the write came from another handle on the local state
	External bool
}

// CollectionStore owns the favorites and watchlist collections.
//
// Every successful write is durable before it returns and is followed by a
// change notification. Each subscriber sees changes in write order and never
// runs two callbacks at once: a subscriber that writes from inside its
// callback gets that change after the current callback returns. When a write
// returns, every subscriber not busy in a callback has already seen it.
type CollectionStore struct {
	kv     database.KV
	logger *log.Logger

	mu    sync.Mutex
	lists map[models.Collection][]models.MovieSummary
	ids   map[models.Collection]map[int]struct{}

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

// NewCollectionStore loads both collections from kv. A record that fails to
// decode is logged and treated as empty.
func NewCollectionStore(ctx context.Context, kv database.KV, logger *log.Logger) (*CollectionStore, error) {
	s := &CollectionStore{
		kv:     kv,
		logger: logger.WithPrefix("collections"),
		lists:  make(map[models.Collection][]models.MovieSummary),
		ids:    make(map[models.Collection]map[int]struct{}),
		subs:   make(map[int]*subscriber),
	}

	for _, c := range models.Collections {
		var movies []models.MovieSummary
		err := loadJSON(ctx, kv, collectionKey(c), &movies)
		if errors.Is(err, ErrMalformedLocalState) {
			s.logger.Warn("discarding unreadable collection", "collection", c, "err", err)
			movies = nil
		} else if err != nil {
			return nil, err
		}
		s.set(c, dedupe(movies))
	}

	return s, nil
}

func collectionKey(c models.Collection) string {
	if c == models.CollectionWatchlist {
		return database.KeyWatchlist
	}
	return database.KeyFavorites
}

func collectionForKey(key string) (models.Collection, bool) {
	switch key {
	case database.KeyFavorites:
		return models.CollectionFavorites, true
	case database.KeyWatchlist:
		return models.CollectionWatchlist, true
	}
	return "", false
}

// dedupe keeps the first entry for each id
func dedupe(movies []models.MovieSummary) []models.MovieSummary {
	seen := make(map[int]struct{}, len(movies))
	out := make([]models.MovieSummary, 0, len(movies))
	for _, m := range movies {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// set replaces a collection; s.mu must be held (or s not yet shared)
func (s *CollectionStore) set(c models.Collection, movies []models.MovieSummary) {
	ids := make(map[int]struct{}, len(movies))
	for _, m := range movies {
		ids[m.ID] = struct{}{}
	}
	s.lists[c] = movies
	s.ids[c] = ids
}

// Add appends movie to collection c. Adding a movie that is already present
// is a no-op and reports false.
func (s *CollectionStore) Add(ctx context.Context, c models.Collection, movie models.MovieSummary) (bool, error) {
	if err := validMovie(c, movie.ID); err != nil {
		return false, err
	}

	s.mu.Lock()
	added, err := s.add(ctx, c, movie)
	s.mu.Unlock()
	if err != nil || !added {
		return false, err
	}

	s.dispatch()
	return true, nil
}

// Remove deletes the movie with id from collection c. Removing an absent id
// is a no-op and reports false.
func (s *CollectionStore) Remove(ctx context.Context, c models.Collection, id int) (bool, error) {
	if !c.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}

	s.mu.Lock()
	removed, err := s.remove(ctx, c, id)
	s.mu.Unlock()
	if err != nil || !removed {
		return false, err
	}

	s.dispatch()
	return true, nil
}

// Toggle adds movie when absent and removes it when present.
// It reports whether the movie is in the collection afterwards; on error the
// collection is unchanged and the current membership is reported.
func (s *CollectionStore) Toggle(ctx context.Context, c models.Collection, movie models.MovieSummary) (bool, error) {
	if err := validMovie(c, movie.ID); err != nil {
		return false, err
	}

	s.mu.Lock()
	_, member := s.ids[c][movie.ID]
	var err error
	if member {
		_, err = s.remove(ctx, c, movie.ID)
	} else {
		_, err = s.add(ctx, c, movie)
	}
	s.mu.Unlock()
	if err != nil {
		return member, err
	}

	s.dispatch()
	return !member, nil
}

func validMovie(c models.Collection, id int) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	if id <= 0 {
		return ErrInvalidMovie
	}
	return nil
}

// add and remove write through to kv; s.mu must be held
func (s *CollectionStore) add(ctx context.Context, c models.Collection, movie models.MovieSummary) (bool, error) {
	if _, ok := s.ids[c][movie.ID]; ok {
		return false, nil
	}
	next := append(slices.Clone(s.lists[c]), movie)
	if err := s.commit(ctx, c, next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CollectionStore) remove(ctx context.Context, c models.Collection, id int) (bool, error) {
	if _, ok := s.ids[c][id]; !ok {
		return false, nil
	}
	next := slices.DeleteFunc(slices.Clone(s.lists[c]), func(m models.MovieSummary) bool {
		return m.ID == id
	})
	if err := s.commit(ctx, c, next); err != nil {
		return false, err
	}
	return true, nil
}

// commit persists next and then applies it; s.mu must be held
func (s *CollectionStore) commit(ctx context.Context, c models.Collection, next []models.MovieSummary) error {
	if err := saveJSON(ctx, s.kv, collectionKey(c), next); err != nil {
		return err
	}
	s.set(c, next)
	s.enqueue(CollectionChange{Collection: c, Movies: slices.Clone(next)})
	return nil
}

// Contains reports whether id is in collection c
func (s *CollectionStore) Contains(c models.Collection, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[c][id]
	return ok
}

// List returns a copy of collection c in insertion order
func (s *CollectionStore) List(c models.Collection) []models.MovieSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.lists[c])
}

// Subscribe registers fn for change notifications and returns a cancel func
func (s *CollectionStore) Subscribe(fn func(CollectionChange)) func() {
	sub := &subscriber{fn: fn}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		sub.cancelled = true
		sub.queue = nil
		s.subMu.Unlock()
	}
}

// subscriber has its own queue so a callback blocked on one goroutine
// never holds back delivery to the others
type subscriber struct {
	fn        func(CollectionChange)
	queue     []CollectionChange
	running   bool
	cancelled bool
}

func (s *CollectionStore) subscribers() []*subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]*subscriber, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

// enqueue queues change for every subscriber; s.mu must be held so all
// subscribers see writes in the same order
func (s *CollectionStore) enqueue(change CollectionChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subs {
		sub.queue = append(sub.queue, change)
	}
}

// dispatch delivers queued changes to every subscriber that is not already
// running a callback. A running subscriber gets them from the loop that is
// running it, right after its current callback returns.
func (s *CollectionStore) dispatch() {
	for _, sub := range s.subscribers() {
		s.deliver(sub)
	}
}

func (s *CollectionStore) deliver(sub *subscriber) {
	s.subMu.Lock()
	if sub.running {
		s.subMu.Unlock()
		return
	}
	sub.running = true

	for len(sub.queue) > 0 && !sub.cancelled {
		change := sub.queue[0]
		sub.queue = sub.queue[1:]
		s.subMu.Unlock()

		sub.fn(change)

		s.subMu.Lock()
	}

	sub.running = false
	s.subMu.Unlock()
}

// Watch applies collection writes made by other handles on the local state
// (another reeldeck process on the same profile) until ctx is done.
func (s *CollectionStore) Watch(ctx context.Context) error {
	changes, err := s.kv.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch local state: %w", err)
	}

	go func() {
		for change := range changes {
			s.applyExternal(change)
		}
	}()
	return nil
}

func (s *CollectionStore) applyExternal(change database.Change) {
	c, ok := collectionForKey(change.Key)
	if !ok {
		return
	}

	var movies []models.MovieSummary
	if !change.Deleted {
		if err := decodeJSON(change.Key, change.Value, &movies); err != nil {
			s.logger.Warn("discarding unreadable collection update", "collection", c, "err", err)
			movies = nil
		}
	}
	movies = dedupe(movies)

	s.mu.Lock()
	s.set(c, movies)
	s.enqueue(CollectionChange{Collection: c, Movies: slices.Clone(movies), External: true})
	s.mu.Unlock()

	s.logger.Debug("applied external change", "collection", c, "size", len(movies))
	s.dispatch()
}
