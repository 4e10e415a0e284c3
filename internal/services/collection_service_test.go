package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/logging"
	"github.com/liamwears/reeldeck/internal/models"
)

var inception = models.MovieSummary{ID: 27205, Title: "Inception"}

func newTestStore(t *testing.T, kv database.KV) *CollectionStore {
	t.Helper()
	store, err := NewCollectionStore(context.Background(), kv, logging.Discard())
	if err != nil {
		t.Fatalf("NewCollectionStore() error = %v", err)
	}
	return store
}

func TestAddTwiceKeepsOneEntry(t *testing.T) {
	kv := database.NewMemoryKV()
	store := newTestStore(t, kv)
	ctx := context.Background()

	added, err := store.Add(ctx, models.CollectionFavorites, inception)
	if err != nil || !added {
		t.Fatalf("Add() = %v, %v; want true, nil", added, err)
	}
	added, err = store.Add(ctx, models.CollectionFavorites, inception)
	if err != nil || added {
		t.Fatalf("second Add() = %v, %v; want false, nil", added, err)
	}

	list := store.List(models.CollectionFavorites)
	if len(list) != 1 || list[0].ID != 27205 {
		t.Fatalf("List() = %+v, want one Inception entry", list)
	}

	var persisted []models.MovieSummary
	data, err := kv.Get(ctx, database.KeyFavorites)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("stored favorites are not JSON: %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted %d entries, want 1", len(persisted))
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())

	var notified int
	store.Subscribe(func(CollectionChange) { notified++ })

	removed, err := store.Remove(context.Background(), models.CollectionWatchlist, 42)
	if err != nil || removed {
		t.Fatalf("Remove() = %v, %v; want false, nil", removed, err)
	}
	if notified != 0 {
		t.Errorf("no-op remove notified %d times", notified)
	}
}

func TestCollectionsAreIndependent(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	if _, err := store.Add(ctx, models.CollectionWatchlist, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if store.Contains(models.CollectionFavorites, inception.ID) {
		t.Error("watchlist add leaked into favorites")
	}
	if !store.Contains(models.CollectionWatchlist, inception.ID) {
		t.Error("Contains() = false after add")
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	if _, err := store.Add(ctx, models.Collection("seen"), inception); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("Add(unknown) error = %v, want ErrUnknownCollection", err)
	}
	if _, err := store.Add(ctx, models.CollectionFavorites, models.MovieSummary{Title: "No id"}); !errors.Is(err, ErrInvalidMovie) {
		t.Errorf("Add(id 0) error = %v, want ErrInvalidMovie", err)
	}
}

func TestRandomOperationsMatchLastWrite(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	want := make(map[int]bool)
	for i := 0; i < 500; i++ {
		id := rng.Intn(12) + 1
		if rng.Intn(2) == 0 {
			if _, err := store.Add(ctx, models.CollectionFavorites, models.MovieSummary{ID: id}); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			want[id] = true
		} else {
			if _, err := store.Remove(ctx, models.CollectionFavorites, id); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			want[id] = false
		}

		list := store.List(models.CollectionFavorites)
		seen := make(map[int]bool)
		for _, m := range list {
			if seen[m.ID] {
				t.Fatalf("step %d: duplicate id %d in %v", i, m.ID, list)
			}
			seen[m.ID] = true
		}
	}

	for id, member := range want {
		if got := store.Contains(models.CollectionFavorites, id); got != member {
			t.Errorf("Contains(%d) = %v, want %v", id, got, member)
		}
	}

	// A fresh store on the same data sees the same membership
	reloaded := newTestStore(t, store.kv)
	for id, member := range want {
		if got := reloaded.Contains(models.CollectionFavorites, id); got != member {
			t.Errorf("reloaded Contains(%d) = %v, want %v", id, got, member)
		}
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	for _, id := range []int{3, 1, 2} {
		if _, err := store.Add(ctx, models.CollectionWatchlist, models.MovieSummary{ID: id}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if _, err := store.Remove(ctx, models.CollectionWatchlist, 1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	list := store.List(models.CollectionWatchlist)
	if len(list) != 2 || list[0].ID != 3 || list[1].ID != 2 {
		t.Errorf("List() = %+v, want ids [3 2]", list)
	}
}

func TestToggle(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	on, err := store.Toggle(ctx, models.CollectionFavorites, inception)
	if err != nil || !on {
		t.Fatalf("Toggle() = %v, %v; want true", on, err)
	}
	on, err = store.Toggle(ctx, models.CollectionFavorites, inception)
	if err != nil || on {
		t.Fatalf("Toggle() = %v, %v; want false", on, err)
	}
	if len(store.List(models.CollectionFavorites)) != 0 {
		t.Error("favorites should be empty after toggling twice")
	}
}

func TestMalformedStateFallsBackToEmpty(t *testing.T) {
	kv := database.NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, database.KeyFavorites, []byte("{not json")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Set(ctx, database.KeyWatchlist, []byte(`[{"id":1,"title":"A"},{"id":1,"title":"A again"}]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	store := newTestStore(t, kv)
	if got := store.List(models.CollectionFavorites); len(got) != 0 {
		t.Errorf("favorites = %+v, want empty", got)
	}
	if got := store.List(models.CollectionWatchlist); len(got) != 1 {
		t.Errorf("watchlist = %+v, want duplicates collapsed", got)
	}

	if _, err := store.Add(ctx, models.CollectionFavorites, inception); err != nil {
		t.Fatalf("Add() after malformed load error = %v", err)
	}
}

func TestSubscribersNotifiedSynchronously(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())

	var got []CollectionChange
	cancel := store.Subscribe(func(c CollectionChange) { got = append(got, c) })

	if _, err := store.Add(context.Background(), models.CollectionFavorites, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1 before Add returns", len(got))
	}
	if got[0].Collection != models.CollectionFavorites || len(got[0].Movies) != 1 || got[0].External {
		t.Errorf("change = %+v", got[0])
	}

	cancel()
	if _, err := store.Remove(context.Background(), models.CollectionFavorites, inception.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("cancelled subscriber still notified")
	}
}

func TestWriteFromHandlerIsDeferred(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	var first, second []models.Collection
	depth := 0
	store.Subscribe(func(c CollectionChange) {
		depth++
		defer func() { depth-- }()
		if depth > 1 {
			t.Errorf("handler re-entered while handling %s", c.Collection)
		}
		first = append(first, c.Collection)

		// Mirror every new favorite onto the watchlist
		if c.Collection == models.CollectionFavorites {
			for _, m := range c.Movies {
				if _, err := store.Add(ctx, models.CollectionWatchlist, m); err != nil {
					t.Errorf("nested Add() error = %v", err)
				}
			}
			if len(first) != 1 {
				t.Errorf("nested change delivered before the handler returned: %v", first)
			}
		}
	})
	store.Subscribe(func(c CollectionChange) {
		second = append(second, c.Collection)
	})

	if _, err := store.Add(ctx, models.CollectionFavorites, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	want := []models.Collection{models.CollectionFavorites, models.CollectionWatchlist}
	for name, got := range map[string][]models.Collection{"first": first, "second": second} {
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("%s subscriber saw %v, want %v", name, got, want)
		}
	}
	if !store.Contains(models.CollectionWatchlist, inception.ID) {
		t.Error("nested write was lost")
	}
}

func TestLocalWriteNotBlockedBySlowSubscriber(t *testing.T) {
	kv := database.NewMemoryKV()
	other := kv.Attach()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t, kv)

	// A subscriber stuck on the external change, like a UI that is not
	// reading messages yet.
	entered := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan CollectionChange, 4)
	store.Subscribe(func(c CollectionChange) {
		seen <- c
		if c.External {
			close(entered)
			<-release
		}
	})
	membership := NewMembership(store)
	defer membership.Close()

	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	matrix := models.MovieSummary{ID: 603, Title: "The Matrix"}
	data, _ := json.Marshal([]models.MovieSummary{matrix})
	if err := other.Set(ctx, database.KeyFavorites, data); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("external change never delivered")
	}

	if _, err := store.Add(ctx, models.CollectionFavorites, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !membership.IsFavorite(inception.ID) || !membership.IsFavorite(matrix.ID) {
		t.Errorf("membership not updated when Add returned: inception=%v matrix=%v",
			membership.IsFavorite(inception.ID), membership.IsFavorite(matrix.ID))
	}

	close(release)
	for i, wantExternal := range []bool{true, false} {
		select {
		case c := <-seen:
			if c.External != wantExternal {
				t.Errorf("change %d External = %v, want %v", i, c.External, wantExternal)
			}
			if !wantExternal && len(c.Movies) != 2 {
				t.Errorf("local change = %+v, want both movies", c.Movies)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("blocked subscriber never received change %d", i)
		}
	}
}

func TestConcurrentTogglesAlternate(t *testing.T) {
	store := newTestStore(t, database.NewMemoryKV())
	ctx := context.Background()

	const n = 10
	results := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			member, err := store.Toggle(ctx, models.CollectionFavorites, inception)
			if err != nil {
				t.Errorf("Toggle() error = %v", err)
			}
			results <- member
		}()
	}
	wg.Wait()
	close(results)

	added := 0
	for member := range results {
		if member {
			added++
		}
	}
	if added != n/2 {
		t.Errorf("%d of %d toggles reported an add, want %d", added, n, n/2)
	}
	if store.Contains(models.CollectionFavorites, inception.ID) {
		t.Error("an even number of toggles should leave the movie out")
	}
}

func TestWatchAppliesOtherHandleWrites(t *testing.T) {
	kv := database.NewMemoryKV()
	other := kv.Attach()

	store := newTestStore(t, kv)
	otherStore := newTestStore(t, other)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changes := make(chan CollectionChange, 4)
	store.Subscribe(func(c CollectionChange) { changes <- c })

	if _, err := otherStore.Add(context.Background(), models.CollectionWatchlist, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	select {
	case c := <-changes:
		if !c.External || c.Collection != models.CollectionWatchlist || len(c.Movies) != 1 {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external change not delivered")
	}
	if !store.Contains(models.CollectionWatchlist, inception.ID) {
		t.Error("Contains() = false after external add")
	}
}

func TestWatchMalformedExternalWriteEmptiesCollection(t *testing.T) {
	kv := database.NewMemoryKV()
	other := kv.Attach()
	store := newTestStore(t, kv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := store.Add(ctx, models.CollectionFavorites, inception); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	changes := make(chan CollectionChange, 4)
	store.Subscribe(func(c CollectionChange) { changes <- c })

	if err := other.Set(ctx, database.KeyFavorites, []byte("garbage")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case c := <-changes:
		if len(c.Movies) != 0 {
			t.Errorf("change = %+v, want empty favorites", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external change not delivered")
	}
}
