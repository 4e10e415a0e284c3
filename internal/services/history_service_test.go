package services

import (
	"context"
	"testing"
	"time"

	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/logging"
)

func equalTerms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or the test times out
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPushTerm(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		term  string
		want  []string
	}{
		{"empty", nil, "batman", []string{"batman"}},
		{"front", []string{"alien"}, "batman", []string{"batman", "alien"}},
		{"moves duplicate", []string{"alien", "batman", "cars"}, "batman", []string{"batman", "alien", "cars"}},
		{"exact match only", []string{"Batman"}, "batman", []string{"batman", "Batman"}},
		{"caps at limit", []string{"a", "b", "c", "d", "e"}, "f", []string{"f", "a", "b", "c", "d"}},
		{"duplicate at cap", []string{"a", "b", "c", "d", "e"}, "e", []string{"e", "a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]string(nil), tt.terms...)
			got := PushTerm(tt.terms, tt.term, MaxSearchHistory)
			if !equalTerms(got, tt.want) {
				t.Errorf("PushTerm() = %v, want %v", got, tt.want)
			}
			if !equalTerms(tt.terms, before) {
				t.Errorf("PushTerm() modified its input: %v", tt.terms)
			}
		})
	}
}

func TestSearchHistoryPersists(t *testing.T) {
	kv := database.NewMemoryKV()
	ctx := context.Background()

	h, err := NewSearchHistory(ctx, kv, logging.Discard())
	if err != nil {
		t.Fatalf("NewSearchHistory() error = %v", err)
	}
	for _, term := range []string{"alien", "batman", "  ", "alien"} {
		if _, err := h.Push(ctx, term); err != nil {
			t.Fatalf("Push(%q) error = %v", term, err)
		}
	}

	want := []string{"alien", "batman"}
	if got := h.Terms(); !equalTerms(got, want) {
		t.Errorf("Terms() = %v, want %v", got, want)
	}

	reloaded, err := NewSearchHistory(ctx, kv, logging.Discard())
	if err != nil {
		t.Fatalf("NewSearchHistory() error = %v", err)
	}
	if got := reloaded.Terms(); !equalTerms(got, want) {
		t.Errorf("reloaded Terms() = %v, want %v", got, want)
	}

	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := reloaded.Terms(); len(got) != 0 {
		t.Errorf("Terms() after Clear = %v", got)
	}
}

func TestSearchHistoryFollowsOtherWriters(t *testing.T) {
	kv := database.NewMemoryKV()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := NewSearchHistory(ctx, kv, logging.Discard())
	b, _ := NewSearchHistory(ctx, kv.Attach(), logging.Discard())
	if err := b.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if _, err := a.Push(ctx, "alien"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	waitFor(t, func() bool { return equalTerms(b.Terms(), []string{"alien"}) })

	got, err := b.Push(ctx, "batman")
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if want := []string{"batman", "alien"}; !equalTerms(got, want) {
		t.Errorf("Push() = %v, want %v", got, want)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	waitFor(t, func() bool { return len(b.Terms()) == 0 })
}

func TestSearchHistoryMalformed(t *testing.T) {
	kv := database.NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, database.KeySearchHistory, []byte(`{"oops":true}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	h, err := NewSearchHistory(ctx, kv, logging.Discard())
	if err != nil {
		t.Fatalf("NewSearchHistory() error = %v", err)
	}
	if len(h.Terms()) != 0 {
		t.Errorf("Terms() = %v, want empty", h.Terms())
	}

	got, err := h.Push(ctx, "batman")
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !equalTerms(got, []string{"batman"}) {
		t.Errorf("Push() = %v", got)
	}
}

func TestSearchHistoryTrimsOversizedRecord(t *testing.T) {
	kv := database.NewMemoryKV()
	ctx := context.Background()
	if err := kv.Set(ctx, database.KeySearchHistory, []byte(`["a","b","c","d","e","f","g"]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	h, err := NewSearchHistory(ctx, kv, logging.Discard())
	if err != nil {
		t.Fatalf("NewSearchHistory() error = %v", err)
	}
	if got := h.Terms(); len(got) != MaxSearchHistory {
		t.Errorf("Terms() = %v, want %d entries", got, MaxSearchHistory)
	}
}
