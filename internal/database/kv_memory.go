package database

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
)

// memoryData is the state shared by every attached MemoryKV handle
type memoryData struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[*memoryWatcher]struct{}
}

// MemoryKV keeps local state in process memory. Nothing survives a restart.
type MemoryKV struct {
	data   *memoryData
	origin uuid.UUID
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: &memoryData{
			values:   make(map[string][]byte),
			watchers: make(map[*memoryWatcher]struct{}),
		},
		origin: uuid.New(),
	}
}

// Attach returns another handle on the same data with its own origin
func (m *MemoryKV) Attach() *MemoryKV {
	return &MemoryKV{data: m.data, origin: uuid.New()}
}

// Origin identifies writes made through this handle
func (m *MemoryKV) Origin() uuid.UUID {
	return m.origin
}

// Get returns a copy of the stored value
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	v, ok := m.data.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// Set stores value under key
func (m *MemoryKV) Set(ctx context.Context, key string, value []byte) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	v := bytes.Clone(value)
	m.data.values[key] = v
	m.broadcast(Change{Key: key, Value: v, Origin: m.origin})
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	if _, ok := m.data.values[key]; !ok {
		return nil
	}
	delete(m.data.values, key)
	m.broadcast(Change{Key: key, Deleted: true, Origin: m.origin})
	return nil
}

// broadcast must be called with the write lock held
func (m *MemoryKV) broadcast(c Change) {
	for w := range m.data.watchers {
		if w.origin == c.Origin {
			continue
		}
		c.Value = bytes.Clone(c.Value)
		w.push(c)
	}
}

// Watch streams writes made through other handles until ctx is done
func (m *MemoryKV) Watch(ctx context.Context) (<-chan Change, error) {
	w := &memoryWatcher{
		origin: m.origin,
		signal: make(chan struct{}, 1),
		out:    make(chan Change),
	}

	m.data.mu.Lock()
	m.data.watchers[w] = struct{}{}
	m.data.mu.Unlock()

	go func() {
		defer close(w.out)
		defer func() {
			m.data.mu.Lock()
			delete(m.data.watchers, w)
			m.data.mu.Unlock()
		}()
		w.run(ctx)
	}()

	return w.out, nil
}

// Health always succeeds
func (m *MemoryKV) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op; memory handles hold no resources
func (m *MemoryKV) Close() error {
	return nil
}

// memoryWatcher queues changes so writers never block on slow readers
type memoryWatcher struct {
	origin  uuid.UUID
	mu      sync.Mutex
	pending []Change
	signal  chan struct{}
	out     chan Change
}

func (w *memoryWatcher) push(c Change) {
	w.mu.Lock()
	w.pending = append(w.pending, c)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *memoryWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
		}

		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, c := range batch {
			select {
			case w.out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}
