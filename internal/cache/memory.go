package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memItem struct {
	key   string
	entry Entry
}

// Memory is a concurrency-safe LRU cache with a TTL. When full, the least
// recently used key is evicted.
type Memory struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	l     *list.List
	items map[string]*list.Element
	now   func() time.Time
}

// NewMemory creates a cache holding at most capacity keys.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		cap:   capacity,
		ttl:   ttl,
		l:     list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	it := el.Value.(*memItem)
	if !it.entry.Fresh(m.now(), m.ttl) {
		m.l.Remove(el)
		delete(m.items, key)
		return nil, false, nil
	}
	m.l.MoveToFront(el)
	return it.entry.Data, true, nil
}

func (m *Memory) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := NewEntry(m.now(), append([]byte(nil), data...))
	if el, ok := m.items[key]; ok {
		el.Value.(*memItem).entry = entry
		m.l.MoveToFront(el)
		return nil
	}
	m.items[key] = m.l.PushFront(&memItem{key: key, entry: entry})
	if m.l.Len() > m.cap {
		oldest := m.l.Back()
		m.l.Remove(oldest)
		delete(m.items, oldest.Value.(*memItem).key)
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.l.Len()
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.l.Init()
	m.items = make(map[string]*list.Element)
	m.mu.Unlock()
	return nil
}
