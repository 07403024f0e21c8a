package disk

import (
	"container/list"
	"sync"

	"github.com/fleetlens/backend/internal/table"
)

// memoryCache keeps the most recently used decoded tables so repeated chart
// requests against one dataset skip decoding.
type memoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

type memoryItem struct {
	key   string
	table *table.Table
}

func newMemoryCache(capacity int) *memoryCache {
	return &memoryCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (m *memoryCache) get(key string) (*table.Table, bool) {
	if m.capacity <= 0 {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(el)
	return el.Value.(*memoryItem).table, true
}

func (m *memoryCache) put(key string, t *table.Table) {
	if m.capacity <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem).table = t
		m.order.MoveToFront(el)
		return
	}

	m.items[key] = m.order.PushFront(&memoryItem{key: key, table: t})
	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryItem).key)
	}
}

func (m *memoryCache) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
		delete(m.items, key)
	}
}

func (m *memoryCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
