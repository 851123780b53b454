package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// storeEntry сгенерированный отчет с временем жизни
type storeEntry struct {
	HTML      string
	Timestamp time.Time
	TTL       time.Duration
}

// Store хранилище сгенерированных отчетов в памяти
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore создает хранилище; ttl <= 0 означает 1 час
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		entries: make(map[string]*storeEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put сохраняет HTML и возвращает идентификатор отчета
func (s *Store) Put(html string) string {
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &storeEntry{
		HTML:      html,
		Timestamp: s.now(),
		TTL:       s.ttl,
	}
	return id
}

// Get получает отчет, если он не устарел
func (s *Store) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return "", false
	}

	if s.now().Sub(entry.Timestamp) > entry.TTL {
		return "", false
	}

	return entry.HTML, true
}

// Cleanup удаляет устаревшие отчеты и возвращает их число
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if s.now().Sub(entry.Timestamp) > entry.TTL {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len число хранимых отчетов
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
