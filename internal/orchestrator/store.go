package orchestrator

import (
	"sync"

	"remit/internal/domain"
	"remit/pkg/errors"
)

// Store is the order persistence port. The in-memory implementation below is
// the only one wired; a database-backed store would satisfy the same
// interface.
type Store interface {
	Create(order *domain.Order) error
	Update(order *domain.Order) error
	Get(id string) (*domain.Order, error)
	BySender(address string) []*domain.Order
}

// MemoryStore keeps orders in a map keyed by id plus a secondary index by
// sender address. One lock guards both structures so the index can never
// drift from the primary map.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	bySender map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*domain.Order),
		bySender: make(map[string][]string),
	}
}

// Create inserts a new order and indexes it by sender.
func (s *MemoryStore) Create(order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return errors.ErrOrderAlreadyExists
	}

	copied := *order
	s.orders[order.ID] = &copied
	s.bySender[order.Sender.Address] = append(s.bySender[order.Sender.Address], order.ID)
	return nil
}

// Update overwrites an existing order.
func (s *MemoryStore) Update(order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		return errors.ErrOrderNotFound
	}

	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

// Get returns a copy of the order so callers cannot mutate stored state.
func (s *MemoryStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}

	copied := *order
	return &copied, nil
}

// BySender returns copies of all orders created by the address, in insertion
// order.
func (s *MemoryStore) BySender(address string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySender[address]
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := s.orders[id]; ok {
			copied := *order
			out = append(out, &copied)
		}
	}
	return out
}
