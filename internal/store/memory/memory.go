// Package memory is the in-process order journal used when no DATABASE_URL
// is configured, and the repository fake for tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	orders map[string]domain.OrderRecord
	users  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		orders: make(map[string]domain.OrderRecord),
		users:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a default admin account so a fresh
// deployment is reachable before user provisioning.
func NewSeeded() *Store {
	s := New()
	s.users["admin"] = domain.UserAccount{
		Username:  "admin",
		Password:  "admin",
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	return s
}

func (s *Store) SaveOrder(_ context.Context, record domain.OrderRecord) (*domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.orders[record.OrderID] = record
	saved := record
	return &saved, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := record
	return &found, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]domain.OrderRecord, error) {
	s.mu.RLock()
	records := make([]domain.OrderRecord, 0, len(s.orders))
	for _, record := range s.orders {
		records = append(records, record)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) SearchOrders(_ context.Context, query string, limit int) ([]domain.OrderRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	records := make([]domain.OrderRecord, 0, len(s.orders))
	for _, record := range s.orders {
		if needle == "" ||
			strings.Contains(strings.ToLower(record.OrderID), needle) ||
			strings.Contains(strings.ToLower(record.ExternalNumber), needle) ||
			strings.Contains(strings.ToLower(record.CustomerName), needle) {
			records = append(records, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) UpdateStatus(_ context.Context, orderID string, status string) (*domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	record.Status = status
	s.orders[orderID] = record
	updated := record
	return &updated, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
