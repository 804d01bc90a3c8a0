package store

import (
	"context"
	"errors"

	"instoreorder/backend/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Repository is the local order journal: every successfully submitted order
// is recorded here so the recent-orders view works across restarts and OMF
// outages.
type Repository interface {
	SaveOrder(ctx context.Context, record domain.OrderRecord) (*domain.OrderRecord, error)
	GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.OrderRecord, error)
	SearchOrders(ctx context.Context, query string, limit int) ([]domain.OrderRecord, error)
	UpdateStatus(ctx context.Context, orderID string, status string) (*domain.OrderRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
