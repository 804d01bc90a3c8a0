// Package postgres is the durable order journal used when DATABASE_URL is
// configured. The schema is bootstrapped at startup.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS order_journal (
			order_id        TEXT PRIMARY KEY,
			journal_id      TEXT NOT NULL,
			external_number TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT '',
			customer_name   TEXT NOT NULL DEFAULT '',
			item_count      INT NOT NULL DEFAULT 0,
			total           NUMERIC(15,2) NOT NULL DEFAULT 0,
			currency        TEXT NOT NULL DEFAULT 'EUR',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_journal_created_at ON order_journal (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS user_accounts (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'associate',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveOrder(ctx context.Context, record domain.OrderRecord) (*domain.OrderRecord, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_journal (order_id, journal_id, external_number, status, customer_name, item_count, total, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status, external_number = EXCLUDED.external_number`,
		record.OrderID, record.ID, record.ExternalNumber, record.Status, record.CustomerName,
		record.ItemCount, record.Total.String(), record.Currency, record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	saved := record
	return &saved, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT order_id, journal_id, external_number, status, customer_name, item_count, total::text, currency, created_at
		FROM order_journal WHERE order_id = $1`, orderID)
	return scanOrder(row)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.OrderRecord, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, journal_id, external_number, status, customer_name, item_count, total::text, currency, created_at
		FROM order_journal ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) SearchOrders(ctx context.Context, query string, limit int) ([]domain.OrderRecord, error) {
	if limit < 1 {
		limit = 50
	}
	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, journal_id, external_number, status, customer_name, item_count, total::text, currency, created_at
		FROM order_journal
		WHERE lower(order_id) LIKE $1 OR lower(external_number) LIKE $1 OR lower(customer_name) LIKE $1
		ORDER BY created_at DESC LIMIT $2`, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, orderID string, status string) (*domain.OrderRecord, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE order_journal SET status = $2 WHERE order_id = $1`, orderID, status)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_accounts (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING`,
		user.Username, user.Password, user.Role, user.Active, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, password, role, active, created_at FROM user_accounts`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.UserAccount
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE user_accounts SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.OrderRecord, error) {
	var record domain.OrderRecord
	var total string
	err := row.Scan(&record.OrderID, &record.ID, &record.ExternalNumber, &record.Status,
		&record.CustomerName, &record.ItemCount, &total, &record.Currency, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}
	return &record, nil
}

func collectOrders(rows pgx.Rows) ([]domain.OrderRecord, error) {
	var records []domain.OrderRecord
	for rows.Next() {
		record, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}
