package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-marbre/chatbot/internal/model"
)

// OrderRepository persists captured orders in the hosted Postgres store.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository using the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert stores one order and returns it with ID and CreatedAt set.
// A single attempt, no retry: a duplicate row after a client retry is an
// accepted limitation for this lead-capture form.
func (r *OrderRepository) Insert(ctx context.Context, order *model.Order) (*model.Order, error) {
	query := `
		INSERT INTO orders (id, customer_name, phone, product_filename, quantity, unit, note, raw_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, query,
		order.ID,
		order.CustomerName,
		order.Phone,
		order.ProductFilename,
		order.Quantity,
		order.Unit,
		order.Note,
		order.RawMessage,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}
