package model

import (
	"time"

	"github.com/google/uuid"
)

// Order is one lead captured from the chat widget's "commande:" command.
// Optional fields are pointers so a missing field is stored as NULL rather
// than an empty string.
type Order struct {
	ID              uuid.UUID `db:"id"`
	CustomerName    *string   `db:"customer_name"`
	Phone           *string   `db:"phone"`
	ProductFilename *string   `db:"product_filename"`
	Quantity        *float64  `db:"quantity"`
	Unit            string    `db:"unit"`
	Note            *string   `db:"note"`
	RawMessage      string    `db:"raw_message"`
	CreatedAt       time.Time `db:"created_at"`
}
