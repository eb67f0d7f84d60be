package kds

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is the kitchen core's view of one line produced by the
// order-taking subsystem. It is immutable input except for the fields
// this core owns: the resolved routing pair, the sent flag, and the
// mirrored progress milestones.
type OrderItem struct {
	ID          OrderItemID      `bson:"_id" json:"id"`
	OrderID     OrderID          `bson:"order_id" json:"order_id"`
	ProductCode string           `bson:"product_code" json:"product_code"`
	Name        string           `bson:"name" json:"name"`
	Category    string           `bson:"category,omitempty" json:"category,omitempty"`
	Quantity    int              `bson:"quantity" json:"quantity"`
	Notes       string           `bson:"notes,omitempty" json:"notes,omitempty"`
	Options     []SelectedOption `bson:"options,omitempty" json:"options,omitempty"`

	// Template lines (non-purchasable composites) are never produced.
	Template bool `bson:"template,omitempty" json:"template,omitempty"`

	// Kitchen/Station start as the explicit override from the order
	// taker, if any. The routing resolver writes the final pair back
	// here, which also makes repeated resolution idempotent.
	Kitchen string `bson:"kitchen,omitempty" json:"kitchen,omitempty"`
	Station string `bson:"station,omitempty" json:"station,omitempty"`

	Sent   bool       `bson:"sent" json:"sent"`
	SentAt *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`

	// Milestones mirror the production item's progress so the order
	// subsystem can show per-line status without reading tickets.
	Milestones Milestones `bson:"milestones" json:"milestones"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (oi *OrderItem) GetID() uuid.UUID {
	return oi.ID
}

func (oi *OrderItem) ResourceType() string {
	return "order-item"
}

// MarkSent flags the line as handed to the kitchen.
func (oi *OrderItem) MarkSent(now time.Time) {
	oi.Sent = true
	at := now
	oi.SentAt = &at
	oi.UpdatedAt = now
}

// Order is the kitchen core's view of the owning order: just enough to
// stamp tickets and to receive the ticket roll-up status.
type Order struct {
	ID         OrderID    `bson:"_id" json:"id"`
	Status     string     `bson:"status" json:"status"`
	TableID    *uuid.UUID `bson:"table_id,omitempty" json:"table_id,omitempty"`
	FloorID    *uuid.UUID `bson:"floor_id,omitempty" json:"floor_id,omitempty"`
	OrderType  string     `bson:"order_type,omitempty" json:"order_type,omitempty"`
	CustomerID *uuid.UUID `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
}
