package kds

import "context"

type TicketFilter struct {
	KitchenID *string
	StationID *string
	State     *string
	OrderID   *OrderID
	Limit     int
	Offset    int
}

type TicketRepository interface {
	Create(ctx context.Context, t *Ticket) error
	Update(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, id TicketID) (*Ticket, error)
	FindByItemID(ctx context.Context, id ItemID) (*Ticket, error)
	ListByOrderID(ctx context.Context, id OrderID) ([]Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]Ticket, error)
}

type OrderRepository interface {
	FindByID(ctx context.Context, id OrderID) (*Order, error)
	SetStatus(ctx context.Context, id OrderID, status string) error
}

type OrderItemRepository interface {
	FindByID(ctx context.Context, id OrderItemID) (*OrderItem, error)
	ListByOrderID(ctx context.Context, id OrderID) ([]OrderItem, error)
	Save(ctx context.Context, item *OrderItem) error
}
