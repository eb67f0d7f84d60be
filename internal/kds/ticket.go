package kds

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
	"github.com/google/uuid"
)

type TicketID = uuid.UUID
type ItemID = uuid.UUID
type OrderID = uuid.UUID
type OrderItemID = uuid.UUID

// Ticket is one production job for one station, belonging to exactly
// one order. It exclusively owns its Items; items are never moved
// between tickets. Terminal tickets are retained for audit and SLA
// history, never hard-deleted.
type Ticket struct {
	ID           TicketID       `bson:"_id" json:"id"`
	OrderID      OrderID        `bson:"order_id" json:"order_id"`
	KitchenID    string         `bson:"kitchen_id,omitempty" json:"kitchen_id,omitempty"`
	StationID    string         `bson:"station_id" json:"station_id"`
	TableID      *uuid.UUID     `bson:"table_id,omitempty" json:"table_id,omitempty"`
	FloorID      *uuid.UUID     `bson:"floor_id,omitempty" json:"floor_id,omitempty"`
	OrderType    string         `bson:"order_type,omitempty" json:"order_type,omitempty"`
	CustomerID   *uuid.UUID     `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	State        string         `bson:"state" json:"state"`
	Items        []Item         `bson:"items" json:"items"`
	CancelReason string         `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	ReprintLog   []ReprintEntry `bson:"reprint_log,omitempty" json:"reprint_log,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
	StartedAt *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	ReadyAt   *time.Time `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
	ServedAt  *time.Time `bson:"served_at,omitempty" json:"served_at,omitempty"`
	CreatedBy string     `bson:"created_by,omitempty" json:"created_by,omitempty"`
	UpdatedBy string     `bson:"updated_by,omitempty" json:"updated_by,omitempty"`

	ModelVersion int `bson:"model_version" json:"model_version"`
}

// Item is one line of a ticket: one ordered product and quantity to be
// prepared at the ticket's station.
type Item struct {
	ID          ItemID           `bson:"id" json:"id"`
	OrderLineID OrderItemID      `bson:"order_line_id" json:"order_line_id"`
	ProductCode string           `bson:"product_code" json:"product_code"`
	Name        string           `bson:"name" json:"name"`
	Quantity    int              `bson:"quantity" json:"quantity"`
	Notes       string           `bson:"notes,omitempty" json:"notes,omitempty"`
	Options     []SelectedOption `bson:"options,omitempty" json:"options,omitempty"`
	State       string           `bson:"state" json:"state"`
	UpdatedBy   string           `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	Milestones  Milestones       `bson:"milestones" json:"milestones"`
}

// SelectedOption is display-only data carried through from the order
// line. It never participates in routing or state decisions.
type SelectedOption struct {
	Name  string `bson:"name" json:"name"`
	Value string `bson:"value" json:"value"`
}

// Milestones records when an item reached each workflow milestone.
// QueuedAt is always set; the rest are set the first time the item
// reaches that state.
type Milestones struct {
	QueuedAt    time.Time  `bson:"queued_at" json:"queued_at"`
	PreparingAt *time.Time `bson:"preparing_at,omitempty" json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `bson:"ready_at,omitempty" json:"ready_at,omitempty"`
	ServedAt    *time.Time `bson:"served_at,omitempty" json:"served_at,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
}

// ReprintEntry is one audit record of a ticket reprint.
type ReprintEntry struct {
	Printer   string    `bson:"printer,omitempty" json:"printer,omitempty"`
	Copies    int       `bson:"copies" json:"copies"`
	PrintedAt time.Time `bson:"printed_at" json:"printed_at"`
	Actor     string    `bson:"actor,omitempty" json:"actor,omitempty"`
}

func (t *Ticket) GetID() uuid.UUID {
	return t.ID
}

func (t *Ticket) ResourceType() string {
	return "ticket"
}

func (t *Ticket) EnsureID() {
	if t.ID == uuid.Nil {
		t.ID = apt.GenerateNewID()
	}
}

func (t *Ticket) BeforeCreate() {
	t.EnsureID()
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
}

func (t *Ticket) BeforeUpdate() {
	t.UpdatedAt = time.Now()
}

// ItemByID returns the owned item with the given id, or nil.
func (t *Ticket) ItemByID(id ItemID) *Item {
	for i := range t.Items {
		if t.Items[i].ID == id {
			return &t.Items[i]
		}
	}
	return nil
}

// ItemStates returns the current state of every owned item, in item
// order.
func (t *Ticket) ItemStates() []string {
	states := make([]string, len(t.Items))
	for i := range t.Items {
		states[i] = t.Items[i].State
	}
	return states
}

// SetState moves the ticket to a new state, stamping the matching
// milestone the first time it is reached.
func (t *Ticket) SetState(state, actor string, now time.Time) {
	t.State = state
	t.UpdatedBy = actor
	t.UpdatedAt = now

	switch state {
	case ticketstate.States.InProgress.Code():
		if t.StartedAt == nil {
			at := now
			t.StartedAt = &at
		}
	case ticketstate.States.Ready.Code():
		if t.ReadyAt == nil {
			at := now
			t.ReadyAt = &at
		}
	case ticketstate.States.Served.Code():
		if t.ServedAt == nil {
			at := now
			t.ServedAt = &at
		}
	}
}

// AddReprint appends an audit entry for a reprint and returns it.
// Reprinting never touches workflow state.
func (t *Ticket) AddReprint(printer string, copies int, actor string, now time.Time) ReprintEntry {
	if copies <= 0 {
		copies = 1
	}
	entry := ReprintEntry{
		Printer:   printer,
		Copies:    copies,
		PrintedAt: now,
		Actor:     actor,
	}
	t.ReprintLog = append(t.ReprintLog, entry)
	t.UpdatedBy = actor
	t.UpdatedAt = now
	return entry
}

// SetState moves the item to a new state, stamping the matching
// milestone the first time it is reached. Callers are responsible for
// validating the transition first.
func (it *Item) SetState(state, actor string, now time.Time) {
	it.State = state
	it.UpdatedBy = actor

	switch state {
	case ticketstate.States.InProgress.Code():
		if it.Milestones.PreparingAt == nil {
			at := now
			it.Milestones.PreparingAt = &at
		}
	case ticketstate.States.Ready.Code():
		if it.Milestones.ReadyAt == nil {
			at := now
			it.Milestones.ReadyAt = &at
		}
	case ticketstate.States.Served.Code():
		if it.Milestones.ServedAt == nil {
			at := now
			it.Milestones.ServedAt = &at
		}
	case ticketstate.States.Cancelled.Code():
		if it.Milestones.CancelledAt == nil {
			at := now
			it.Milestones.CancelledAt = &at
		}
	}
}

func (it *Item) IsTerminal() bool {
	return ticketstate.IsTerminalCode(it.State)
}
