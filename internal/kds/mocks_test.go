package kds

import (
	"context"
	"errors"
	"time"

	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
)

// MockTicketRepository is a test mock for TicketRepository
type MockTicketRepository struct {
	tickets        map[uuid.UUID]*Ticket
	CreateFunc     func(ctx context.Context, t *Ticket) error
	UpdateFunc     func(ctx context.Context, t *Ticket) error
	FindByIDFunc   func(ctx context.Context, id TicketID) (*Ticket, error)
	FindByItemFunc func(ctx context.Context, id ItemID) (*Ticket, error)
	ListFunc       func(ctx context.Context, filter TicketFilter) ([]Ticket, error)
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{
		tickets: make(map[uuid.UUID]*Ticket),
	}
}

func (m *MockTicketRepository) Create(ctx context.Context, t *Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *MockTicketRepository) Update(ctx context.Context, t *Ticket) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	if _, exists := m.tickets[t.ID]; !exists {
		return &NotFoundError{Resource: "ticket", ID: t.ID.String()}
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *MockTicketRepository) FindByID(ctx context.Context, id TicketID) (*Ticket, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	t, exists := m.tickets[id]
	if !exists {
		return nil, &NotFoundError{Resource: "ticket", ID: id.String()}
	}
	return t, nil
}

func (m *MockTicketRepository) FindByItemID(ctx context.Context, id ItemID) (*Ticket, error) {
	if m.FindByItemFunc != nil {
		return m.FindByItemFunc(ctx, id)
	}
	for _, t := range m.tickets {
		if t.ItemByID(id) != nil {
			return t, nil
		}
	}
	return nil, &NotFoundError{Resource: "item", ID: id.String()}
}

func (m *MockTicketRepository) ListByOrderID(ctx context.Context, id OrderID) ([]Ticket, error) {
	return m.List(ctx, TicketFilter{OrderID: &id})
}

func (m *MockTicketRepository) List(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	result := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if filter.KitchenID != nil && t.KitchenID != *filter.KitchenID {
			continue
		}
		if filter.StationID != nil && t.StationID != *filter.StationID {
			continue
		}
		if filter.State != nil && t.State != *filter.State {
			continue
		}
		if filter.OrderID != nil && t.OrderID != *filter.OrderID {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

// AddTicket is a helper to seed the mock repository
func (m *MockTicketRepository) AddTicket(t *Ticket) {
	m.tickets[t.ID] = t
}

// MockOrderRepository is a test mock for OrderRepository
type MockOrderRepository struct {
	orders        map[uuid.UUID]*Order
	FindByIDFunc  func(ctx context.Context, id OrderID) (*Order, error)
	SetStatusFunc func(ctx context.Context, id OrderID, status string) error
	StatusWrites  []string
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[uuid.UUID]*Order),
	}
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id OrderID) (*Order, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	order, exists := m.orders[id]
	if !exists {
		return nil, &NotFoundError{Resource: "order", ID: id.String()}
	}
	return order, nil
}

func (m *MockOrderRepository) SetStatus(ctx context.Context, id OrderID, status string) error {
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(ctx, id, status)
	}
	order, exists := m.orders[id]
	if !exists {
		return &NotFoundError{Resource: "order", ID: id.String()}
	}
	order.Status = status
	m.StatusWrites = append(m.StatusWrites, status)
	return nil
}

// AddOrder is a helper to seed the mock repository
func (m *MockOrderRepository) AddOrder(order *Order) {
	m.orders[order.ID] = order
}

// MockOrderItemRepository is a test mock for OrderItemRepository
type MockOrderItemRepository struct {
	items        map[uuid.UUID]*OrderItem
	FindByIDFunc func(ctx context.Context, id OrderItemID) (*OrderItem, error)
	ListFunc     func(ctx context.Context, id OrderID) ([]OrderItem, error)
	SaveFunc     func(ctx context.Context, item *OrderItem) error
}

func NewMockOrderItemRepository() *MockOrderItemRepository {
	return &MockOrderItemRepository{
		items: make(map[uuid.UUID]*OrderItem),
	}
}

func (m *MockOrderItemRepository) FindByID(ctx context.Context, id OrderItemID) (*OrderItem, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	item, exists := m.items[id]
	if !exists {
		return nil, &NotFoundError{Resource: "order item", ID: id.String()}
	}
	return item, nil
}

func (m *MockOrderItemRepository) ListByOrderID(ctx context.Context, id OrderID) ([]OrderItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, id)
	}
	var result []OrderItem
	for _, item := range m.items {
		if item.OrderID == id {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (m *MockOrderItemRepository) Save(ctx context.Context, item *OrderItem) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, item)
	}
	copied := *item
	m.items[item.ID] = &copied
	return nil
}

// AddItem is a helper to seed the mock repository
func (m *MockOrderItemRepository) AddItem(item *OrderItem) {
	m.items[item.ID] = item
}

// MockSink records every event handed to it
type MockSink struct {
	Created      []TicketID
	TicketEvents []SinkTicketEvent
	ItemEvents   []SinkItemEvent
}

type SinkTicketEvent struct {
	TicketID     TicketID
	Previous     string
	Current      string
	ChangedItems []ItemID
}

type SinkItemEvent struct {
	TicketID TicketID
	ItemID   ItemID
	Previous string
	Current  string
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) TicketCreated(ctx context.Context, t *Ticket) {
	m.Created = append(m.Created, t.ID)
}

func (m *MockSink) TicketUpdated(ctx context.Context, t *Ticket, previous string, changedItems []ItemID) {
	m.TicketEvents = append(m.TicketEvents, SinkTicketEvent{
		TicketID:     t.ID,
		Previous:     previous,
		Current:      t.State,
		ChangedItems: changedItems,
	})
}

func (m *MockSink) ItemUpdated(ctx context.Context, t *Ticket, item *Item, previous string) {
	m.ItemEvents = append(m.ItemEvents, SinkItemEvent{
		TicketID: t.ID,
		ItemID:   item.ID,
		Previous: previous,
		Current:  item.State,
	})
}

// StaticDirectory is a map-backed routing directory for tests
type StaticDirectory struct {
	Products       map[string][2]string // code -> {kitchen, station}
	Categories     map[string]string
	KitchenDefault map[string]string
	Default        string
}

func (d *StaticDirectory) ProductRoute(code string) (string, string) {
	route, ok := d.Products[code]
	if !ok {
		return "", ""
	}
	return route[0], route[1]
}

func (d *StaticDirectory) CategoryStation(category string) string {
	return d.Categories[category]
}

func (d *StaticDirectory) KitchenDefaultStation(kitchenID string) string {
	return d.KitchenDefault[kitchenID]
}

func (d *StaticDirectory) DefaultStation() string {
	return d.Default
}

// StaticTargets is a map-backed SLA target directory for tests
type StaticTargets struct {
	Stations map[string]Targets
	Kitchens map[string]Targets

	Warning  float64
	Critical float64
	Expired  float64
}

func (t *StaticTargets) StationTargets(stationID string) (Targets, bool) {
	targets, ok := t.Stations[stationID]
	return targets, ok
}

func (t *StaticTargets) KitchenTargets(kitchenID string) (Targets, bool) {
	targets, ok := t.Kitchens[kitchenID]
	return targets, ok
}

func (t *StaticTargets) Fractions() (float64, float64, float64) {
	warning, critical, expired := t.Warning, t.Critical, t.Expired
	if warning == 0 {
		warning = DefaultWarningFraction
	}
	if critical == 0 {
		critical = DefaultCriticalFraction
	}
	if expired == 0 {
		expired = DefaultExpiredFraction
	}
	return warning, critical, expired
}

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages            []events.StreamMessage
	FetchFunc           func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
	SubscribeStreamFunc func(ctx context.Context, handler events.HandlerFunc) error
}

func NewMockStreamConsumer() *MockStreamConsumer {
	return &MockStreamConsumer{
		messages: make([]events.StreamMessage, 0),
	}
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	if m.SubscribeStreamFunc != nil {
		return m.SubscribeStreamFunc(ctx, handler)
	}
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{Data: data})
}

var errMockFailure = errors.New("mock failure")

func newTestID() uuid.UUID {
	return uuid.New()
}

// fixedNow pins service clocks in tests
var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
