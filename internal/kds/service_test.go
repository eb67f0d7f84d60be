package kds

import (
	"context"
	"testing"
	"time"

	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
	"github.com/google/uuid"
)

type serviceFixture struct {
	service    *TicketService
	tickets    *MockTicketRepository
	orders     *MockOrderRepository
	orderItems *MockOrderItemRepository
	sink       *MockSink
}

func newServiceFixture(dir Directory) *serviceFixture {
	if dir == nil {
		dir = &StaticDirectory{}
	}
	f := &serviceFixture{
		tickets:    NewMockTicketRepository(),
		orders:     NewMockOrderRepository(),
		orderItems: NewMockOrderItemRepository(),
		sink:       NewMockSink(),
	}
	f.service = NewTicketService(ServiceDeps{
		Tickets:    f.tickets,
		Orders:     f.orders,
		OrderItems: f.orderItems,
		Resolver:   NewResolver(dir),
		Sink:       f.sink,
	}, nil)
	f.service.now = func() time.Time { return fixedNow }
	return f
}

func (f *serviceFixture) addOrder(status string) *Order {
	order := &Order{ID: uuid.New(), Status: status}
	f.orders.AddOrder(order)
	return order
}

func (f *serviceFixture) addLine(orderID OrderID, code, name string) *OrderItem {
	item := &OrderItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductCode: code,
		Name:        name,
		Quantity:    1,
	}
	f.orderItems.AddItem(item)
	return item
}

func TestCreateTicketsRoutesByStation(t *testing.T) {
	dir := &StaticDirectory{
		Products: map[string][2]string{
			"BURGER": {"hot", "Grill"},
		},
	}
	f := newServiceFixture(dir)
	order := f.addOrder("draft")

	f.addLine(order.ID, "BURGER", "Cheeseburger")
	mojito := f.addLine(order.ID, "MOJITO", "Mojito")
	mojito.Kitchen = "bar"
	mojito.Station = "Bar"

	ids, err := f.service.CreateTickets(context.Background(), order.ID, nil, "cashier-1")
	if err != nil {
		t.Fatalf("CreateTickets() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d tickets, want 2", len(ids))
	}

	stations := map[string]bool{}
	for _, id := range ids {
		ticket, err := f.tickets.FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		stations[ticket.StationID] = true
		if len(ticket.Items) != 1 {
			t.Errorf("ticket %s has %d items, want 1", id, len(ticket.Items))
		}
		if ticket.State != ticketstate.States.Queued.Code() {
			t.Errorf("ticket %s state = %q, want queued", id, ticket.State)
		}
		for _, item := range ticket.Items {
			if item.State != ticketstate.States.Queued.Code() {
				t.Errorf("item %s state = %q, want queued", item.ID, item.State)
			}
			if item.Milestones.QueuedAt.IsZero() {
				t.Errorf("item %s has no queued milestone", item.ID)
			}
		}
	}
	if !stations["Grill"] || !stations["Bar"] {
		t.Errorf("stations = %v, want Grill and Bar", stations)
	}

	// Order moved to in-kitchen and both lines flagged sent.
	updated, _ := f.orders.FindByID(context.Background(), order.ID)
	if updated.Status != ticketstate.OrderStates.InKitchen.Code() {
		t.Errorf("order status = %q, want in-kitchen", updated.Status)
	}
	lines, _ := f.orderItems.ListByOrderID(context.Background(), order.ID)
	for _, line := range lines {
		if !line.Sent || line.SentAt == nil {
			t.Errorf("line %s not marked sent", line.ID)
		}
	}

	if len(f.sink.Created) != 2 {
		t.Errorf("got %d created events, want 2", len(f.sink.Created))
	}
}

func TestCreateTicketsSelection(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("draft")

	plain := f.addLine(order.ID, "BURGER", "Cheeseburger")
	sent := f.addLine(order.ID, "FRIES", "Fries")
	sent.MarkSent(fixedNow)
	f.orderItems.AddItem(sent)

	ids, err := f.service.CreateTickets(context.Background(), order.ID, []OrderItemID{plain.ID, sent.ID}, "cashier-1")
	if err != nil {
		t.Fatalf("CreateTickets() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d tickets, want 1", len(ids))
	}
	ticket, _ := f.tickets.FindByID(context.Background(), ids[0])
	if len(ticket.Items) != 1 || ticket.Items[0].OrderLineID != plain.ID {
		t.Errorf("already-sent line was produced again")
	}
}

func TestCreateTicketsValidation(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("draft")
	template := f.addLine(order.ID, "COMBO", "Combo meal")
	template.Template = true
	f.orderItems.AddItem(template)

	tests := []struct {
		name     string
		selected []OrderItemID
		check    func(error) bool
	}{
		{"template selected explicitly", []OrderItemID{template.ID}, IsValidation},
		{"unknown item selected", []OrderItemID{uuid.New()}, IsNotFound},
		{"nothing producible", nil, IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateTickets(context.Background(), order.ID, tt.selected, "cashier-1")
			if err == nil || !tt.check(err) {
				t.Errorf("CreateTickets() error = %v", err)
			}
		})
	}
}

func TestCreateTicketsRepoFailure(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("draft")
	f.addLine(order.ID, "BURGER", "Cheeseburger")

	f.tickets.CreateFunc = func(ctx context.Context, ticket *Ticket) error {
		return errMockFailure
	}

	if _, err := f.service.CreateTickets(context.Background(), order.ID, nil, "cashier-1"); err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	if len(f.sink.Created) != 0 {
		t.Error("created event emitted for unpersisted ticket")
	}
}

func TestCreateTicketsUnknownOrder(t *testing.T) {
	f := newServiceFixture(nil)
	_, err := f.service.CreateTickets(context.Background(), uuid.New(), nil, "cashier-1")
	if !IsNotFound(err) {
		t.Errorf("CreateTickets() error = %v, want not found", err)
	}
}

// seedTicket installs a ticket with the given item states directly into
// the fixture's repository.
func (f *serviceFixture) seedTicket(orderID OrderID, station string, itemStates ...string) *Ticket {
	items := make([]Item, len(itemStates))
	for i, state := range itemStates {
		items[i] = Item{
			ID:         uuid.New(),
			Name:       "Dish",
			Quantity:   1,
			State:      state,
			Milestones: Milestones{QueuedAt: fixedNow},
		}
	}
	ticket := &Ticket{
		OrderID:   orderID,
		StationID: station,
		State:     ticketstate.States.Queued.Code(),
		Items:     items,
	}
	ticket.BeforeCreate()
	f.tickets.AddTicket(ticket)
	return ticket
}

func TestUpdateItemStateRollsUp(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued", "queued", "queued")

	ctx := context.Background()
	a, b, c := ticket.Items[0].ID, ticket.Items[1].ID, ticket.Items[2].ID

	advance := func(id ItemID, states ...string) {
		t.Helper()
		for _, state := range states {
			if _, err := f.service.UpdateItemState(ctx, id, state, "cook-1"); err != nil {
				t.Fatalf("UpdateItemState(%s, %s) error = %v", id, state, err)
			}
		}
	}

	// A and B ready, C still queued: mixed states leave the ticket at
	// queued.
	advance(a, "in-progress", "ready")
	advance(b, "in-progress", "ready")

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.State != ticketstate.States.Queued.Code() {
		t.Fatalf("ticket state = %q, want queued while items are mixed", got.State)
	}

	// C reaches ready: all items agree, ticket rolls up.
	advance(c, "in-progress", "ready")

	got, _ = f.tickets.FindByID(ctx, ticket.ID)
	if got.State != ticketstate.States.Ready.Code() {
		t.Fatalf("ticket state = %q, want ready after final item", got.State)
	}
	if got.ReadyAt == nil {
		t.Error("ticket ready milestone not stamped")
	}

	// The roll-up transition is announced alongside the item event.
	var sawTicketEvent bool
	for _, evt := range f.sink.TicketEvents {
		if evt.TicketID == ticket.ID && evt.Current == "ready" {
			sawTicketEvent = true
		}
	}
	if !sawTicketEvent {
		t.Error("no ticket-updated event for the roll-up")
	}
}

func TestUpdateItemStateInvalid(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued")
	itemID := ticket.Items[0].ID

	_, err := f.service.UpdateItemState(context.Background(), itemID, "ready", "cook-1")
	if !IsInvalidTransition(err) {
		t.Errorf("queued->ready error = %v, want invalid transition", err)
	}

	_, err = f.service.UpdateItemState(context.Background(), itemID, "flambeed", "cook-1")
	if !IsValidation(err) {
		t.Errorf("unknown state error = %v, want validation", err)
	}

	_, err = f.service.UpdateItemState(context.Background(), uuid.New(), "ready", "cook-1")
	if !IsNotFound(err) {
		t.Errorf("unknown item error = %v, want not found", err)
	}
}

func TestUpdateItemStateIdempotent(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued", "queued")
	itemID := ticket.Items[0].ID
	ctx := context.Background()

	if _, err := f.service.UpdateItemState(ctx, itemID, "in-progress", "cook-1"); err != nil {
		t.Fatalf("first transition error = %v", err)
	}
	events := len(f.sink.ItemEvents)

	change, err := f.service.UpdateItemState(ctx, itemID, "in-progress", "cook-2")
	if err != nil {
		t.Fatalf("repeat transition error = %v", err)
	}
	if change.Old != "in-progress" || change.New != "in-progress" {
		t.Errorf("repeat change = %+v", change)
	}
	if len(f.sink.ItemEvents) != events {
		t.Error("no-op transition emitted an event")
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.ItemByID(itemID).UpdatedBy != "cook-1" {
		t.Errorf("no-op transition rewrote actor to %q", got.ItemByID(itemID).UpdatedBy)
	}
}

func TestUpdateItemStateOnCancelledTicket(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued")
	ticket.State = ticketstate.States.Cancelled.Code()

	_, err := f.service.UpdateItemState(context.Background(), ticket.Items[0].ID, "in-progress", "cook-1")
	if !IsInvalidTransition(err) {
		t.Errorf("error = %v, want invalid transition on cancelled ticket", err)
	}
}

func TestItemCancelDoesNotCancelTicket(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued", "queued")
	ctx := context.Background()

	if _, err := f.service.UpdateItemState(ctx, ticket.Items[0].ID, "cancelled", "cook-1"); err != nil {
		t.Fatalf("cancel item error = %v", err)
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.State != ticketstate.States.Queued.Code() {
		t.Errorf("ticket state = %q, want queued after single item cancel", got.State)
	}
}

func TestUpdateTicketStateCascades(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "ready", "in-progress")
	ticket.State = ticketstate.States.InProgress.Code()
	ctx := context.Background()

	// Re-queue a prematurely advanced ticket: both items forced back.
	change, err := f.service.UpdateTicketState(ctx, ticket.ID, "queued", "chef-1")
	if err != nil {
		t.Fatalf("UpdateTicketState() error = %v", err)
	}
	if change.Old != "in-progress" || change.New != "queued" {
		t.Errorf("change = %+v", change)
	}
	if len(change.UpdatedItemIDs) != 2 {
		t.Errorf("cascaded to %d items, want 2", len(change.UpdatedItemIDs))
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.State != ticketstate.States.Queued.Code() {
		t.Errorf("ticket state = %q, want queued", got.State)
	}
	for _, item := range got.Items {
		if item.State != ticketstate.States.Queued.Code() {
			t.Errorf("item %s state = %q, want queued", item.ID, item.State)
		}
	}

	if len(f.sink.TicketEvents) != 1 {
		t.Fatalf("got %d ticket events, want 1", len(f.sink.TicketEvents))
	}
	if len(f.sink.TicketEvents[0].ChangedItems) != 2 {
		t.Errorf("event carries %d changed items, want 2", len(f.sink.TicketEvents[0].ChangedItems))
	}
}

func TestUpdateTicketStateSkipsTerminalItems(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "in-progress", "cancelled")
	ticket.State = ticketstate.States.InProgress.Code()
	ctx := context.Background()

	change, err := f.service.UpdateTicketState(ctx, ticket.ID, "ready", "chef-1")
	if err != nil {
		t.Fatalf("UpdateTicketState() error = %v", err)
	}
	if len(change.UpdatedItemIDs) != 1 {
		t.Errorf("cascaded to %d items, want 1", len(change.UpdatedItemIDs))
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.Items[1].State != ticketstate.States.Cancelled.Code() {
		t.Errorf("terminal item resurrected to %q", got.Items[1].State)
	}
}

func TestUpdateTicketStateInvalid(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "served")
	ticket.State = ticketstate.States.Served.Code()

	_, err := f.service.UpdateTicketState(context.Background(), ticket.ID, "queued", "chef-1")
	if !IsInvalidTransition(err) {
		t.Errorf("error = %v, want invalid transition from terminal state", err)
	}
}

func TestOrderRollUp(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ctx := context.Background()

	served := f.seedTicket(order.ID, "Grill", "ready")
	served.State = ticketstate.States.Ready.Code()
	second := f.seedTicket(order.ID, "Bar", "queued")

	// First ticket served while the second is still in flight.
	if _, err := f.service.UpdateTicketState(ctx, served.ID, "served", "runner-1"); err != nil {
		t.Fatalf("serve first ticket: %v", err)
	}
	if _, err := f.service.UpdateTicketState(ctx, second.ID, "in-progress", "cook-1"); err != nil {
		t.Fatalf("start second ticket: %v", err)
	}

	got, _ := f.orders.FindByID(ctx, order.ID)
	if got.Status != ticketstate.OrderStates.InProgress.Code() {
		t.Fatalf("order status = %q, want in-progress", got.Status)
	}

	// Second ticket finishes: order converges to served.
	if _, err := f.service.UpdateTicketState(ctx, second.ID, "ready", "cook-1"); err != nil {
		t.Fatalf("ready second ticket: %v", err)
	}
	if _, err := f.service.UpdateTicketState(ctx, second.ID, "served", "runner-1"); err != nil {
		t.Fatalf("serve second ticket: %v", err)
	}

	got, _ = f.orders.FindByID(ctx, order.ID)
	if got.Status != ticketstate.OrderStates.Served.Code() {
		t.Errorf("order status = %q, want served", got.Status)
	}
}

func TestBulkUpdateItemsPartialFailure(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued", "ready")
	ctx := context.Background()

	ids := []ItemID{ticket.Items[0].ID, ticket.Items[1].ID, uuid.New()}
	result := f.service.BulkUpdateItems(ctx, ids, "in-progress", "cook-1")

	if len(result.Updated) != 1 {
		t.Errorf("updated %d items, want 1", len(result.Updated))
	}
	if len(result.Failed) != 2 {
		t.Fatalf("failed %d items, want 2", len(result.Failed))
	}
	for _, failure := range result.Failed {
		if failure.Reason == "" {
			t.Errorf("failure for %s has no reason", failure.ItemID)
		}
	}
}

func TestCancelTicketRecordsReason(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "queued", "in-progress")
	ctx := context.Background()

	change, err := f.service.CancelTicket(ctx, ticket.ID, "guest left", "manager-1")
	if err != nil {
		t.Fatalf("CancelTicket() error = %v", err)
	}
	if change.New != ticketstate.States.Cancelled.Code() {
		t.Errorf("change.New = %q, want cancelled", change.New)
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if got.CancelReason != "guest left" {
		t.Errorf("CancelReason = %q", got.CancelReason)
	}
	for _, item := range got.Items {
		if item.State != ticketstate.States.Cancelled.Code() {
			t.Errorf("item %s state = %q, want cancelled", item.ID, item.State)
		}
	}
}

func TestReprintTicket(t *testing.T) {
	f := newServiceFixture(nil)
	order := f.addOrder("in-kitchen")
	ticket := f.seedTicket(order.ID, "Grill", "in-progress")
	ticket.State = ticketstate.States.InProgress.Code()
	ctx := context.Background()

	entry, err := f.service.ReprintTicket(ctx, ticket.ID, "expo-printer", 2, "expo-1")
	if err != nil {
		t.Fatalf("ReprintTicket() error = %v", err)
	}
	if entry.Printer != "expo-printer" || entry.Copies != 2 {
		t.Errorf("entry = %+v", entry)
	}

	got, _ := f.tickets.FindByID(ctx, ticket.ID)
	if len(got.ReprintLog) != 1 {
		t.Fatalf("reprint log has %d entries, want 1", len(got.ReprintLog))
	}
	if got.State != ticketstate.States.InProgress.Code() {
		t.Errorf("reprint changed workflow state to %q", got.State)
	}
	if len(f.sink.TicketEvents) != 0 || len(f.sink.ItemEvents) != 0 {
		t.Error("reprint emitted a display event")
	}
}
