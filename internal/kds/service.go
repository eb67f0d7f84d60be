package kds

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
)

// EventSink receives committed mutations for fan-out. Implementations
// must never fail the mutation: delivery problems are theirs to log
// and drop.
type EventSink interface {
	TicketCreated(ctx context.Context, t *Ticket)
	TicketUpdated(ctx context.Context, t *Ticket, previous string, changedItems []ItemID)
	ItemUpdated(ctx context.Context, t *Ticket, item *Item, previous string)
}

// StateChange reports a single entity transition.
type StateChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// TicketStateChange reports a ticket transition plus the items the
// cascade touched.
type TicketStateChange struct {
	Old            string   `json:"old"`
	New            string   `json:"new"`
	UpdatedItemIDs []ItemID `json:"updated_item_ids"`
}

// BulkResult collects per-item outcomes of a bulk update; partial
// failure never aborts the batch.
type BulkResult struct {
	Updated []ItemID      `json:"updated"`
	Failed  []BulkFailure `json:"failed"`
}

type BulkFailure struct {
	ItemID ItemID `json:"item_id"`
	Reason string `json:"reason"`
}

type ServiceDeps struct {
	Tickets    TicketRepository
	Orders     OrderRepository
	OrderItems OrderItemRepository
	Resolver   *Resolver
	Sink       EventSink
	Cache      *TicketStateCache
}

// TicketService orchestrates ticket creation, validated state
// transitions, and roll-up propagation up to the owning order.
//
// Mutations on the same ticket are serialized through a striped lock
// spanning item write, ticket roll-up, and order roll-up, so roll-ups
// never read a stale sibling snapshot. Operations on different tickets
// proceed independently.
type TicketService struct {
	tickets    TicketRepository
	orders     OrderRepository
	orderItems OrderItemRepository
	resolver   *Resolver
	sink       EventSink
	cache      *TicketStateCache
	logger     apt.Logger

	locks [64]sync.Mutex

	now func() time.Time
}

func NewTicketService(deps ServiceDeps, logger apt.Logger) *TicketService {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &TicketService{
		tickets:    deps.Tickets,
		orders:     deps.Orders,
		orderItems: deps.OrderItems,
		resolver:   deps.Resolver,
		sink:       deps.Sink,
		cache:      deps.Cache,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TicketService) lockFor(id TicketID) *sync.Mutex {
	return &s.locks[int(id[0])%len(s.locks)]
}

// CreateTickets turns a confirmed order's line items into one ticket
// per station. Items already sent to the kitchen and template lines
// are skipped; explicitly selecting a template line is a validation
// error because it cannot be prepared as-is.
func (s *TicketService) CreateTickets(ctx context.Context, orderID OrderID, selectedItemIDs []OrderItemID, actor string) ([]TicketID, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines, err := s.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	candidates, err := selectProducible(lines, selectedItemIDs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, NewValidationError("no items to send to the kitchen")
	}

	groups := s.resolver.GroupByStation(candidates)
	now := s.now()

	var created []*Ticket
	for _, group := range groups {
		ticket := s.buildTicket(order, group, actor, now)
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return nil, err
		}
		created = append(created, ticket)
	}

	for _, line := range candidates {
		line.MarkSent(now)
		if err := s.orderItems.Save(ctx, line); err != nil {
			s.logger.Errorf("cannot mark order item %s as sent: %v", line.ID, err)
		}
	}

	if order.Status == "" || order.Status == ticketstate.OrderStates.Draft.Code() {
		if err := s.orders.SetStatus(ctx, orderID, ticketstate.OrderStates.InKitchen.Code()); err != nil {
			s.logger.Errorf("cannot move order %s to in-kitchen: %v", orderID, err)
		}
	}

	ids := make([]TicketID, 0, len(created))
	for _, ticket := range created {
		ids = append(ids, ticket.ID)
		if s.cache != nil {
			s.cache.Set(ticket)
		}
		if s.sink != nil {
			s.sink.TicketCreated(ctx, ticket)
		}
	}
	return ids, nil
}

// selectProducible applies the selection and drops lines that cannot
// be produced: already-sent lines and, unless explicitly selected,
// template lines.
func selectProducible(lines []OrderItem, selected []OrderItemID) ([]*OrderItem, error) {
	byID := make(map[OrderItemID]*OrderItem, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
	}

	var candidates []*OrderItem
	if len(selected) > 0 {
		for _, id := range selected {
			line, ok := byID[id]
			if !ok {
				return nil, &NotFoundError{Resource: "order item", ID: id.String()}
			}
			if line.Template {
				return nil, NewValidationError("item %s is a template and cannot be prepared", line.Name)
			}
			if line.Sent {
				continue
			}
			candidates = append(candidates, line)
		}
		return candidates, nil
	}

	for i := range lines {
		line := &lines[i]
		if line.Sent || line.Template {
			continue
		}
		candidates = append(candidates, line)
	}
	return candidates, nil
}

func (s *TicketService) buildTicket(order *Order, group StationGroup, actor string, now time.Time) *Ticket {
	items := make([]Item, 0, len(group.Items))
	for _, line := range group.Items {
		items = append(items, Item{
			ID:          apt.GenerateNewID(),
			OrderLineID: line.ID,
			ProductCode: line.ProductCode,
			Name:        line.Name,
			Quantity:    line.Quantity,
			Notes:       line.Notes,
			Options:     line.Options,
			State:       ticketstate.States.Queued.Code(),
			Milestones:  Milestones{QueuedAt: now},
		})
	}

	ticket := &Ticket{
		OrderID:    order.ID,
		KitchenID:  group.KitchenID,
		StationID:  group.StationID,
		TableID:    order.TableID,
		FloorID:    order.FloorID,
		OrderType:  order.OrderType,
		CustomerID: order.CustomerID,
		State:      ticketstate.States.Queued.Code(),
		Items:      items,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	ticket.BeforeCreate()
	return ticket
}

// UpdateItemState moves one item through the item transition table,
// re-evaluates the item->ticket roll-up, then the ticket->order
// roll-up, and emits an item-updated event.
func (s *TicketService) UpdateItemState(ctx context.Context, itemID ItemID, newState, actor string) (StateChange, error) {
	if ticketstate.ByName(newState) == nil {
		return StateChange{}, NewValidationError("unknown state %q", newState)
	}

	owner, err := s.tickets.FindByItemID(ctx, itemID)
	if err != nil {
		return StateChange{}, err
	}

	mu := s.lockFor(owner.ID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read inside the critical section so the roll-up sees the
	// sibling set as of this mutation.
	ticket, err := s.tickets.FindByID(ctx, owner.ID)
	if err != nil {
		return StateChange{}, err
	}

	item := ticket.ItemByID(itemID)
	if item == nil {
		return StateChange{}, &NotFoundError{Resource: "item", ID: itemID.String()}
	}

	old := item.State
	if ticket.State == ticketstate.States.Cancelled.Code() {
		return StateChange{}, &InvalidTransitionError{Entity: "item", From: old, To: newState, Reason: "ticket is cancelled"}
	}
	if old == newState {
		return StateChange{Old: old, New: newState}, nil
	}
	if !ItemTransitionAllowed(old, newState) {
		return StateChange{}, &InvalidTransitionError{Entity: "item", From: old, To: newState}
	}

	now := s.now()
	item.SetState(newState, actor, now)

	previousTicketState := ticket.State
	if shared, ok := RollUpTicket(ticket.ItemStates()); ok && shared != ticket.State {
		ticket.SetState(shared, actor, now)
	}
	ticket.BeforeUpdate()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return StateChange{}, err
	}

	s.mirrorItemProgress(ctx, item, now)
	s.rollUpOrder(ctx, ticket.OrderID)

	if s.cache != nil {
		s.cache.Set(ticket)
	}
	if s.sink != nil {
		s.sink.ItemUpdated(ctx, ticket, item, old)
		if ticket.State != previousTicketState {
			s.sink.TicketUpdated(ctx, ticket, previousTicketState, nil)
		}
	}

	return StateChange{Old: old, New: newState}, nil
}

// UpdateTicketState moves a ticket through the ticket transition table
// and cascades the target state to every non-terminal item. The
// cascade is authoritative: cascaded writes only honor the item
// idempotency check, not the stricter item edge table.
func (s *TicketService) UpdateTicketState(ctx context.Context, ticketID TicketID, newState, actor string) (TicketStateChange, error) {
	if ticketstate.ByName(newState) == nil {
		return TicketStateChange{}, NewValidationError("unknown state %q", newState)
	}

	mu := s.lockFor(ticketID)
	mu.Lock()
	defer mu.Unlock()

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return TicketStateChange{}, err
	}

	old := ticket.State
	if old == newState {
		return TicketStateChange{Old: old, New: newState}, nil
	}
	if !TicketTransitionAllowed(old, newState) {
		return TicketStateChange{}, &InvalidTransitionError{Entity: "ticket", From: old, To: newState}
	}

	now := s.now()
	var changed []ItemID
	for i := range ticket.Items {
		item := &ticket.Items[i]
		if item.IsTerminal() || item.State == newState {
			continue
		}
		item.SetState(newState, actor, now)
		changed = append(changed, item.ID)
	}

	// The ticket's own state is written only after every item cascade
	// has been applied.
	ticket.SetState(newState, actor, now)
	ticket.BeforeUpdate()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return TicketStateChange{}, err
	}

	for _, id := range changed {
		if item := ticket.ItemByID(id); item != nil {
			s.mirrorItemProgress(ctx, item, now)
		}
	}
	s.rollUpOrder(ctx, ticket.OrderID)

	if s.cache != nil {
		s.cache.Set(ticket)
	}
	if s.sink != nil {
		s.sink.TicketUpdated(ctx, ticket, old, changed)
	}

	return TicketStateChange{Old: old, New: newState, UpdatedItemIDs: changed}, nil
}

// BulkUpdateItems applies UpdateItemState per item, collecting
// failures without aborting the batch.
func (s *TicketService) BulkUpdateItems(ctx context.Context, itemIDs []ItemID, newState, actor string) BulkResult {
	result := BulkResult{
		Updated: make([]ItemID, 0, len(itemIDs)),
		Failed:  make([]BulkFailure, 0),
	}
	for _, id := range itemIDs {
		if _, err := s.UpdateItemState(ctx, id, newState, actor); err != nil {
			result.Failed = append(result.Failed, BulkFailure{ItemID: id, Reason: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, id)
	}
	return result
}

// CancelTicket is sugar for a cancelled-state transition, recording
// the optional reason for the audit trail.
func (s *TicketService) CancelTicket(ctx context.Context, ticketID TicketID, reason, actor string) (TicketStateChange, error) {
	if reason != "" {
		mu := s.lockFor(ticketID)
		mu.Lock()
		ticket, err := s.tickets.FindByID(ctx, ticketID)
		if err != nil {
			mu.Unlock()
			return TicketStateChange{}, err
		}
		ticket.CancelReason = reason
		ticket.BeforeUpdate()
		if err := s.tickets.Update(ctx, ticket); err != nil {
			mu.Unlock()
			return TicketStateChange{}, err
		}
		mu.Unlock()
	}
	return s.UpdateTicketState(ctx, ticketID, ticketstate.States.Cancelled.Code(), actor)
}

// ReprintTicket appends an audit entry for a reprint; workflow state
// is untouched and no display event is emitted.
func (s *TicketService) ReprintTicket(ctx context.Context, ticketID TicketID, printer string, copies int, actor string) (ReprintEntry, error) {
	mu := s.lockFor(ticketID)
	mu.Lock()
	defer mu.Unlock()

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return ReprintEntry{}, err
	}

	entry := ticket.AddReprint(printer, copies, actor, s.now())
	ticket.BeforeUpdate()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return ReprintEntry{}, err
	}

	if s.cache != nil {
		s.cache.Set(ticket)
	}
	return entry, nil
}

// mirrorItemProgress copies an item's milestones back onto the source
// order line so the order subsystem can show per-line progress. The
// mirror is advisory: failures are logged, never surfaced.
func (s *TicketService) mirrorItemProgress(ctx context.Context, item *Item, now time.Time) {
	line, err := s.orderItems.FindByID(ctx, item.OrderLineID)
	if err != nil {
		s.logger.Errorf("cannot load order item %s for progress mirror: %v", item.OrderLineID, err)
		return
	}
	line.Milestones = item.Milestones
	line.UpdatedAt = now
	if err := s.orderItems.Save(ctx, line); err != nil {
		s.logger.Errorf("cannot mirror progress to order item %s: %v", line.ID, err)
	}
}

// rollUpOrder re-derives the order workflow status from all of its
// tickets. The mapping is monotone-idempotent, so a failed or stale
// write converges on the next mutation.
func (s *TicketService) rollUpOrder(ctx context.Context, orderID OrderID) {
	tickets, err := s.tickets.ListByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Errorf("cannot list tickets for order %s roll-up: %v", orderID, err)
		return
	}

	states := make([]string, len(tickets))
	for i := range tickets {
		states[i] = tickets[i].State
	}

	status, ok := RollUpOrder(states)
	if !ok {
		return
	}
	if err := s.orders.SetStatus(ctx, orderID, status); err != nil {
		s.logger.Errorf("cannot set order %s status to %s: %v", orderID, status, err)
	}
}
