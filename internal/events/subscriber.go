package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/comandaclub/expedite/internal/kds"
	"github.com/comandaclub/expedite/pkg/event"
	"github.com/google/uuid"
)

// TicketCreator is the slice of the ticket service the subscriber
// needs.
type TicketCreator interface {
	CreateTickets(ctx context.Context, orderID kds.OrderID, selectedItemIDs []kds.OrderItemID, actor string) ([]kds.TicketID, error)
}

// OrderConfirmedSubscriber listens for order confirmations from the
// order subsystem and cuts production tickets. Redeliveries are safe:
// lines already sent to the kitchen are filtered out, and a
// confirmation with nothing left to produce is dropped.
type OrderConfirmedSubscriber struct {
	subscriber events.Subscriber
	service    TicketCreator
	logger     apt.Logger
}

func NewOrderConfirmedSubscriber(subscriber events.Subscriber, service TicketCreator, logger apt.Logger) *OrderConfirmedSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &OrderConfirmedSubscriber{
		subscriber: subscriber,
		service:    service,
		logger:     logger,
	}
}

func (s *OrderConfirmedSubscriber) Start(ctx context.Context) error {
	s.logger.Info("starting order confirmed subscriber", "topic", event.OrdersConfirmedTopic)

	if s.subscriber == nil {
		return fmt.Errorf("order confirmed subscriber not configured")
	}

	if err := s.subscriber.Subscribe(ctx, event.OrdersConfirmedTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.OrdersConfirmedTopic, err)
	}
	return nil
}

func (s *OrderConfirmedSubscriber) Stop(ctx context.Context) error {
	return nil
}

func (s *OrderConfirmedSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.OrderConfirmedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("invalid order confirmed event: %v", err)
		return nil
	}

	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		s.logger.Errorf("invalid order_id %q in confirmation: %v", evt.OrderID, err)
		return nil
	}

	var selected []kds.OrderItemID
	for _, raw := range evt.SelectedItemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Errorf("invalid selected item id %q: %v", raw, err)
			return nil
		}
		selected = append(selected, id)
	}

	ticketIDs, err := s.service.CreateTickets(ctx, orderID, selected, evt.Actor)
	if err != nil {
		// Nothing left to produce is the normal redelivery case.
		if kds.IsValidation(err) {
			s.logger.Info("no tickets created for order", "order_id", orderID, "reason", err.Error())
			return nil
		}
		s.logger.Errorf("cannot create tickets for order %s: %v", orderID, err)
		return err
	}

	s.logger.Infof("Created %d ticket(s) for order %s", len(ticketIDs), orderID)
	return nil
}
