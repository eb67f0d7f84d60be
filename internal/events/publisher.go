package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/comandaclub/expedite/internal/kds"
	"github.com/comandaclub/expedite/pkg/event"
	"github.com/google/uuid"
)

// Publisher normalizes ticket/item mutations into fan-out envelopes
// and multicasts them to the display channels. Delivery is best-effort
// and fire-and-forget: a failed publish is logged and dropped, never
// surfaced to the mutating caller.
type Publisher struct {
	publisher events.Publisher
	hub       *kds.EventHub
	logger    apt.Logger

	now func() time.Time
}

func NewPublisher(publisher events.Publisher, hub *kds.EventHub, logger apt.Logger) *Publisher {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Publisher{
		publisher: publisher,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Publisher) TicketCreated(ctx context.Context, t *kds.Ticket) {
	env := p.envelopeFor(t, event.EventTicketCreated)
	env.State = t.State
	p.fanOut(ctx, env)
}

func (p *Publisher) TicketUpdated(ctx context.Context, t *kds.Ticket, previous string, changedItems []kds.ItemID) {
	env := p.envelopeFor(t, event.EventTicketUpdated)
	env.State = t.State
	for _, id := range changedItems {
		env.ChangedItems = append(env.ChangedItems, id.String())
	}
	p.fanOut(ctx, env)
}

func (p *Publisher) ItemUpdated(ctx context.Context, t *kds.Ticket, item *kds.Item, previous string) {
	env := p.envelopeFor(t, event.EventItemUpdated)
	env.ItemID = item.ID.String()
	env.State = item.State
	p.fanOut(ctx, env)
}

func (p *Publisher) envelopeFor(t *kds.Ticket, eventType string) event.Envelope {
	env := event.Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		TicketID:   t.ID.String(),
		KitchenID:  t.KitchenID,
		StationID:  t.StationID,
		OccurredAt: p.now().UTC(),
	}
	if t.TableID != nil {
		env.TableID = t.TableID.String()
		if t.FloorID != nil {
			env.FloorID = t.FloorID.String()
		}
	}
	return env
}

// fanOut delivers one envelope to every channel it belongs on, in
// order: publishing is synchronous per channel so events for the same
// ticket reach each channel in mutation order.
func (p *Publisher) fanOut(ctx context.Context, env event.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Errorf("cannot marshal envelope %s: %v", env.EventID, err)
		return
	}

	if p.publisher != nil {
		for _, channel := range env.Channels() {
			if err := p.publisher.Publish(ctx, channel, payload); err != nil {
				p.logger.Errorf("cannot publish %s to %s: %v", env.EventType, channel, err)
			}
		}
	}

	if p.hub != nil {
		p.hub.Broadcast(env)
	}
}
