package kds

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
	"github.com/comandaclub/expedite/pkg/event"
	"github.com/google/uuid"
)

// TicketStateCache maintains an in-memory view of production tickets,
// indexed by station and workflow state, serving lock-free dashboard
// and SLA reads.
type TicketStateCache struct {
	mu sync.RWMutex
	// tickets indexed by ticket id
	tickets map[uuid.UUID]*Ticket
	// index by station id -> ticket id
	byStation map[string][]uuid.UUID
	// index by workflow state -> ticket id
	byState map[string][]uuid.UUID

	stream events.StreamConsumer // fallback replay source
	repo   TicketRepository
	logger apt.Logger
}

// NewTicketStateCache creates a new ticket cache.
func NewTicketStateCache(stream events.StreamConsumer, repo TicketRepository, logger apt.Logger) *TicketStateCache {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &TicketStateCache{
		tickets:   make(map[uuid.UUID]*Ticket),
		byStation: make(map[string][]uuid.UUID),
		byState:   make(map[string][]uuid.UUID),
		stream:    stream,
		repo:      repo,
		logger:    logger,
	}
}

// Warm loads tickets into the cache. The repository is authoritative
// (it carries full item sets and milestones); if it is unavailable the
// cache falls back to replaying the persistent event stream, which
// yields skeletal station/state entries good enough for counts.
func (c *TicketStateCache) Warm(ctx context.Context) error {
	if c.repo != nil {
		if err := c.warmFromRepo(ctx); err == nil {
			c.removeCompletedTickets()
			return nil
		}
	}

	if c.stream == nil {
		c.logger.Info("neither repo nor stream configured, cache remains empty")
		return nil
	}

	if err := c.warmFromStream(ctx); err != nil {
		c.logger.Info("stream replay failed, cache remains empty", "error", err)
		return nil
	}
	c.removeCompletedTickets()
	return nil
}

func (c *TicketStateCache) warmFromRepo(ctx context.Context) error {
	c.logger.Info("warming ticket cache from repository")

	tickets, err := c.repo.List(ctx, TicketFilter{})
	if err != nil {
		c.logger.Info("failed to warm ticket cache from repository", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range tickets {
		c.setLocked(&tickets[i])
	}

	c.logger.Info("ticket cache warmed from repository", "count", len(tickets))
	return nil
}

// WarmFromRepo loads tickets directly from the repository, bypassing
// the stream. Used after seeding data without publishing events.
func (c *TicketStateCache) WarmFromRepo(ctx context.Context) error {
	return c.warmFromRepo(ctx)
}

func (c *TicketStateCache) warmFromStream(ctx context.Context) error {
	c.logger.Info("warming ticket cache from event stream")

	messages, err := c.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range messages {
		c.applyEnvelopeLocked(msg.Data)
	}

	c.logger.Info("ticket cache warmed from stream", "tickets", len(c.tickets))
	return nil
}

// applyEnvelopeLocked patches the cache from one fan-out envelope.
// Envelopes carry identity and state but not item detail, so replayed
// entries are skeletal. Must be called with c.mu locked.
func (c *TicketStateCache) applyEnvelopeLocked(data []byte) {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error("failed to unmarshal envelope", "error", err)
		return
	}

	ticketID, err := uuid.Parse(env.TicketID)
	if err != nil {
		return
	}

	ticket := c.tickets[ticketID]
	if ticket == nil {
		ticket = &Ticket{
			ID:        ticketID,
			KitchenID: env.KitchenID,
			StationID: env.StationID,
			CreatedAt: env.OccurredAt,
		}
	} else {
		c.removeFromIndex(c.byStation, ticket.StationID, ticketID)
		c.removeFromIndex(c.byState, ticket.State, ticketID)
	}

	// Item-level envelopes carry the item's state; only ticket-level
	// envelopes move the cached ticket state.
	if env.ItemID == "" && env.State != "" {
		ticket.State = env.State
	} else if ticket.State == "" {
		ticket.State = ticketstate.States.Queued.Code()
	}
	ticket.UpdatedAt = env.OccurredAt

	c.tickets[ticketID] = ticket
	c.addToIndex(c.byStation, ticket.StationID, ticketID)
	c.addToIndex(c.byState, ticket.State, ticketID)
}

// removeCompletedTickets filters served and cancelled tickets out of
// the cache so only active production work is indexed.
func (c *TicketStateCache) removeCompletedTickets() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for id, ticket := range c.tickets {
		if ticketstate.IsTerminalCode(ticket.State) {
			c.removeFromIndex(c.byStation, ticket.StationID, id)
			c.removeFromIndex(c.byState, ticket.State, id)
			delete(c.tickets, id)
			removed++
		}
	}

	c.logger.Info("removed completed tickets from cache", "count", removed)
}

// Set updates or adds a ticket to the cache. Called on every committed
// mutation.
func (c *TicketStateCache) Set(ticket *Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(ticket)
}

func (c *TicketStateCache) setLocked(ticket *Ticket) {
	if ticket == nil {
		return
	}

	ticketID := ticket.ID
	if old, exists := c.tickets[ticketID]; exists {
		c.removeFromIndex(c.byStation, old.StationID, ticketID)
		c.removeFromIndex(c.byState, old.State, ticketID)
	}

	c.tickets[ticketID] = ticket
	c.addToIndex(c.byStation, ticket.StationID, ticketID)
	c.addToIndex(c.byState, ticket.State, ticketID)
}

// Get retrieves a ticket by id.
func (c *TicketStateCache) Get(ticketID uuid.UUID) *Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickets[ticketID]
}

// GetByStation returns all tickets for a given station.
func (c *TicketStateCache) GetByStation(stationID string) []*Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.byStation[stationID]
	result := make([]*Ticket, 0, len(ids))
	for _, id := range ids {
		if ticket := c.tickets[id]; ticket != nil {
			result = append(result, ticket)
		}
	}
	return result
}

// GetByState returns all tickets in a given workflow state.
func (c *TicketStateCache) GetByState(state string) []*Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.byState[state]
	result := make([]*Ticket, 0, len(ids))
	for _, id := range ids {
		if ticket := c.tickets[id]; ticket != nil {
			result = append(result, ticket)
		}
	}
	return result
}

// GetByStationAndState returns tickets filtered by both indexes.
func (c *TicketStateCache) GetByStationAndState(stationID, state string) []*Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.byStation[stationID]
	result := make([]*Ticket, 0)
	for _, id := range ids {
		if ticket := c.tickets[id]; ticket != nil && ticket.State == state {
			result = append(result, ticket)
		}
	}
	return result
}

// GetAll returns all cached tickets.
func (c *TicketStateCache) GetAll() []*Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Ticket, 0, len(c.tickets))
	for _, ticket := range c.tickets {
		result = append(result, ticket)
	}
	return result
}

// Remove deletes a ticket from the cache.
func (c *TicketStateCache) Remove(ticketID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ticket := c.tickets[ticketID]
	if ticket == nil {
		return
	}

	c.removeFromIndex(c.byStation, ticket.StationID, ticketID)
	c.removeFromIndex(c.byState, ticket.State, ticketID)
	delete(c.tickets, ticketID)
}

// Count returns the number of tickets in the cache
func (c *TicketStateCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tickets)
}

func (c *TicketStateCache) addToIndex(index map[string][]uuid.UUID, key string, ticketID uuid.UUID) {
	index[key] = append(index[key], ticketID)
}

func (c *TicketStateCache) removeFromIndex(index map[string][]uuid.UUID, key string, ticketID uuid.UUID) {
	ids := index[key]
	for i, id := range ids {
		if id == ticketID {
			index[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}
