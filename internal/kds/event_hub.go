package kds

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/pkg/event"
	"github.com/google/uuid"
)

// EventHub broadcasts fan-out envelopes to display clients connected
// directly to this service over SSE. Delivery is best-effort: a slow
// client's buffer overflowing drops events for that client only.
type EventHub struct {
	logger apt.Logger

	mu          sync.RWMutex
	subscribers map[string]chan event.Envelope
}

func NewEventHub(logger apt.Logger) *EventHub {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &EventHub{
		logger:      logger,
		subscribers: make(map[string]chan event.Envelope),
	}
}

// Subscribe registers a client and returns its delivery channel.
func (h *EventHub) Subscribe(subscriberID string) <-chan event.Envelope {
	ch := make(chan event.Envelope, 100)
	h.mu.Lock()
	h.subscribers[subscriberID] = ch
	h.mu.Unlock()
	h.logger.Info("new display subscriber", "subscriber_id", subscriberID)
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *EventHub) Unsubscribe(subscriberID string) {
	h.mu.Lock()
	ch, ok := h.subscribers[subscriberID]
	if ok {
		delete(h.subscribers, subscriberID)
	}
	h.mu.Unlock()
	if ok {
		close(ch)
		h.logger.Info("display subscriber disconnected", "subscriber_id", subscriberID)
	}
}

// Broadcast delivers one envelope to every connected client without
// blocking on any of them.
func (h *EventHub) Broadcast(env event.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- env:
		default:
			h.logger.Info("dropping event for slow display subscriber", "subscriber_id", id)
		}
	}
}

// SubscriberCount returns the number of connected clients.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeSSE streams envelopes to one HTTP client as Server-Sent Events.
// An optional "channel" query parameter narrows delivery to envelopes
// addressed to that channel (e.g. kitchen:station:Grill).
func (h *EventHub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apt.RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	channel := r.URL.Query().Get("channel")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subscriberID := uuid.NewString()
	events := h.Subscribe(subscriberID)
	defer h.Unsubscribe(subscriberID)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case env, open := <-events:
			if !open {
				return
			}
			if channel != "" && !envelopeOnChannel(env, channel) {
				continue
			}
			payload, err := json.Marshal(env)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.EventType, payload)
			flusher.Flush()
		}
	}
}

func envelopeOnChannel(env event.Envelope, channel string) bool {
	for _, c := range env.Channels() {
		if c == channel {
			return true
		}
	}
	return false
}
