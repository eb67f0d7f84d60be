package event

import (
	"fmt"
	"time"
)

const (
	// OrdersConfirmedTopic carries order-confirmation events from the
	// order subsystem; the kitchen core consumes it to cut tickets.
	OrdersConfirmedTopic = "orders.confirmed"

	EventTicketCreated = "kds.ticket.created"
	EventTicketUpdated = "kds.ticket.updated"
	EventItemUpdated   = "kds.item.updated"
)

// Display channel names. Every ticket mutation is multicast to the
// subset of these that applies to the mutated ticket.
const (
	ChannelAllKitchens = "kitchen:all"
)

func KitchenChannel(kitchenID string) string {
	return fmt.Sprintf("kitchen:%s", kitchenID)
}

func StationChannel(stationID string) string {
	return fmt.Sprintf("kitchen:station:%s", stationID)
}

func TableChannel(tableID string) string {
	return fmt.Sprintf("table:%s", tableID)
}

func FloorChannel(floorID string) string {
	return fmt.Sprintf("table_display:floor:%s", floorID)
}

// Envelope is the normalized shape every ticket/item mutation fans out
// as. Optional fields are omitted when the ticket does not carry them.
type Envelope struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	TicketID     string    `json:"ticket_id"`
	ItemID       string    `json:"item_id,omitempty"`
	State        string    `json:"state"`
	KitchenID    string    `json:"kitchen_id,omitempty"`
	StationID    string    `json:"station_id,omitempty"`
	TableID      string    `json:"table_id,omitempty"`
	FloorID      string    `json:"floor_id,omitempty"`
	ChangedItems []string  `json:"changed_items,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Channels returns the fan-out set for the envelope: the global
// channel always, the kitchen/station/table channels when known, and
// the floor channel whenever the table is known and a floor is set.
func (e Envelope) Channels() []string {
	channels := []string{ChannelAllKitchens}
	if e.KitchenID != "" {
		channels = append(channels, KitchenChannel(e.KitchenID))
	}
	if e.StationID != "" {
		channels = append(channels, StationChannel(e.StationID))
	}
	if e.TableID != "" {
		channels = append(channels, TableChannel(e.TableID))
		if e.FloorID != "" {
			channels = append(channels, FloorChannel(e.FloorID))
		}
	}
	return channels
}

// OrderConfirmedEvent is the inbound contract from the order
// subsystem. Items carry everything routing needs; anything beyond
// that is treated as opaque display data.
type OrderConfirmedEvent struct {
	EventType       string    `json:"event_type"`
	OccurredAt      time.Time `json:"occurred_at"`
	OrderID         string    `json:"order_id"`
	SelectedItemIDs []string  `json:"selected_item_ids,omitempty"`
	Actor           string    `json:"actor,omitempty"`
}
