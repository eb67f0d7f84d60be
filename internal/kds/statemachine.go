package kds

import (
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
)

// The transition tables are directed edge sets over the shared state
// vocabulary. The item table is strict forward-only; the ticket table
// is looser so staff can correct course at the ticket level (e.g.
// re-queue a prematurely advanced ticket).

var itemEdges = map[string][]string{
	ticketstate.States.Queued.Code(): {
		ticketstate.States.InProgress.Code(),
		ticketstate.States.Cancelled.Code(),
	},
	ticketstate.States.InProgress.Code(): {
		ticketstate.States.Ready.Code(),
		ticketstate.States.Cancelled.Code(),
	},
	ticketstate.States.Ready.Code(): {
		ticketstate.States.Served.Code(),
		ticketstate.States.Cancelled.Code(),
	},
	ticketstate.States.Served.Code():    {},
	ticketstate.States.Cancelled.Code(): {},
}

var ticketEdges = map[string][]string{
	ticketstate.States.Queued.Code(): {
		ticketstate.States.InProgress.Code(),
		ticketstate.States.Ready.Code(),
		ticketstate.States.Served.Code(),
		ticketstate.States.Cancelled.Code(),
	},
	ticketstate.States.InProgress.Code(): {
		ticketstate.States.Ready.Code(),
		ticketstate.States.Served.Code(),
		ticketstate.States.Cancelled.Code(),
		ticketstate.States.Queued.Code(),
	},
	ticketstate.States.Ready.Code(): {
		ticketstate.States.Served.Code(),
		ticketstate.States.Cancelled.Code(),
		ticketstate.States.InProgress.Code(),
	},
	ticketstate.States.Served.Code():    {},
	ticketstate.States.Cancelled.Code(): {},
}

func edgeAllowed(edges map[string][]string, from, to string) bool {
	if from == to {
		// Transitioning to the current state is an idempotent no-op.
		return true
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemTransitionAllowed reports whether an item may move from one
// state to another. Same-state requests are allowed (no-op).
func ItemTransitionAllowed(from, to string) bool {
	return edgeAllowed(itemEdges, from, to)
}

// TicketTransitionAllowed reports whether a ticket may move from one
// state to another. Same-state requests are allowed (no-op).
func TicketTransitionAllowed(from, to string) bool {
	return edgeAllowed(ticketEdges, from, to)
}

// RollUpTicket derives a ticket state from its items' states: if every
// item shares one state, that state is the roll-up. Mixed states yield
// no roll-up (ok=false) and the ticket keeps whatever it had, which is
// either its prior roll-up or an explicit ticket-level action.
func RollUpTicket(itemStates []string) (string, bool) {
	if len(itemStates) == 0 {
		return "", false
	}
	shared := itemStates[0]
	for _, s := range itemStates[1:] {
		if s != shared {
			return "", false
		}
	}
	return shared, true
}

// RollUpOrder derives an order workflow status from the multiset of
// its tickets' states. It is a pure function with no memory of order
// history; unmatched mixes deliberately yield no change to avoid
// oscillation.
func RollUpOrder(ticketStates []string) (string, bool) {
	if len(ticketStates) == 0 {
		return "", false
	}

	var queued, inProgress, ready, served, cancelled int
	for _, s := range ticketStates {
		switch s {
		case ticketstate.States.Queued.Code():
			queued++
		case ticketstate.States.InProgress.Code():
			inProgress++
		case ticketstate.States.Ready.Code():
			ready++
		case ticketstate.States.Served.Code():
			served++
		case ticketstate.States.Cancelled.Code():
			cancelled++
		}
	}

	total := len(ticketStates)
	switch {
	case cancelled == total:
		return ticketstate.OrderStates.Cancelled.Code(), true
	case served == total:
		return ticketstate.OrderStates.Served.Code(), true
	case ready >= 1 && queued == 0 && inProgress == 0:
		return ticketstate.OrderStates.Ready.Code(), true
	case inProgress >= 1:
		return ticketstate.OrderStates.InProgress.Code(), true
	case queued == total:
		return ticketstate.OrderStates.Draft.Code(), true
	default:
		return "", false
	}
}
