package ticketstate

import (
	"strings"
)

type State struct {
	Name string
}

func (s State) Code() string {
	return s.Name
}

func (s State) Label() string {
	parts := strings.Split(s.Name, "-")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

func (s State) IsTerminal() bool {
	return s.Name == States.Served.Name || s.Name == States.Cancelled.Name
}

// Enum holds the shared workflow vocabulary used by both items and
// tickets. Served and Cancelled are terminal.
type Enum struct {
	Queued     State
	InProgress State
	Ready      State
	Served     State
	Cancelled  State
}

var States = Enum{
	Queued:     State{Name: "queued"},
	InProgress: State{Name: "in-progress"},
	Ready:      State{Name: "ready"},
	Served:     State{Name: "served"},
	Cancelled:  State{Name: "cancelled"},
}

var All = []State{
	States.Queued,
	States.InProgress,
	States.Ready,
	States.Served,
	States.Cancelled,
}

// ByName returns the state for a given name, or nil if not found
func ByName(name string) *State {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// IsTerminalCode reports whether a raw state code is terminal.
func IsTerminalCode(code string) bool {
	return code == States.Served.Code() || code == States.Cancelled.Code()
}

// Order-level workflow states. Orders start in draft, move to
// in-kitchen once the first ticket is cut, and afterwards track the
// roll-up of their tickets.
type OrderEnum struct {
	Draft      State
	InKitchen  State
	InProgress State
	Ready      State
	Served     State
	Cancelled  State
}

var OrderStates = OrderEnum{
	Draft:      State{Name: "draft"},
	InKitchen:  State{Name: "in-kitchen"},
	InProgress: State{Name: "in-progress"},
	Ready:      State{Name: "ready"},
	Served:     State{Name: "served"},
	Cancelled:  State{Name: "cancelled"},
}
