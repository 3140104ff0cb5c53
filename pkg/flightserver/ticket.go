package flightserver

import (
	"encoding/json"
	"fmt"
)

// Ticket is the JSON body a DoGet caller's flight.Ticket carries: which
// target (a subject-owned stored table's epoch-seconds name, or "system"
// for an external dataset provider) and which column within it.
type Ticket struct {
	Target     string `json:"target"`
	ColumnName string `json:"column_name"`
}

// ToJSON serializes the ticket.
func (t Ticket) ToJSON() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("flightserver: marshal ticket: %w", err)
	}
	return string(b), nil
}

// TicketFromJSON parses a ticket body.
func TicketFromJSON(data []byte) (Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("flightserver: invalid ticket: %w", err)
	}
	return t, nil
}

// SystemTarget is the reserved target name routed to the configured
// external dataset provider instead of the subject-scoped table store.
const SystemTarget = "system"
