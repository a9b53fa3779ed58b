package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names the ledger change that happened.
type EventKind string

const (
	EventAllocation EventKind = "allocation"
	EventSubmission EventKind = "submission"
	EventDecision   EventKind = "decision"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventAllocation, EventSubmission, EventDecision:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notice that a ledger row changed. It carries
// only references; consumers re-read the row from the database.
//
// Ref is the transaction row id for submissions and decisions, and the
// allocation id for allocations.
type LedgerEvent struct {
	Kind         EventKind `json:"kind"`
	DepartmentID string    `json:"department_id"`
	Ref          string    `json:"ref"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, departmentID, ref string) *LedgerEvent {
	return &LedgerEvent{
		Kind:         kind,
		DepartmentID: departmentID,
		Ref:          ref,
		Timestamp:    time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and validates an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.Ref == "" {
		return nil, fmt.Errorf("event without ref")
	}
	return &msg, nil
}
