// Package notify carries expense change events between the write path and
// the balance cache, either in-process or over an AMQP fanout exchange.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
	// OpImported is sent once per batch import rather than per expense.
	OpImported Op = "imported"
)

// Event says that the expense set of a trip changed.
type Event struct {
	TripID    uuid.UUID `json:"trip_id"`
	ExpenseID uuid.UUID `json:"expense_id"`
	Op        Op        `json:"op"`
	At        time.Time `json:"at"`
}

func NewEvent(tripID, expenseID uuid.UUID, op Op) Event {
	return Event{TripID: tripID, ExpenseID: expenseID, Op: op, At: time.Now().UTC()}
}

func (e Event) ToJSON() ([]byte, error) { return json.Marshal(e) }

var errNoTrip = errors.New("event without trip_id")

// EventFromJSON decodes a message body; events without a trip are rejected.
func EventFromJSON(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.TripID == uuid.Nil {
		return Event{}, errNoTrip
	}
	return e, nil
}

// Handler reacts to a received event.
type Handler func(ctx context.Context, e Event) error

// Func adapts a plain function to the notifier interface used by the expense service.
type Func func(ctx context.Context, e Event) error

func (f Func) Notify(ctx context.Context, e Event) error { return f(ctx, e) }
