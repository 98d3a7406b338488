package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
)

// EnvelopeVersion is written on every envelope. Consumers reject versions
// they do not know.
const EnvelopeVersion = 1

// Actor is the reviewer whose action produced an event.
type Actor struct {
	ReviewerID uuid.UUID `json:"reviewerId"`
	Role       string    `json:"role,omitempty"`
}

// Envelope is the JSON document stored in outbox_events.payload and sent
// verbatim as the message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Event is a domain event before it is written to the outbox.
type Event struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

// Seal wraps the event data in a fresh envelope and returns the outbox row
// to insert. OccurredAt defaults to now.
func (e Event) Seal(now time.Time) (models.OutboxEvent, Envelope, error) {
	if !e.EventType.IsValid() {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, Envelope{}, errors.New("aggregate id required")
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}

	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	env := Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       body,
	}, env, nil
}
