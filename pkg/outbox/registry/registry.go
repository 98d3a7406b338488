// Package registry routes outbox rows to topics and decodes their payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/outbox/payloads"
)

// PermanentError marks a row that can never be delivered as stored.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e PermanentError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

// Route says where one event type goes and how its data decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(raw, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Resolved is a validated row ready to send.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
}

type Registry struct {
	routes map[enums.OutboxEventType]Route
}

// New registers every studio event on the configured domain topic.
func New(cfg config.PubSubConfig) (*Registry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic not configured")
	}
	r := &Registry{routes: map[enums.OutboxEventType]Route{}}
	for _, rt := range []Route{
		route[payloads.ApplicationSubmittedEvent](enums.EventApplicationSubmitted, enums.AggregateApplication, cfg.DomainTopic),
		route[payloads.ApplicationDecidedEvent](enums.EventApplicationDecided, enums.AggregateApplication, cfg.DomainTopic),
	} {
		r.routes[rt.EventType] = rt
	}
	return r, nil
}

// Resolve checks a row against its route and decodes the envelope and data.
// Every failure is permanent; a retry would read the same bytes.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	rt, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, permanent("no route for event type %q", row.EventType)
	case rt.AggregateType != row.AggregateType:
		return nil, permanent("%s belongs to %s, row says %s", row.EventType, rt.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("%s row has no aggregate id", row.EventType)
	}

	var env outbox.Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if env.Version != outbox.EnvelopeVersion {
		return nil, permanent("envelope version %d not supported", env.Version)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s envelope has no data", row.EventType)
	}

	payload, err := rt.decode(env.Data)
	if err != nil {
		return nil, permanent("decode %s data: %w", row.EventType, err)
	}
	return &Resolved{Route: rt, Envelope: env, Payload: payload}, nil
}
