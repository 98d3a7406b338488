package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/claystudio/membership-backend/pkg/config"
	"github.com/claystudio/membership-backend/pkg/db/models"
	"github.com/claystudio/membership-backend/pkg/enums"
	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
	"github.com/claystudio/membership-backend/pkg/outbox"
	"github.com/claystudio/membership-backend/pkg/outbox/registry"
	"github.com/claystudio/membership-backend/pkg/pubsub"
)

type memoryStore struct {
	rows      []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	retried   []uuid.UUID
	parked    map[uuid.UUID]error
}

func (m *memoryStore) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memoryStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memoryStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.retried = append(m.retried, id)
	return nil
}

func (m *memoryStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, _ int) error {
	if m.parked == nil {
		m.parked = map[uuid.UUID]error{}
	}
	m.parked[id] = err
	return nil
}

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type staticResolver struct {
	err error
}

func (s staticResolver) Resolve(event models.OutboxEvent) (*registry.Resolved, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.Resolved{
		Route: registry.Route{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         "studio-domain-events",
		},
		Envelope: outbox.Envelope{Version: outbox.EnvelopeVersion, EventID: event.ID.String(), OccurredAt: time.Now()},
	}, nil
}

type sent struct {
	topic string
	attrs map[string]string
}

// scriptedSink fails sends according to errs, in order, then succeeds.
type scriptedSink struct {
	errs []error
	sent []sent
}

func (s *scriptedSink) Send(_ context.Context, topic string, _ []byte, attrs map[string]string) error {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sent{topic: topic, attrs: attrs})
	return nil
}

func decided(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventApplicationDecided,
		AggregateType: enums.AggregateApplication,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  attempts,
	}
}

func newTestRelay(t *testing.T, store *memoryStore, res resolver, sink Sink, reg prometheus.Registerer) *Relay {
	t.Helper()
	r, err := New(Params{
		Logger:   logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:       inlineTx{},
		Store:    store,
		Registry: res,
		Sink:     sink,
		Metrics:  metrics.NewOutboxMetrics(reg),
		Config:   config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
	})
	require.NoError(t, err)
	return r
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestDrainKeepsGoingAfterTransientFailure(t *testing.T) {
	first, second := decided(0), decided(0)
	store := &memoryStore{rows: []models.OutboxEvent{first, second}}
	sink := &scriptedSink{errs: []error{errors.New("unavailable")}}
	reg := prometheus.NewRegistry()

	n, err := newTestRelay(t, store, staticResolver{}, sink, reg).Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []uuid.UUID{first.ID}, store.retried)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, store.parked)
	assert.Equal(t, 1.0, counterTotal(t, reg, "studio_outbox_published_total"))
	assert.Equal(t, 1.0, counterTotal(t, reg, "studio_outbox_failed_total"))
}

func TestDrainStampsDeliveryAttributes(t *testing.T) {
	event := decided(0)
	store := &memoryStore{rows: []models.OutboxEvent{event}}
	sink := &scriptedSink{}

	_, err := newTestRelay(t, store, staticResolver{}, sink, prometheus.NewRegistry()).Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "studio-domain-events", sink.sent[0].topic)
	assert.Equal(t, event.ID.String(), sink.sent[0].attrs["event_id"])
	assert.Equal(t, string(enums.EventApplicationDecided), sink.sent[0].attrs["event_type"])
	assert.Equal(t, event.AggregateID.String(), sink.sent[0].attrs["aggregate_id"])
}

func TestDrainEmptyOutbox(t *testing.T) {
	n, err := newTestRelay(t, &memoryStore{}, staticResolver{}, &scriptedSink{}, prometheus.NewRegistry()).Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainSurfacesFetchErrors(t *testing.T) {
	store := &memoryStore{fetchErr: errors.New("connection reset")}
	_, err := newTestRelay(t, store, staticResolver{}, &scriptedSink{}, prometheus.NewRegistry()).Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch outbox batch")
}

func TestDrainParksUndecodableRows(t *testing.T) {
	event := decided(0)
	store := &memoryStore{rows: []models.OutboxEvent{event}}
	res := staticResolver{err: registry.PermanentError{Err: errors.New("bad payload")}}

	_, err := newTestRelay(t, store, res, &scriptedSink{}, prometheus.NewRegistry()).Drain(context.Background())
	require.NoError(t, err)

	require.Contains(t, store.parked, event.ID)
	assert.Contains(t, store.parked[event.ID].Error(), string(enums.OutboxTerminalNonRetryable))
	assert.Empty(t, store.retried)
}

func TestDrainParksOnLastAttempt(t *testing.T) {
	event := decided(2)
	store := &memoryStore{rows: []models.OutboxEvent{event}}
	sink := &scriptedSink{errs: []error{errors.New("deadline exceeded")}}
	reg := prometheus.NewRegistry()

	_, err := newTestRelay(t, store, staticResolver{}, sink, reg).Drain(context.Background())
	require.NoError(t, err)

	require.Contains(t, store.parked, event.ID)
	assert.Contains(t, store.parked[event.ID].Error(), string(enums.OutboxTerminalMaxAttempts))
	assert.Empty(t, store.retried)
	assert.Equal(t, 1.0, counterTotal(t, reg, "studio_outbox_failed_total"))
}

func TestDrainParksUnroutedTopics(t *testing.T) {
	event := decided(0)
	store := &memoryStore{rows: []models.OutboxEvent{event}}
	sink := &scriptedSink{errs: []error{ErrNoRoute}}

	_, err := newTestRelay(t, store, staticResolver{}, sink, prometheus.NewRegistry()).Drain(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.parked, event.ID)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestRelay(t, &memoryStore{}, staticResolver{}, &scriptedSink{}, prometheus.NewRegistry()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)

	_, err = New(Params{
		Logger:   logger.New(logger.Options{Output: io.Discard}),
		DB:       inlineTx{},
		Store:    &memoryStore{},
		Registry: staticResolver{},
	})
	assert.EqualError(t, err, "sink required")
}

func TestPubSubSinkWithoutPublisherHasNoRoute(t *testing.T) {
	sink := NewPubSubSink((*pubsub.Client)(nil))
	err := sink.Send(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := backoff{base: 100 * time.Millisecond, max: time.Second}
	assert.GreaterOrEqual(t, b.delay(0), 100*time.Millisecond)
	assert.Less(t, b.delay(0), 125*time.Millisecond)
	assert.GreaterOrEqual(t, b.delay(2), 400*time.Millisecond)
	for i := 0; i < 20; i++ {
		d := b.delay(30)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 1250*time.Millisecond)
	}
}
