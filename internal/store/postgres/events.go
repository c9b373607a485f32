package postgres

import (
	"context"

	"github.com/noah-isme/checkout-engine/internal/events"
)

const insertDomainEvent = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, topic, aggregate_id, payload, occurred_at`

// InsertDomainEvent implements events.EventStore.
func (q *Queries) InsertDomainEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	var out events.Event
	err := q.db.QueryRow(ctx, insertDomainEvent, ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt).
		Scan(&out.ID, &out.Topic, &out.AggregateID, &out.Payload, &out.OccurredAt)
	if err != nil {
		return events.Event{}, err
	}
	return out, nil
}
