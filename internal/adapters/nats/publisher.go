package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// stream exists, update it
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishLocationReport enqueues a report for the syncer workers.
func (p *Publisher) PublishLocationReport(ctx context.Context, report *domain.LocationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(Subject(SubjectLocationReport, report.EntityID), data, nats.Context(ctx))
	return err
}

// ReportLocation enqueues a report stamped now, so a Publisher can serve as
// the sink of a device-side reporter.
func (p *Publisher) ReportLocation(ctx context.Context, entityID string, c domain.Coordinate) error {
	return p.PublishLocationReport(ctx, &domain.LocationReport{
		EntityID:   entityID,
		Coordinate: c,
		ReportedAt: time.Now().UTC(),
	})
}

// PublishLocationUpdated broadcasts an index change. Updates are not
// persisted; only live subscribers see them.
func (p *Publisher) PublishLocationUpdated(ctx context.Context, entry *domain.GeoIndexEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(SubjectLocationUpdated, entry.EntityID), data)
}

// PublishMembershipChanged appends a join or leave to the membership stream
// under the group's subject, so late subscribers can replay it.
func (p *Publisher) PublishMembershipChanged(ctx context.Context, change *domain.MembershipChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(Subject(SubjectMembership, change.GroupID), data, nats.Context(ctx))
	return err
}

// PublishGroupMessage appends msg to the group's message stream.
func (p *Publisher) PublishGroupMessage(ctx context.Context, msg *domain.GroupMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(Subject(SubjectChat, msg.GroupID), data, nats.Context(ctx), nats.MsgId(msg.ID))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
