package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huddle/internal/core/domain"
)

const (
	reportConsumer = "location-syncer"
	reportQueue    = "location-syncers"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeLocationReports consumes reports through a shared durable queue
// consumer. Failed reports are redelivered; reports that can never succeed
// are terminated.
func (s *Subscriber) SubscribeLocationReports(ctx context.Context, handler func(ctx context.Context, report *domain.LocationReport) error) error {
	sub, err := s.js.QueueSubscribe(SubjectLocationReport+".>", reportQueue, func(msg *nats.Msg) {
		var report domain.LocationReport
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			_ = msg.Term()
			return
		}
		// Redeliveries keep the original stream timestamp.
		if meta, err := msg.Metadata(); err == nil {
			report.ReceivedAt = meta.Timestamp
		}
		if err := handler(ctx, &report); err != nil {
			if permanent(err) {
				slog.Warn("dropping location report", "entity_id", report.EntityID, "error", err)
				_ = msg.Term()
				return
			}
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(reportConsumer),
		nats.ManualAck(),
		nats.MaxDeliver(5),
	)
	if err != nil {
		return err
	}
	s.track(ctx, sub)
	return nil
}

// SubscribeGroupMessages delivers the group's full message history in order,
// then live messages, until ctx is done.
func (s *Subscriber) SubscribeGroupMessages(ctx context.Context, groupID string, handler func(ctx context.Context, msg *domain.GroupMessage) error) error {
	sub, err := s.js.Subscribe(Subject(SubjectChat, groupID), func(msg *nats.Msg) {
		var m domain.GroupMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("malformed group message", "group_id", groupID, "error", err)
			return
		}
		if err := handler(ctx, &m); err != nil {
			slog.Warn("group message handler failed", "group_id", groupID, "error", err)
		}
	},
		nats.OrderedConsumer(),
		nats.DeliverAll(),
	)
	if err != nil {
		return err
	}
	s.track(ctx, sub)
	return nil
}

// PublishGroupMessage appends msg to the group's stream, so a Subscriber
// alone satisfies ports.MessageChannel.
func (s *Subscriber) PublishGroupMessage(ctx context.Context, msg *domain.GroupMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.js.Publish(Subject(SubjectChat, msg.GroupID), data, nats.Context(ctx), nats.MsgId(msg.ID))
	return err
}

// track remembers sub for Close and unsubscribes it once ctx is done.
func (s *Subscriber) track(ctx context.Context, sub *nats.Subscription) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.mu.Unlock()
	_ = s.conn.Drain()
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidCoordinate) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrMalformedRecord)
}
