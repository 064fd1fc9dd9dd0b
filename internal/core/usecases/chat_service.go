package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
)

const maxMessageRunes = 2000

// ChatService appends and streams group chat messages.
type ChatService struct {
	groups  ports.GroupStore
	channel ports.MessageChannel
	now     func() time.Time
}

// NewChatService creates a new ChatService.
func NewChatService(groups ports.GroupStore, channel ports.MessageChannel) *ChatService {
	return &ChatService{groups: groups, channel: channel, now: time.Now}
}

// Send appends a message from a current member of an active group and
// records it as the group's latest message.
func (s *ChatService) Send(ctx context.Context, groupID, senderID, senderName, text string) (*domain.GroupMessage, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSendMessage, trace.WithAttributes(
		attribute.String("group_id", groupID),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	if senderID == "" || text == "" {
		return nil, fmt.Errorf("send: sender and text required: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, fmt.Errorf("send: message longer than %d characters: %w", maxMessageRunes, domain.ErrInvalidInput)
	}

	g, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive {
		return nil, fmt.Errorf("send to %s: %w", groupID, domain.ErrGroupInactive)
	}
	if !g.HasMember(senderID) {
		return nil, fmt.Errorf("send to %s: %w", groupID, domain.ErrNotMember)
	}

	msg := &domain.GroupMessage{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		SentAt:     s.now().UTC(),
	}
	if err := s.channel.PublishGroupMessage(ctx, msg); err != nil {
		metrics.ChatMessages.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.ChatMessages.WithLabelValues("ok").Inc()

	// The message is already appended; a stale preview is not worth failing the send.
	if err := s.groups.RecordMessage(ctx, groupID, text, msg.SentAt); err != nil {
		slog.WarnContext(ctx, "record last message failed", "group_id", groupID, "error", err)
	}
	return msg, nil
}

// Subscribe streams the group's messages in order until ctx is done.
func (s *ChatService) Subscribe(ctx context.Context, groupID string, handler func(ctx context.Context, msg *domain.GroupMessage) error) error {
	if _, err := s.group(ctx, groupID); err != nil {
		return err
	}
	return s.channel.SubscribeGroupMessages(ctx, groupID, handler)
}

func (s *ChatService) group(ctx context.Context, groupID string) (*domain.LocationGroup, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return nil, fmt.Errorf("group %s: %w", groupID, err)
	}
	if err != nil {
		return nil, unavailable("get group", err)
	}
	return g, nil
}
