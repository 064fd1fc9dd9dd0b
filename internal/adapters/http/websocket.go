package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/huddle/internal/adapters/nats"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "location" | "membership" | "chat"
	ID      string `json:"id"`      // entity ID for location, group ID otherwise; "" = all (not chat)
}

// wsEvent is relayed to the client.
type wsEvent struct {
	Channel string          `json:"channel"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// WebSocketHandler returns a handler relaying location and membership events
// from NATS, and group chat through the chat service, to connected clients.
// Clients send JSON: {"action":"subscribe","channel":"chat","id":"<group>"}.
// Chat subscriptions replay the group's history before live messages.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		logger := slog.Default().With("remote_addr", remoteAddr)
		logger.Info("ws client connected")

		ctx, cancelAll := context.WithCancel(context.Background())
		defer cancelAll()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// key: channel + ":" + id
		subs := make(map[string]func())

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		relay := func(subject, channel, id string) (func(), error) {
			if deps.NATS == nil {
				return nil, errRelayUnavailable
			}
			s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(wsEvent{Channel: channel, ID: id, Data: msg.Data})
			})
			if err != nil {
				return nil, err
			}
			return func() { _ = s.Unsubscribe() }, nil
		}

		subscribe := func(m wsMessage) (func(), error) {
			switch m.Channel {
			case "location":
				subject := natsadapter.SubjectLocationUpdated + ".>"
				if m.ID != "" {
					subject = natsadapter.Subject(natsadapter.SubjectLocationUpdated, m.ID)
				}
				return relay(subject, m.Channel, m.ID)
			case "membership":
				subject := natsadapter.SubjectMembership + ".>"
				if m.ID != "" {
					subject = natsadapter.Subject(natsadapter.SubjectMembership, m.ID)
				}
				return relay(subject, m.Channel, m.ID)
			case "chat":
				if m.ID == "" || deps.Chat == nil {
					return nil, errChatGroupRequired
				}
				subCtx, cancel := context.WithCancel(ctx)
				err := deps.Chat.Subscribe(subCtx, m.ID, func(_ context.Context, msg *domain.GroupMessage) error {
					data, err := json.Marshal(msg)
					if err != nil {
						return err
					}
					return writeJSON(wsEvent{Channel: m.Channel, ID: m.ID, Data: data})
				})
				if err != nil {
					cancel()
					return nil, err
				}
				return cancel, nil
			default:
				return nil, errUnknownChannel
			}
		}

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			key := m.Channel + ":" + m.ID

			switch m.Action {
			case "subscribe":
				if _, exists := subs[key]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel, "id": m.ID})
					continue
				}
				stop, err := subscribe(m)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[key] = stop
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel, "id": m.ID})

			case "unsubscribe":
				if stop, exists := subs[key]; exists {
					stop()
					delete(subs, key)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel, "id": m.ID})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + key})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, stop := range subs {
			stop()
		}
		logger.Info("ws client disconnected")
	}
}

var (
	errRelayUnavailable  = errors.New("event relay not configured")
	errChatGroupRequired = errors.New("chat requires a group id")
	errUnknownChannel    = errors.New("unknown channel")
)
