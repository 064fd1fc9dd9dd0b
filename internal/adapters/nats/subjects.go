package natsadapter

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject roots. Entity and group IDs are appended as the last token.
const (
	SubjectLocationReport  = "huddle.location.report"
	SubjectLocationUpdated = "huddle.location.updated"
	SubjectMembership      = "huddle.membership"
	SubjectChat            = "huddle.chat"

	// SubjectAll matches every event the relay may forward.
	SubjectAll = "huddle.>"
)

// streams are created or updated on connect.
var streams = []nats.StreamConfig{
	{
		Name:      "LOCATION_REPORTS",
		Subjects:  []string{SubjectLocationReport + ".>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    1 * time.Hour,
		Storage:   nats.FileStorage,
	},
	{
		Name:      "MEMBERSHIP_EVENTS",
		Subjects:  []string{SubjectMembership + ".>"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	},
	{
		Name:      "GROUP_MESSAGES",
		Subjects:  []string{SubjectChat + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	},
}

// Subject joins a root and an ID, replacing characters NATS treats as
// token separators or wildcards.
func Subject(root, id string) string {
	return root + "." + sanitizer.Replace(id)
}

var sanitizer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return connect(url)
}
