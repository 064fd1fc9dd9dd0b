package domain

import (
	"time"
)

// GeoIndexEntry is the indexed location of one entity. Geohash is always
// derived from Coordinate; an entry is overwritten in place, never appended.
// ObservedAt orders writes: an entry observed earlier than the stored one is
// rejected. LastUpdated is the store's clock at the time of the write.
type GeoIndexEntry struct {
	EntityID    string     `json:"id" validate:"required"`
	Coordinate  Coordinate `json:"location"`
	Geohash     string     `json:"geohash" validate:"required"`
	ObservedAt  time.Time  `json:"observedAt"`
	LastUpdated time.Time  `json:"lastUpdated"`
	GroupIDs    []string   `json:"groupIds,omitempty"`
}

// NearbyEntity is a query hit together with its distance from the query centre.
type NearbyEntity struct {
	EntityID       string     `json:"id"`
	Coordinate     Coordinate `json:"location"`
	Geohash        string     `json:"geohash"`
	DistanceMeters float64    `json:"distance"`
	LastUpdated    time.Time  `json:"lastUpdated"`
}

// LocationGroup is a radius-bounded group chat anchored at a fixed point.
// ParticipantCount always equals len(MemberIDs). ParticipantNames holds the
// display names of members that supplied one.
type LocationGroup struct {
	ID               string            `json:"id" validate:"required"`
	Name             string            `json:"name"`
	CreatorID        string            `json:"creatorId"`
	CreatorName      string            `json:"creatorName"`
	Center           Coordinate        `json:"centerLocation"`
	CenterGeohash    string            `json:"centerGeohash" validate:"required"`
	RadiusMeters     float64           `json:"radius" validate:"gt=0"`
	MemberIDs        []string          `json:"participants"`
	ParticipantNames map[string]string `json:"participantNames"`
	ParticipantCount int               `json:"participantCount"`
	OptedOutIDs      []string          `json:"optedOut,omitempty"`
	IsActive         bool              `json:"isActive"`
	LastMessage      string            `json:"lastMessage"`
	LastMessageAt    *time.Time        `json:"lastMessageTime"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// HasMember reports whether entityID is a participant.
func (g *LocationGroup) HasMember(entityID string) bool {
	return contains(g.MemberIDs, entityID)
}

// HasOptedOut reports whether entityID explicitly left the group.
func (g *LocationGroup) HasOptedOut(entityID string) bool {
	return contains(g.OptedOutIDs, entityID)
}

// GroupWithDistance pairs a group with its distance from a reference point.
type GroupWithDistance struct {
	Group          LocationGroup `json:"group"`
	DistanceMeters float64       `json:"distance"`
}

// MembershipOp is the kind of a membership mutation.
type MembershipOp string

const (
	OpJoin  MembershipOp = "join"
	OpLeave MembershipOp = "leave"
)

// MembershipMutation is one element of an atomic membership batch.
// OptOut marks a leave that must also block automatic re-joins. A join with
// EntityName records it in the group's participant names.
type MembershipMutation struct {
	GroupID    string       `json:"group_id"`
	EntityID   string       `json:"entity_id"`
	EntityName string       `json:"entity_name,omitempty"`
	Op         MembershipOp `json:"op"`
	OptOut     bool         `json:"opt_out,omitempty"`
}

// ReconcileResult lists the groups an entity joined and left, both sorted.
type ReconcileResult struct {
	Joined []string `json:"joined"`
	Left   []string `json:"left"`
}

// Empty reports whether the reconcile changed nothing.
func (r *ReconcileResult) Empty() bool {
	return len(r.Joined) == 0 && len(r.Left) == 0
}

// GroupMessage is a chat message appended to a group's channel.
type GroupMessage struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"groupId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"timestamp"`
}

// LocationReport is an inbound position report for one entity.
// ReceivedAt is stamped by the broker when the report was accepted and is
// not part of the payload.
type LocationReport struct {
	EntityID   string     `json:"id"`
	Coordinate Coordinate `json:"location"`
	ReportedAt time.Time  `json:"reported_at"`
	ReceivedAt time.Time  `json:"-"`
}

// ObservedAt is the report's write-order key: the broker's receive time
// when known, else the reported time, else now.
func (r *LocationReport) ObservedAt(now time.Time) time.Time {
	switch {
	case !r.ReceivedAt.IsZero():
		return r.ReceivedAt.UTC()
	case !r.ReportedAt.IsZero():
		return r.ReportedAt.UTC()
	}
	return now.UTC()
}

// MembershipChange is published whenever an entity joins or leaves a group.
type MembershipChange struct {
	GroupID  string       `json:"group_id"`
	EntityID string       `json:"entity_id"`
	Op       MembershipOp `json:"op"`
	At       time.Time    `json:"at"`
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
