package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsentEventType names the notification emitted after a permission change
type ConsentEventType string

const (
	// EventSubscribed follows a successful allow
	EventSubscribed ConsentEventType = "subscribed"
	// EventUnsubscribed follows a successful deny
	EventUnsubscribed ConsentEventType = "unsubscribed"
)

// ConsentEvent is published after the messaging client accepted a permission change.
type ConsentEvent struct {
	EventID      uuid.UUID        `json:"event_id"`
	Type         ConsentEventType `json:"type"`
	OwnerAddress string           `json:"owner_address"`
	PeerAddress  string           `json:"peer_address"`
	Permission   Permission       `json:"permission"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NewConsentEvent builds the event matching a settable permission.
func NewConsentEvent(owner, peer string, permission Permission, now time.Time) ConsentEvent {
	eventType := EventSubscribed
	if permission == PermissionDenied {
		eventType = EventUnsubscribed
	}
	return ConsentEvent{
		EventID:      uuid.New(),
		Type:         eventType,
		OwnerAddress: owner,
		PeerAddress:  peer,
		Permission:   permission,
		OccurredAt:   now.UTC(),
	}
}
