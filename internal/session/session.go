// Package session defines the remote messaging session the broadcaster drives.
//
// A session is an automation process logged into the messaging platform. It
// answers requests (contacts, groups, sends, logout) and pushes events about
// its login state.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
)

// EventType identifies a push event
type EventType string

const (
	EventQR     EventType = "qr"     // new login QR code, payload is the code
	EventReady  EventType = "ready"  // session logged in
	EventStatus EventType = "status" // free-form status text
)

// Event is a push notification from the session
type Event struct {
	Type    EventType `json:"type"`
	Payload string    `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(t EventType, payload string) Event {
	return Event{Type: t, Payload: payload, Time: time.Now()}
}

// Validate checks the event type
func (e Event) Validate() error {
	switch e.Type {
	case EventQR, EventReady, EventStatus:
		return nil
	default:
		return fmt.Errorf("unknown session event type %q", e.Type)
	}
}

// Notifier receives session events. Notify must not block.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(e Event)

// Notify calls f(e)
func (f NotifierFunc) Notify(e Event) {
	f(e)
}

// Session is the remote messaging session
type Session interface {
	// Start brings the session up. Events are delivered to n from then on.
	Start(ctx context.Context, n Notifier) error

	// FetchContacts returns the raw address book
	FetchContacts(ctx context.Context) ([]contact.RawContact, error)

	// FetchGroups returns chat groups with their participants
	FetchGroups(ctx context.Context) ([]group.Group, error)

	// SendMessage delivers text to a chat address
	SendMessage(ctx context.Context, address, text string) error

	// Logout ends the session; the session is expected to re-initialize
	// and emit a fresh QR code afterwards
	Logout(ctx context.Context) error
}
