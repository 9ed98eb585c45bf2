package gateway

import (
	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
)

// StartRequest asks the gateway to bring the session up
type StartRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

// StartResponse reports the session state right after start
type StartResponse struct {
	Status string `json:"status"`
	QR     string `json:"qr,omitempty"`
	Ready  bool   `json:"ready"`
}

// ContactsResponse is the address book
type ContactsResponse struct {
	Contacts []contact.RawContact `json:"contacts"`
}

// GroupsResponse lists chat groups
type GroupsResponse struct {
	Groups []group.Group `json:"groups"`
}

// MessageRequest sends one text
type MessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// MessageResponse acknowledges a send
type MessageResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the gateway error body
type ErrorResponse struct {
	Error string `json:"error"`
}
