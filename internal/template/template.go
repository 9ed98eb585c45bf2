package template

import (
	"time"
)

// Variable is one caller-supplied substitution, written as {Key} in a message
type Variable struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Message is the text to broadcast plus its custom variables.
// Variables are applied in slice order.
type Message struct {
	Text      string     `json:"text" yaml:"text"`
	Variables []Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Template represents a saved message template
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Text        string     `json:"text"`
	Variables   []Variable `json:"variables,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Message returns the template as a sendable message
func (t *Template) Message() Message {
	return Message{
		Text:      t.Text,
		Variables: append([]Variable(nil), t.Variables...),
	}
}

// Placeholder is a {name} occurrence found in a message
type Placeholder struct {
	Name  string `json:"name"`
	Known bool   `json:"known"`
}

// ListFilter contains filters for listing templates
type ListFilter struct {
	Limit  int
	Offset int
	Search string
}

// Stats contains template statistics
type Stats struct {
	Total int64 `json:"total"`
}
