// Package selection tracks which loaded recipients are currently selected.
package selection

import (
	"errors"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/list"
)

var ErrUnknownRecipient = errors.New("unknown recipient")

// Selection holds the loaded recipients and their selected flags.
// count is maintained incrementally and always equals the number of
// selected recipients. Not safe for concurrent use.
type Selection struct {
	recipients []contact.Recipient
	index      map[string]int
	count      int
}

// New creates a selection over recipients, all deselected
func New(recipients []contact.Recipient) *Selection {
	s := &Selection{}
	s.Reset(recipients)
	return s
}

// Reset replaces the loaded recipients and clears the selection
func (s *Selection) Reset(recipients []contact.Recipient) {
	s.recipients = make([]contact.Recipient, len(recipients))
	s.index = make(map[string]int, len(recipients))
	for i, r := range recipients {
		r.Selected = false
		s.recipients[i] = r
		s.index[r.ID] = i
	}
	s.count = 0
}

// Toggle flips the selection of one recipient and returns its new state
func (s *Selection) Toggle(id string) (contact.Recipient, error) {
	i, ok := s.index[id]
	if !ok {
		return contact.Recipient{}, ErrUnknownRecipient
	}

	r := &s.recipients[i]
	r.Selected = !r.Selected
	if r.Selected {
		s.count++
	} else {
		s.count--
	}
	return *r, nil
}

// SelectAll selects every recipient
func (s *Selection) SelectAll() {
	s.setAll(true)
}

// DeselectAll clears every selection
func (s *Selection) DeselectAll() {
	s.setAll(false)
}

func (s *Selection) setAll(selected bool) {
	for i := range s.recipients {
		s.recipients[i].Selected = selected
	}
	if selected {
		s.count = len(s.recipients)
	} else {
		s.count = 0
	}
}

// Apply selects exactly the recipients whose phone is a member of l.
// A nil list clears the selection. Returns the number selected.
func (s *Selection) Apply(l *list.List) int {
	s.count = 0
	for i := range s.recipients {
		r := &s.recipients[i]
		r.Selected = l != nil && l.Contains(r.PhoneNumber)
		if r.Selected {
			s.count++
		}
	}
	return s.count
}

// Count returns the number of selected recipients
func (s *Selection) Count() int {
	return s.count
}

// Len returns the number of loaded recipients
func (s *Selection) Len() int {
	return len(s.recipients)
}

// Get returns a copy of the recipient with id
func (s *Selection) Get(id string) (contact.Recipient, bool) {
	i, ok := s.index[id]
	if !ok {
		return contact.Recipient{}, false
	}
	return s.recipients[i], true
}

// Recipients returns a copy of all loaded recipients with their flags
func (s *Selection) Recipients() []contact.Recipient {
	return append([]contact.Recipient{}, s.recipients...)
}

// Selected returns copies of the selected recipients in directory order
func (s *Selection) Selected() []contact.Recipient {
	result := make([]contact.Recipient, 0, s.count)
	for _, r := range s.recipients {
		if r.Selected {
			result = append(result, r)
		}
	}
	return result
}
