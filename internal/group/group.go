// Package group turns chat group rosters into broadcast recipients.
package group

import (
	"github.com/foxzi/broadcaster/internal/contact"
)

// Participant is one member of a chat group
type Participant struct {
	ID       string `json:"id" yaml:"id"`
	Number   string `json:"number" yaml:"number"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	PushName string `json:"pushname,omitempty" yaml:"pushname,omitempty"`
}

// Group is a chat group and its roster
type Group struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Participants []Participant `json:"participants" yaml:"participants"`
}

// Find returns the group with id
func Find(groups []Group, id string) (Group, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// AllParticipantIDs returns every participant id in roster order
func (g Group) AllParticipantIDs() []string {
	ids := make([]string, len(g.Participants))
	for i, p := range g.Participants {
		ids[i] = p.ID
	}
	return ids
}

// ImportParticipants maps the selected participants of g to recipients, in
// roster order. Participants without a valid phone number are skipped.
func ImportParticipants(g Group, selectedIDs []string) []contact.Recipient {
	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	result := make([]contact.Recipient, 0, len(selectedIDs))
	for _, p := range g.Participants {
		if !selected[p.ID] || !contact.IsValidPhone(p.Number) {
			continue
		}
		result = append(result, contact.Recipient{
			ID:          p.ID,
			Name:        contact.ResolveName(p.Name, p.PushName, p.Number),
			PhoneNumber: p.Number,
		})
	}
	return result
}
