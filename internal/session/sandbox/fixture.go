package sandbox

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
)

// Fixture is the address book and group roster served by the sandbox
type Fixture struct {
	Contacts []contact.RawContact `yaml:"contacts"`
	Groups   []group.Group        `yaml:"groups"`
}

// LoadFixture reads a YAML fixture. An empty path returns DefaultFixture.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return DefaultFixture(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sandbox fixture: %w", err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sandbox fixture: %w", err)
	}
	return &f, nil
}

// DefaultFixture is a small demo address book
func DefaultFixture() *Fixture {
	return &Fixture{
		Contacts: []contact.RawContact{
			{ID: "33600000001@c.us", Name: "Alice Martin", IsMyContact: true},
			{ID: "33600000002@c.us", PushName: "Bob", IsMyContact: true},
			{ID: "33600000003@c.us", IsMyContact: true},
			{ID: "33600000004@c.us", Name: "Not saved", IsMyContact: false},
			{ID: "120363000000000001@g.us", Name: "Club", IsMyContact: true},
		},
		Groups: []group.Group{
			{
				ID:   "120363000000000001@g.us",
				Name: "Club",
				Participants: []group.Participant{
					{ID: "33600000001@c.us", Number: "33600000001", Name: "Alice Martin"},
					{ID: "33600000005@c.us", Number: "33600000005", PushName: "Chloe"},
					{ID: "33600000006@c.us", Number: "33600000006"},
				},
			},
		},
	}
}
