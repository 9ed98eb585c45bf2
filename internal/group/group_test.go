package group

import (
	"reflect"
	"testing"

	"github.com/foxzi/broadcaster/internal/contact"
)

func testGroup() Group {
	return Group{
		ID:   "g1@g.us",
		Name: "Club",
		Participants: []Participant{
			{ID: "p1", Number: "111111", Name: "Alice"},
			{ID: "p2", Number: "222222", PushName: "bobby"},
			{ID: "p3", Number: "333333"},
			{ID: "p4", Number: "12ab"},
		},
	}
}

func TestImportParticipants(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		want     []contact.Recipient
	}{
		{
			name:     "name fallbacks",
			selected: []string{"p3", "p2", "p1"},
			want: []contact.Recipient{
				{ID: "p1", Name: "Alice", PhoneNumber: "111111"},
				{ID: "p2", Name: "bobby", PhoneNumber: "222222"},
				{ID: "p3", Name: "333333", PhoneNumber: "333333"},
			},
		},
		{
			name:     "only selected",
			selected: []string{"p2"},
			want: []contact.Recipient{
				{ID: "p2", Name: "bobby", PhoneNumber: "222222"},
			},
		},
		{
			name:     "invalid phone skipped",
			selected: []string{"p4"},
			want:     []contact.Recipient{},
		},
		{
			name:     "unknown ids ignored",
			selected: []string{"nope"},
			want:     []contact.Recipient{},
		},
		{
			name:     "nothing selected",
			selected: nil,
			want:     []contact.Recipient{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImportParticipants(testGroup(), tt.selected)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ImportParticipants() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAllParticipantIDs(t *testing.T) {
	got := testGroup().AllParticipantIDs()
	want := []string{"p1", "p2", "p3", "p4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllParticipantIDs() = %v, want %v", got, want)
	}

	imported := ImportParticipants(testGroup(), got)
	if len(imported) != 3 {
		t.Errorf("importing all = %d recipients, want 3", len(imported))
	}
}

func TestFind(t *testing.T) {
	groups := []Group{{ID: "a"}, testGroup()}
	g, ok := Find(groups, "g1@g.us")
	if !ok || g.Name != "Club" {
		t.Errorf("Find() = %+v, %v", g, ok)
	}
	if _, ok := Find(groups, "zz"); ok {
		t.Error("Find() should miss unknown id")
	}
}
