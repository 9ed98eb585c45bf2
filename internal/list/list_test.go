package list

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/broadcaster/internal/contact"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "lists.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(id, name, phone string) contact.Recipient {
	return contact.Recipient{ID: id, Name: name, PhoneNumber: phone}
}

func newCollection(t *testing.T) (*Collection, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(nil)
	c := Open(context.Background(), store, testLogger())
	return c, store
}

func TestOpenEmptyAndCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"absent", nil},
		{"blank", []byte("  ")},
		{"corrupt json", []byte("{not json")},
		{"wrong shape", []byte(`{"id":"1"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Open(context.Background(), NewMemoryStore(tt.data), testLogger())
			if c.Len() != 0 {
				t.Errorf("Len() = %d, want 0", c.Len())
			}
		})
	}
}

func TestCreate(t *testing.T) {
	c, store := newCollection(t)
	ctx := context.Background()

	selected := rec("1", "Alice", "111111")
	selected.Selected = true

	l, err := c.Create(ctx, "  Friends  ", []contact.Recipient{selected, rec("2", "Bob", "222222")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if l.ID == "" {
		t.Error("Create() did not set ID")
	}
	if l.Name != "Friends" {
		t.Errorf("Name = %q, want trimmed Friends", l.Name)
	}
	if len(l.Contacts) != 2 {
		t.Fatalf("Contacts = %d, want 2", len(l.Contacts))
	}
	if l.Contacts[0].Selected {
		t.Error("stored contacts must not carry selection")
	}
	if store.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", store.Saves())
	}
}

func TestCreateEmptyName(t *testing.T) {
	c, store := newCollection(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := c.Create(context.Background(), name, nil); !errors.Is(err, ErrEmptyName) {
			t.Errorf("Create(%q) error = %v, want ErrEmptyName", name, err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if store.Saves() != 0 {
		t.Errorf("Saves() = %d, want 0", store.Saves())
	}
}

func TestCreateUniqueIDs(t *testing.T) {
	c, _ := newCollection(t)
	fixed := time.UnixMilli(1700000000000)
	c.now = func() time.Time { return fixed }

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		l, err := c.Create(context.Background(), "list", nil)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[l.ID] {
			t.Fatalf("duplicate id %s", l.ID)
		}
		seen[l.ID] = true
	}
	if !seen["1700000000000"] {
		t.Error("first id should be the creation time in milliseconds")
	}
}

func TestCopySemantics(t *testing.T) {
	c, _ := newCollection(t)
	contacts := []contact.Recipient{rec("1", "Alice", "111111")}

	l, err := c.Create(context.Background(), "copy", contacts)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	contacts[0].Name = "Changed"
	l.Contacts[0].Name = "Changed too"

	got, _ := c.Get(l.ID)
	if got.Contacts[0].Name != "Alice" {
		t.Errorf("stored name = %q, want Alice", got.Contacts[0].Name)
	}
}

func TestDelete(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	l, _ := c.Create(ctx, "a", nil)
	if err := c.Delete(ctx, l.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := c.Get(l.ID); ok {
		t.Error("list still present after Delete()")
	}
	if err := c.Delete(ctx, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestEdit(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	l, _ := c.Create(ctx, "old", []contact.Recipient{rec("1", "Alice", "111111")})

	updated, err := c.Edit(ctx, List{ID: l.ID, Name: "new", Contacts: []contact.Recipient{rec("2", "Bob", "222222")}})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if updated.Name != "new" {
		t.Errorf("Name = %q, want new", updated.Name)
	}

	got, _ := c.Get(l.ID)
	if len(got.Contacts) != 1 || got.Contacts[0].PhoneNumber != "222222" {
		t.Errorf("Edit() must replace contacts, got %+v", got.Contacts)
	}

	if _, err := c.Edit(ctx, List{ID: "missing", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := c.Edit(ctx, List{ID: l.ID, Name: " "}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Edit(blank name) error = %v, want ErrEmptyName", err)
	}
}

func TestMergeExistingWins(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	l, _ := c.Create(ctx, "dest", []contact.Recipient{rec("old", "Old", "111111")})

	merged, err := c.Merge(ctx, l.ID, []contact.Recipient{rec("new", "New", "111111"), rec("x", "Extra", "222222")}, "")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if len(merged.Contacts) != 2 {
		t.Fatalf("Contacts = %d, want 2", len(merged.Contacts))
	}
	if merged.Contacts[0].Name != "Old" {
		t.Errorf("Contacts[0].Name = %q, want Old", merged.Contacts[0].Name)
	}
	if merged.Contacts[1].Name != "Extra" {
		t.Errorf("Contacts[1].Name = %q, want Extra", merged.Contacts[1].Name)
	}
}

func TestInvalidPhonesRejected(t *testing.T) {
	c, store := newCollection(t)
	ctx := context.Background()

	l, _ := c.Create(ctx, "members", []contact.Recipient{rec("1", "Alice", "111111")})
	saves := store.Saves()

	bad := [][]contact.Recipient{
		{rec("a", "Letters", "abc")},
		{rec("s", "Short", "12")},
		{rec("1", "Alice", "111111"), rec("p", "Plus", "+33600000001")},
		{rec("e", "Empty", "")},
	}
	for _, contacts := range bad {
		if _, err := c.Edit(ctx, List{ID: l.ID, Name: "members", Contacts: contacts}); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("Edit(%+v) error = %v, want ErrInvalidPhone", contacts, err)
		}
		if _, err := c.Create(ctx, "other", contacts); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("Create(%+v) error = %v, want ErrInvalidPhone", contacts, err)
		}
		if _, err := c.Merge(ctx, l.ID, contacts, ""); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("Merge(%+v) error = %v, want ErrInvalidPhone", contacts, err)
		}
	}
	if _, err := c.AddContact(ctx, l.ID, rec("a", "Letters", "abc")); !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("AddContact(abc) error = %v, want ErrInvalidPhone", err)
	}
	if err := c.Replace(ctx, []List{{ID: "9", Name: "x", Contacts: bad[0]}}); !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("Replace() error = %v, want ErrInvalidPhone", err)
	}

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	got, _ := c.Get(l.ID)
	if len(got.Contacts) != 1 || got.Contacts[0].PhoneNumber != "111111" {
		t.Errorf("Contacts = %+v, want only Alice", got.Contacts)
	}
	if store.Saves() != saves {
		t.Error("rejected mutations must not be persisted")
	}
}

func TestReplaceRejectsDuplicateIDs(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	existing, _ := c.Create(ctx, "existing", nil)

	err := c.Replace(ctx, []List{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Replace() error = %v, want ErrDuplicateID", err)
	}
	if _, ok := c.Get(existing.ID); !ok || c.Len() != 1 {
		t.Errorf("collection changed after rejected Replace: %+v", c.All())
	}

	if err := c.Replace(ctx, []List{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := c.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := c.Get("1"); ok {
		t.Error("list 1 still present after Delete")
	}
}

func TestMergeNewList(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	in := []contact.Recipient{rec("1", "A", "111111"), rec("2", "B", "222222")}
	l, err := c.Merge(ctx, "", in, "Imported")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if l.Name != "Imported" {
		t.Errorf("Name = %q, want Imported", l.Name)
	}
	if !reflect.DeepEqual(l.Contacts, in) {
		t.Errorf("Contacts = %+v, want %+v", l.Contacts, in)
	}

	if _, err := c.Merge(ctx, "", in, "  "); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Merge() without name error = %v, want ErrEmptyName", err)
	}
	if _, err := c.Merge(ctx, "missing", in, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Merge() unknown dest error = %v, want ErrNotFound", err)
	}
}

func TestAddRemoveContact(t *testing.T) {
	c, _ := newCollection(t)
	ctx := context.Background()

	l, _ := c.Create(ctx, "members", nil)

	alice := rec("1", "Alice", "111111")
	if _, err := c.AddContact(ctx, l.ID, alice); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	got, err := c.AddContact(ctx, l.ID, alice)
	if err != nil {
		t.Fatalf("AddContact() twice error = %v", err)
	}
	if len(got.Contacts) != 1 {
		t.Errorf("Contacts = %d, want 1 after duplicate add", len(got.Contacts))
	}

	got, err = c.RemoveContact(ctx, l.ID, alice)
	if err != nil {
		t.Fatalf("RemoveContact() error = %v", err)
	}
	if len(got.Contacts) != 0 {
		t.Errorf("Contacts = %d, want 0", len(got.Contacts))
	}

	if _, err := c.AddContact(ctx, "missing", alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddContact(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSaveFailureKeepsState(t *testing.T) {
	c, store := newCollection(t)
	boom := errors.New("disk full")
	store.FailWith(boom)

	l, err := c.Create(context.Background(), "x", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want wrapped disk full", err)
	}
	if !errors.Is(err, ErrPersist) {
		t.Errorf("Create() error = %v, want ErrPersist", err)
	}
	if _, ok := c.Get(l.ID); !ok {
		t.Error("in-memory list should survive a failed save")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	store, err := NewBoltStore(db)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}

	c := Open(ctx, store, testLogger())
	if _, err := c.Create(ctx, "first", []contact.Recipient{rec("1", "Alice", "111111"), rec("2", "Bob", "222222")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Create(ctx, "second", []contact.Recipient{rec("3", "Carol", "333333")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := c.Create(ctx, "empty", nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reopened := Open(ctx, store, testLogger())
	if !reflect.DeepEqual(reopened.All(), c.All()) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", reopened.All(), c.All())
	}
}

func TestEncodeDecode(t *testing.T) {
	lists := []List{
		{ID: "1", Name: "a", Contacts: []contact.Recipient{rec("x", "X", "111111")}},
		{ID: "2", Name: "b", Contacts: []contact.Recipient{}},
	}

	data, err := Encode(lists)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got, lists) {
		t.Errorf("Decode(Encode()) = %+v, want %+v", got, lists)
	}

	empty, _ := Encode(nil)
	if string(empty) != "[]" {
		t.Errorf("Encode(nil) = %s, want []", empty)
	}
}

func TestDecodeLegacyBlob(t *testing.T) {
	blob := `[{"id":"1717171717171","name":"Famille","contacts":[{"id":"33600000001@c.us","name":"Maman","phoneNumber":"33600000001","selected":true}]}]`

	lists, err := Decode([]byte(blob))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(lists) != 1 || lists[0].Name != "Famille" || lists[0].Contacts[0].PhoneNumber != "33600000001" {
		t.Errorf("Decode() = %+v", lists)
	}
}
