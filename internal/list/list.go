// Package list manages the persisted collection of broadcast lists.
//
// The whole collection is serialized as one JSON array and written through a
// Store after every mutation. Loading happens once; a missing or unreadable
// blob yields an empty collection.
package list

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/broadcaster/internal/contact"
)

var (
	ErrEmptyName    = errors.New("list name is required")
	ErrNotFound     = errors.New("list not found")
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrDuplicateID  = errors.New("duplicate list id")
	ErrPersist      = errors.New("failed to save broadcast lists")
)

// List is a named, ordered set of recipients.
// No two contacts share a phone number.
type List struct {
	ID       string              `json:"id" yaml:"id"`
	Name     string              `json:"name" yaml:"name"`
	Contacts []contact.Recipient `json:"contacts" yaml:"contacts"`
}

// Contains reports whether a contact with phone is a member
func (l *List) Contains(phone string) bool {
	return contact.IndexOfPhone(l.Contacts, phone) >= 0
}

// Validate checks the name and every member phone
func (l *List) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	return validatePhones(l.Contacts)
}

// clone returns a deep copy so callers never alias stored contacts
func (l List) clone() List {
	l.Contacts = append([]contact.Recipient{}, l.Contacts...)
	return l
}

// Collection is the ordered set of broadcast lists
type Collection struct {
	mu     sync.Mutex
	lists  []List
	store  Store
	logger *slog.Logger
	now    func() time.Time
	lastID int64
}

// Open loads the collection from store
func Open(ctx context.Context, store Store, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Collection{
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	data, err := store.Load(ctx)
	if err != nil {
		logger.Warn("failed to load broadcast lists, starting empty", "error", err)
		return c
	}
	lists, err := Decode(data)
	if err != nil {
		logger.Warn("stored broadcast lists are corrupt, starting empty", "error", err)
		return c
	}

	c.lists = lists
	logger.Debug("broadcast lists loaded", "count", len(lists))
	return c
}

// Decode parses a serialized collection. Empty input is an empty collection.
func Decode(data []byte) ([]List, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var lists []List
	if err := json.Unmarshal(data, &lists); err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].Contacts == nil {
			lists[i].Contacts = []contact.Recipient{}
		}
	}
	return lists, nil
}

// Encode serializes a collection
func Encode(lists []List) ([]byte, error) {
	if lists == nil {
		lists = []List{}
	}
	return json.Marshal(lists)
}

// All returns copies of every list in creation order
func (c *Collection) All() []List {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]List, len(c.lists))
	for i, l := range c.lists {
		result[i] = l.clone()
	}
	return result
}

// Len returns the number of lists
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lists)
}

// Get returns a copy of the list with id
func (c *Collection) Get(id string) (List, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(id); i >= 0 {
		return c.lists[i].clone(), true
	}
	return List{}, false
}

// Create adds a new list holding copies of contacts
func (c *Collection) Create(ctx context.Context, name string, contacts []contact.Recipient) (List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return List{}, ErrEmptyName
	}
	if err := validatePhones(contacts); err != nil {
		return List{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	l := List{
		ID:       c.newID(),
		Name:     name,
		Contacts: stripSelection(contact.DedupByPhone(contacts)),
	}
	c.lists = append(c.lists, l)

	if err := c.persist(ctx); err != nil {
		return l.clone(), err
	}
	c.logger.Info("broadcast list created", "id", l.ID, "name", l.Name, "contacts", len(l.Contacts))
	return l.clone(), nil
}

// Delete removes the list with id
func (c *Collection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	c.lists = append(c.lists[:i], c.lists[i+1:]...)

	if err := c.persist(ctx); err != nil {
		return err
	}
	c.logger.Info("broadcast list deleted", "id", id)
	return nil
}

// Edit replaces the stored list that has the same id
func (c *Collection) Edit(ctx context.Context, l List) (List, error) {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return List{}, ErrEmptyName
	}
	if err := validatePhones(l.Contacts); err != nil {
		return List{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(l.ID)
	if i < 0 {
		return List{}, ErrNotFound
	}
	l.Contacts = stripSelection(contact.DedupByPhone(l.Contacts))
	c.lists[i] = l

	if err := c.persist(ctx); err != nil {
		return l.clone(), err
	}
	c.logger.Info("broadcast list updated", "id", l.ID, "name", l.Name, "contacts", len(l.Contacts))
	return l.clone(), nil
}

// Merge adds recipients to the list destID. Entries already in the list win
// over imported ones with the same phone. With an empty destID a new list
// named fallbackName is created holding exactly recipients.
func (c *Collection) Merge(ctx context.Context, destID string, recipients []contact.Recipient, fallbackName string) (List, error) {
	if err := validatePhones(recipients); err != nil {
		return List{}, err
	}
	if destID == "" {
		name := strings.TrimSpace(fallbackName)
		if name == "" {
			return List{}, ErrEmptyName
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		l := List{
			ID:       c.newID(),
			Name:     name,
			Contacts: stripSelection(append([]contact.Recipient{}, recipients...)),
		}
		c.lists = append(c.lists, l)
		if err := c.persist(ctx); err != nil {
			return l.clone(), err
		}
		c.logger.Info("broadcast list created from import", "id", l.ID, "name", l.Name, "contacts", len(l.Contacts))
		return l.clone(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(destID)
	if i < 0 {
		return List{}, ErrNotFound
	}

	before := len(c.lists[i].Contacts)
	merged := append(append([]contact.Recipient{}, c.lists[i].Contacts...), recipients...)
	c.lists[i].Contacts = stripSelection(contact.DedupByPhone(merged))

	l := c.lists[i]
	if err := c.persist(ctx); err != nil {
		return l.clone(), err
	}
	c.logger.Info("recipients merged into broadcast list",
		"id", l.ID,
		"offered", len(recipients),
		"added", len(l.Contacts)-before,
	)
	return l.clone(), nil
}

// AddContact appends r to the list unless its phone is already present
func (c *Collection) AddContact(ctx context.Context, id string, r contact.Recipient) (List, error) {
	if !contact.IsValidPhone(r.PhoneNumber) {
		return List{}, fmt.Errorf("%w: %q", ErrInvalidPhone, r.PhoneNumber)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return List{}, ErrNotFound
	}
	if c.lists[i].Contains(r.PhoneNumber) {
		return c.lists[i].clone(), nil
	}
	r.Selected = false
	c.lists[i].Contacts = append(c.lists[i].Contacts, r)

	l := c.lists[i]
	return l.clone(), c.persist(ctx)
}

// RemoveContact removes the member with the phone of r
func (c *Collection) RemoveContact(ctx context.Context, id string, r contact.Recipient) (List, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return List{}, ErrNotFound
	}
	j := contact.IndexOfPhone(c.lists[i].Contacts, r.PhoneNumber)
	if j < 0 {
		return c.lists[i].clone(), nil
	}
	contacts := c.lists[i].Contacts
	c.lists[i].Contacts = append(contacts[:j:j], contacts[j+1:]...)

	l := c.lists[i]
	return l.clone(), c.persist(ctx)
}

// Replace swaps the whole collection, used by imports. Ids must be unique and
// every contact must carry a valid phone; otherwise nothing changes.
func (c *Collection) Replace(ctx context.Context, lists []List) error {
	ids := make(map[string]bool, len(lists))
	for _, l := range lists {
		if ids[l.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, l.ID)
		}
		ids[l.ID] = true
		if err := validatePhones(l.Contacts); err != nil {
			return fmt.Errorf("list %q: %w", l.Name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lists = make([]List, len(lists))
	for i, l := range lists {
		l = l.clone()
		l.Contacts = stripSelection(contact.DedupByPhone(l.Contacts))
		c.lists[i] = l
	}
	return c.persist(ctx)
}

func (c *Collection) indexOf(id string) int {
	for i := range c.lists {
		if c.lists[i].ID == id {
			return i
		}
	}
	return -1
}

// newID returns a millisecond timestamp id, unique within the collection
func (c *Collection) newID() string {
	id := c.now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	for c.indexOf(strconv.FormatInt(id, 10)) >= 0 {
		id++
	}
	c.lastID = id
	return strconv.FormatInt(id, 10)
}

// persist writes the whole collection. Caller holds c.mu.
func (c *Collection) persist(ctx context.Context) error {
	data, err := Encode(c.lists)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := c.store.Save(ctx, data); err != nil {
		c.logger.Error("failed to save broadcast lists", "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// validatePhones rejects any recipient whose phone is not all digits and at
// least 6 long
func validatePhones(recipients []contact.Recipient) error {
	for _, r := range recipients {
		if !contact.IsValidPhone(r.PhoneNumber) {
			return fmt.Errorf("%w: %q", ErrInvalidPhone, r.PhoneNumber)
		}
	}
	return nil
}

func stripSelection(recipients []contact.Recipient) []contact.Recipient {
	result := make([]contact.Recipient, len(recipients))
	for i, r := range recipients {
		r.Selected = false
		result[i] = r
	}
	return result
}
