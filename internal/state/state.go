// Package state holds the application state: the directory with its selection,
// the active list, the session login status and broadcast jobs.
package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
	"github.com/foxzi/broadcaster/internal/list"
	"github.com/foxzi/broadcaster/internal/metrics"
	"github.com/foxzi/broadcaster/internal/selection"
	"github.com/foxzi/broadcaster/internal/sender"
	"github.com/foxzi/broadcaster/internal/session"
	"github.com/foxzi/broadcaster/internal/template"
)

var (
	ErrEmptySelection   = errors.New("no participants selected")
	ErrEmptyMessage     = errors.New("message text is required")
	ErrNoActiveList     = errors.New("no active list")
	ErrNoRecipients     = errors.New("list has no contacts")
	ErrBroadcastRunning = errors.New("a broadcast is already running")
	ErrGroupNotFound    = errors.New("group not found")
	ErrJobNotFound      = errors.New("broadcast not found")
	ErrSessionChanged   = errors.New("session changed during refresh")
)

// TemplateResolver looks up a saved template by id or name
type TemplateResolver interface {
	Resolve(ctx context.Context, idOrName string) (*template.Template, error)
}

// StateOptions configures a State
type StateOptions struct {
	Session      session.Session
	Lists        *list.Collection
	Sender       *sender.Sender
	Templates    TemplateResolver // optional
	EventsBuffer int
	Logger       *slog.Logger
}

// State is the application state. All mutation goes through its mutex;
// session calls are made without holding it.
type State struct {
	session   session.Session
	lists     *list.Collection
	sender    *sender.Sender
	templates TemplateResolver
	logger    *slog.Logger

	events chan session.Event

	mu        sync.Mutex
	selection *selection.Selection
	activeID  string
	qr        string
	ready     bool
	status    string
	groups    []group.Group
	jobs      map[string]*Job
	jobOrder  []string
	running   string

	// generation changes whenever the session is torn down
	generation uint64

	jobCtx    context.Context
	jobCancel context.CancelFunc
	jobWG     sync.WaitGroup
}

var _ session.Notifier = (*State)(nil)

// NewState creates the application state
func NewState(opts StateOptions) *State {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	buffer := opts.EventsBuffer
	if buffer <= 0 {
		buffer = 64
	}

	jobCtx, jobCancel := context.WithCancel(context.Background())

	return &State{
		session:   opts.Session,
		lists:     opts.Lists,
		sender:    opts.Sender,
		templates: opts.Templates,
		logger:    logger,
		events:    make(chan session.Event, buffer),
		selection: selection.New(nil),
		jobs:      make(map[string]*Job),
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
	}
}

// Status is a snapshot of the session and selection state
type Status struct {
	QR           string `json:"qr,omitempty"`
	Ready        bool   `json:"ready"`
	Status       string `json:"status,omitempty"`
	Contacts     int    `json:"contacts"`
	Selected     int    `json:"selected"`
	Lists        int    `json:"lists"`
	ActiveListID string `json:"active_list_id,omitempty"`
	Broadcast    *Job   `json:"broadcast,omitempty"`
}

// Status returns the current state snapshot
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		QR:           s.qr,
		Ready:        s.ready,
		Status:       s.status,
		Contacts:     s.selection.Len(),
		Selected:     s.selection.Count(),
		Lists:        s.lists.Len(),
		ActiveListID: s.activeID,
	}
	if s.running != "" {
		job := s.jobs[s.running].snapshot()
		st.Broadcast = &job
	}
	return st
}

// Stats reports state gauges to the metrics collector
func (s *State) Stats(ctx context.Context) (*metrics.StateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &metrics.StateStats{
		Contacts: s.selection.Len(),
		Selected: s.selection.Count(),
		Lists:    s.lists.Len(),
	}, nil
}

// StartSession starts the session with the state as its notifier
func (s *State) StartSession(ctx context.Context) error {
	if err := s.session.Start(ctx, s); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// RefreshContacts reloads the directory from the session. The selection is
// rebuilt and, if a list is active, re-applied from it.
// A fetch that outlives its session (logout or a new login QR meanwhile) is
// dropped with ErrSessionChanged.
func (s *State) RefreshContacts(ctx context.Context) (int, error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	raw, err := s.session.FetchContacts(ctx)
	if err != nil {
		return 0, err
	}
	recipients := contact.Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Info("discarding contacts fetched before session change", "recipients", len(recipients))
		return 0, ErrSessionChanged
	}

	s.selection.Reset(recipients)
	if l, ok := s.activeList(); ok {
		s.selection.Apply(&l)
	}

	s.logger.Info("contacts loaded", "raw", len(raw), "recipients", len(recipients))
	return len(recipients), nil
}

// Contacts returns the directory with selection flags, filtered by query
func (s *State) Contacts(query string) []contact.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contact.Filter(s.selection.Recipients(), query)
}

// Toggle flips one recipient. With a list active, the recipient is added to
// or removed from it so membership follows the flag.
func (s *State) Toggle(ctx context.Context, id string) (contact.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.selection.Toggle(id)
	if err != nil {
		return contact.Recipient{}, err
	}

	if s.activeID == "" {
		return r, nil
	}

	if r.Selected {
		_, err = s.lists.AddContact(ctx, s.activeID, r)
	} else {
		_, err = s.lists.RemoveContact(ctx, s.activeID, r)
	}
	if err != nil {
		return r, fmt.Errorf("failed to update active list: %w", err)
	}
	return r, nil
}

// SelectAll selects every loaded recipient. Lists are not touched.
func (s *State) SelectAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.SelectAll()
	return s.selection.Count()
}

// DeselectAll clears the selection. Lists are not touched.
func (s *State) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.DeselectAll()
}

// CreateList stores the selected recipients as a new list and clears the
// selection.
func (s *State) CreateList(ctx context.Context, name string) (list.List, error) {
	if strings.TrimSpace(name) == "" {
		return list.List{}, list.ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lists.Create(ctx, name, s.selection.Selected())
	if l.ID != "" {
		s.selection.DeselectAll()
	}
	return l, err
}

// DeleteList removes a list and clears the active reference if it pointed
// at it.
func (s *State) DeleteList(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists.Get(id); !ok {
		return list.ErrNotFound
	}
	if s.activeID == id {
		s.activeID = ""
	}
	return s.lists.Delete(ctx, id)
}

// EditList replaces a stored list. An active list stays active with the new
// contents and the selection follows it.
func (s *State) EditList(ctx context.Context, l list.List) (list.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.lists.Edit(ctx, l)
	if updated.ID == "" {
		return updated, err
	}
	if s.activeID == updated.ID {
		s.selection.Apply(&updated)
	}
	return updated, err
}

// SelectList makes a list active and selects its members. An empty id
// deactivates and clears the selection. Returns the number selected.
func (s *State) SelectList(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.activeID = ""
		return s.selection.Apply(nil), nil
	}

	l, ok := s.lists.Get(id)
	if !ok {
		return 0, list.ErrNotFound
	}
	s.activeID = id
	return s.selection.Apply(&l), nil
}

// ActiveList returns a copy of the active list
func (s *State) ActiveList() (list.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeList()
}

func (s *State) activeList() (list.List, bool) {
	if s.activeID == "" {
		return list.List{}, false
	}
	return s.lists.Get(s.activeID)
}

// Lists returns all stored lists
func (s *State) Lists() []list.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists.All()
}

// List returns one stored list
func (s *State) List(id string) (list.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists.Get(id)
}

// Groups fetches the chat groups and caches them for imports
func (s *State) Groups(ctx context.Context) ([]group.Group, error) {
	groups, err := s.session.FetchGroups(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()

	return groups, nil
}

// ImportRequest selects group participants for a destination list
type ImportRequest struct {
	GroupID        string   `json:"-"`
	ParticipantIDs []string `json:"participant_ids"`
	DestListID     string   `json:"dest_list_id,omitempty"`
	NewListName    string   `json:"new_list_name,omitempty"`
}

// ImportGroup merges the selected participants into an existing list, or
// creates a new one named NewListName. Existing entries win on phone match.
func (s *State) ImportGroup(ctx context.Context, req ImportRequest) (list.List, error) {
	if len(req.ParticipantIDs) == 0 {
		return list.List{}, ErrEmptySelection
	}
	if req.DestListID == "" && strings.TrimSpace(req.NewListName) == "" {
		return list.List{}, list.ErrEmptyName
	}

	s.mu.Lock()
	if req.DestListID != "" {
		if _, ok := s.lists.Get(req.DestListID); !ok {
			s.mu.Unlock()
			return list.List{}, list.ErrNotFound
		}
	}
	g, found := group.Find(s.groups, req.GroupID)
	s.mu.Unlock()

	if !found {
		groups, err := s.Groups(ctx)
		if err != nil {
			return list.List{}, err
		}
		if g, found = group.Find(groups, req.GroupID); !found {
			return list.List{}, ErrGroupNotFound
		}
	}

	recipients := contact.DedupByPhone(group.ImportParticipants(g, req.ParticipantIDs))

	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.lists.Merge(ctx, req.DestListID, recipients, req.NewListName)
	if merged.ID == "" {
		return merged, err
	}
	if s.activeID == merged.ID {
		s.selection.Apply(&merged)
	}

	s.logger.Info("group imported",
		"group", g.Name,
		"participants", len(recipients),
		"list", merged.ID,
		"contacts", len(merged.Contacts),
	)
	return merged, err
}

// Logout ends the session. On success the session-scoped state is reset;
// stored lists are kept.
func (s *State) Logout(ctx context.Context) error {
	if err := s.session.Logout(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.selection.Reset(nil)
	s.activeID = ""
	s.groups = nil
	s.ready = false
	s.status = "Logged out"

	s.logger.Info("session logged out")
	return nil
}

// Close cancels a running broadcast and waits for it to stop
func (s *State) Close() {
	s.jobCancel()
	s.jobWG.Wait()
}
