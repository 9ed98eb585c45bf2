package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
	"github.com/foxzi/broadcaster/internal/list"
	"github.com/foxzi/broadcaster/internal/sender"
	"github.com/foxzi/broadcaster/internal/session"
	"github.com/foxzi/broadcaster/internal/template"
)

// mockSession implements session.Session for testing
type mockSession struct {
	mu         sync.Mutex
	contacts   []contact.RawContact
	groups     []group.Group
	fetchErr   error
	logoutErr  error
	failFor    map[string]error
	block      chan struct{}
	sent       []string
	texts      []string
	groupCalls int
	logouts    int
	// onFetch runs inside FetchContacts before the contacts are returned
	onFetch func()
}

func (m *mockSession) Start(ctx context.Context, n session.Notifier) error {
	n.Notify(session.NewEvent(session.EventReady, ""))
	return nil
}

func (m *mockSession) FetchContacts(ctx context.Context) ([]contact.RawContact, error) {
	if m.onFetch != nil {
		m.onFetch()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return append([]contact.RawContact(nil), m.contacts...), nil
}

func (m *mockSession) FetchGroups(ctx context.Context) ([]group.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.groups, nil
}

func (m *mockSession) SendMessage(ctx context.Context, address, text string) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[address]; ok {
		return err
	}
	m.sent = append(m.sent, address)
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockSession) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	return m.logoutErr
}

func (m *mockSession) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// mockTemplates implements TemplateResolver for testing
type mockTemplates map[string]*template.Template

func (m mockTemplates) Resolve(ctx context.Context, idOrName string) (*template.Template, error) {
	if tmpl, ok := m[idOrName]; ok {
		return tmpl, nil
	}
	return nil, template.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultContacts() []contact.RawContact {
	return []contact.RawContact{
		{ID: "111111@c.us", Name: "Alice", IsMyContact: true},
		{ID: "222222@c.us", PushName: "Bob", IsMyContact: true},
		{ID: "333333@c.us", IsMyContact: true},
		{ID: "444444@c.us", Name: "Stranger", IsMyContact: false},
		{ID: "12@c.us", Name: "Short", IsMyContact: true},
	}
}

func setupState(t *testing.T, sess *mockSession) (*State, *list.MemoryStore) {
	t.Helper()
	if sess.contacts == nil {
		sess.contacts = defaultContacts()
	}
	store := list.NewMemoryStore(nil)
	s := NewState(StateOptions{
		Session:      sess,
		Lists:        list.Open(context.Background(), store, testLogger()),
		Sender:       sender.New(sess, sender.Config{}, testLogger()),
		Templates:    mockTemplates{},
		EventsBuffer: 4,
		Logger:       testLogger(),
	})
	t.Cleanup(s.Close)
	return s, store
}

func loadedState(t *testing.T, sess *mockSession) (*State, *list.MemoryStore) {
	t.Helper()
	s, store := setupState(t, sess)
	if _, err := s.RefreshContacts(context.Background()); err != nil {
		t.Fatalf("RefreshContacts() error = %v", err)
	}
	return s, store
}

func waitJob(t *testing.T, s *State, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := s.Broadcast(id)
		if err != nil {
			t.Fatalf("Broadcast(%s) error = %v", id, err)
		}
		if job.State != JobRunning {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("broadcast %s did not finish", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshContacts(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})

	got := s.Contacts("")
	if len(got) != 3 {
		t.Fatalf("Contacts() = %d, want 3", len(got))
	}
	want := []string{"Alice", "Bob", "333333"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Contacts()[%d].Name = %q, want %q", i, got[i].Name, name)
		}
	}

	if found := s.Contacts("ali"); len(found) != 1 || found[0].PhoneNumber != "111111" {
		t.Errorf("Contacts(ali) = %+v", found)
	}
}

func TestRefreshContactsError(t *testing.T) {
	boom := errors.New("session gone")
	s, _ := setupState(t, &mockSession{fetchErr: boom})

	if _, err := s.RefreshContacts(context.Background()); !errors.Is(err, boom) {
		t.Errorf("RefreshContacts() error = %v, want session error", err)
	}
	if st := s.Status(); st.Contacts != 0 {
		t.Errorf("Contacts = %d, want 0", st.Contacts)
	}
}

func TestToggleWithoutActiveList(t *testing.T) {
	s, store := loadedState(t, &mockSession{})

	r, err := s.Toggle(context.Background(), "111111@c.us")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !r.Selected {
		t.Error("Toggle() should select")
	}
	if s.Status().Selected != 1 {
		t.Errorf("Selected = %d, want 1", s.Status().Selected)
	}
	if store.Saves() != 0 {
		t.Errorf("Saves() = %d, want 0 without an active list", store.Saves())
	}

	if _, err := s.Toggle(context.Background(), "missing"); err == nil {
		t.Error("Toggle(missing) should fail")
	}
}

func TestToggleSyncsActiveList(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	if _, err := s.Toggle(ctx, "111111@c.us"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	l, err := s.CreateList(ctx, "friends")
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	if n, err := s.SelectList(l.ID); err != nil || n != 1 {
		t.Fatalf("SelectList() = %d, %v, want 1", n, err)
	}

	tests := []struct {
		id     string
		phone  string
		member bool
	}{
		{"222222@c.us", "222222", true},
		{"111111@c.us", "111111", false},
		{"222222@c.us", "222222", false},
		{"111111@c.us", "111111", true},
	}

	for _, tt := range tests {
		r, err := s.Toggle(ctx, tt.id)
		if err != nil {
			t.Fatalf("Toggle(%s) error = %v", tt.id, err)
		}
		active, _ := s.ActiveList()
		if active.Contains(tt.phone) != tt.member {
			t.Errorf("after Toggle(%s) membership = %v, want %v", tt.id, active.Contains(tt.phone), tt.member)
		}
		if r.Selected != active.Contains(tt.phone) {
			t.Errorf("selected = %v but membership = %v", r.Selected, active.Contains(tt.phone))
		}
	}
}

func TestSelectAllDoesNotTouchLists(t *testing.T) {
	s, store := loadedState(t, &mockSession{})
	ctx := context.Background()

	l, _ := s.CreateList(ctx, "empty")
	if _, err := s.SelectList(l.ID); err != nil {
		t.Fatalf("SelectList() error = %v", err)
	}
	saves := store.Saves()

	if n := s.SelectAll(); n != 3 {
		t.Errorf("SelectAll() = %d, want 3", n)
	}
	s.DeselectAll()
	if s.Status().Selected != 0 {
		t.Errorf("Selected = %d after DeselectAll, want 0", s.Status().Selected)
	}

	active, _ := s.ActiveList()
	if len(active.Contacts) != 0 {
		t.Errorf("active list = %+v, want unchanged", active.Contacts)
	}
	if store.Saves() != saves {
		t.Error("SelectAll/DeselectAll must not persist")
	}
}

func TestCreateList(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	s.Toggle(ctx, "111111@c.us")
	s.Toggle(ctx, "333333@c.us")

	l, err := s.CreateList(ctx, "  Team ")
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	if l.Name != "Team" || len(l.Contacts) != 2 {
		t.Errorf("CreateList() = %+v", l)
	}
	if l.Contacts[0].PhoneNumber != "111111" || l.Contacts[1].PhoneNumber != "333333" {
		t.Errorf("contacts out of directory order: %+v", l.Contacts)
	}
	if s.Status().Selected != 0 {
		t.Error("CreateList() should clear the selection")
	}

	s.Toggle(ctx, "111111@c.us")
	if _, err := s.CreateList(ctx, "   "); !errors.Is(err, list.ErrEmptyName) {
		t.Errorf("CreateList(blank) error = %v, want ErrEmptyName", err)
	}
	if s.Status().Selected != 1 {
		t.Error("rejected CreateList() must keep the selection")
	}
}

func TestDeleteActiveList(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	l, _ := s.CreateList(ctx, "x")
	s.SelectList(l.ID)

	if err := s.DeleteList(ctx, l.ID); err != nil {
		t.Fatalf("DeleteList() error = %v", err)
	}
	if _, ok := s.ActiveList(); ok {
		t.Error("active list should be cleared")
	}
	if s.Status().ActiveListID != "" {
		t.Error("ActiveListID should be empty")
	}
	if err := s.DeleteList(ctx, l.ID); !errors.Is(err, list.ErrNotFound) {
		t.Errorf("DeleteList() twice error = %v, want ErrNotFound", err)
	}
}

func TestEditActiveList(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	l, _ := s.CreateList(ctx, "x")
	s.SelectList(l.ID)

	bob := contact.Recipient{ID: "222222@c.us", Name: "Bob", PhoneNumber: "222222"}
	updated, err := s.EditList(ctx, list.List{ID: l.ID, Name: "renamed", Contacts: []contact.Recipient{bob}})
	if err != nil {
		t.Fatalf("EditList() error = %v", err)
	}

	active, _ := s.ActiveList()
	if active.Name != "renamed" || len(active.Contacts) != 1 {
		t.Errorf("ActiveList() = %+v, want edited list", active)
	}
	if updated.Name != "renamed" {
		t.Errorf("EditList() = %+v", updated)
	}
	if st := s.Status(); st.Selected != 1 {
		t.Errorf("Selected = %d, want selection to follow the edited list", st.Selected)
	}
}

func TestSelectList(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	if _, err := s.SelectList("missing"); !errors.Is(err, list.ErrNotFound) {
		t.Errorf("SelectList(missing) error = %v, want ErrNotFound", err)
	}

	s.SelectAll()
	l, _ := s.CreateList(ctx, "all")
	if n, _ := s.SelectList(l.ID); n != 3 {
		t.Errorf("SelectList() = %d, want 3", n)
	}
	if n, _ := s.SelectList(""); n != 0 {
		t.Errorf("SelectList(\"\") = %d, want 0", n)
	}
	if _, ok := s.ActiveList(); ok {
		t.Error("SelectList(\"\") should deactivate")
	}
}

func TestRefreshKeepsActiveSelection(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	s.Toggle(ctx, "222222@c.us")
	l, _ := s.CreateList(ctx, "bob")
	s.SelectList(l.ID)

	if _, err := s.RefreshContacts(ctx); err != nil {
		t.Fatalf("RefreshContacts() error = %v", err)
	}
	for _, r := range s.Contacts("") {
		if r.Selected != (r.PhoneNumber == "222222") {
			t.Errorf("%s selected = %v after refresh", r.PhoneNumber, r.Selected)
		}
	}
}

func testGroup() group.Group {
	return group.Group{
		ID:   "g1@g.us",
		Name: "Club",
		Participants: []group.Participant{
			{ID: "111111@c.us", Number: "111111", Name: "New Alice"},
			{ID: "555555@c.us", Number: "555555", PushName: "Eve"},
			{ID: "666666@c.us", Number: "666666"},
		},
	}
}

func TestImportGroupValidation(t *testing.T) {
	sess := &mockSession{groups: []group.Group{testGroup()}}
	s, _ := loadedState(t, sess)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ImportRequest
		want error
	}{
		{"no participants", ImportRequest{GroupID: "g1@g.us", NewListName: "x"}, ErrEmptySelection},
		{"no destination", ImportRequest{GroupID: "g1@g.us", ParticipantIDs: []string{"555555@c.us"}}, list.ErrEmptyName},
		{"unknown destination", ImportRequest{GroupID: "g1@g.us", ParticipantIDs: []string{"555555@c.us"}, DestListID: "nope"}, list.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ImportGroup(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("ImportGroup() error = %v, want %v", err, tt.want)
			}
		})
	}

	if sess.groupCalls != 0 {
		t.Errorf("FetchGroups called %d times, validation must not reach the session", sess.groupCalls)
	}

	req := ImportRequest{GroupID: "other", ParticipantIDs: []string{"x"}, NewListName: "x"}
	if _, err := s.ImportGroup(ctx, req); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("ImportGroup(unknown group) error = %v, want ErrGroupNotFound", err)
	}
}

func TestImportGroupIntoExistingList(t *testing.T) {
	sess := &mockSession{groups: []group.Group{testGroup()}}
	s, _ := loadedState(t, sess)
	ctx := context.Background()

	s.Toggle(ctx, "111111@c.us")
	l, _ := s.CreateList(ctx, "dest")
	s.SelectList(l.ID)

	if _, err := s.Groups(ctx); err != nil {
		t.Fatalf("Groups() error = %v", err)
	}

	merged, err := s.ImportGroup(ctx, ImportRequest{
		GroupID:        "g1@g.us",
		ParticipantIDs: []string{"111111@c.us", "555555@c.us"},
		DestListID:     l.ID,
	})
	if err != nil {
		t.Fatalf("ImportGroup() error = %v", err)
	}

	if len(merged.Contacts) != 2 {
		t.Fatalf("Contacts = %+v, want 2", merged.Contacts)
	}
	if merged.Contacts[0].Name != "Alice" {
		t.Errorf("existing entry should win, got %q", merged.Contacts[0].Name)
	}
	if merged.Contacts[1].Name != "Eve" {
		t.Errorf("imported name = %q, want Eve", merged.Contacts[1].Name)
	}
	if sess.groupCalls != 1 {
		t.Errorf("FetchGroups called %d times, want cached groups reused", sess.groupCalls)
	}
}

func TestImportGroupNewList(t *testing.T) {
	sess := &mockSession{groups: []group.Group{testGroup()}}
	s, _ := loadedState(t, sess)

	l, err := s.ImportGroup(context.Background(), ImportRequest{
		GroupID:        "g1@g.us",
		ParticipantIDs: testGroup().AllParticipantIDs(),
		NewListName:    "Club members",
	})
	if err != nil {
		t.Fatalf("ImportGroup() error = %v", err)
	}
	if l.Name != "Club members" || len(l.Contacts) != 3 {
		t.Errorf("ImportGroup() = %+v", l)
	}
	if l.Contacts[2].Name != "666666" {
		t.Errorf("fallback name = %q, want phone", l.Contacts[2].Name)
	}
}

func TestLogout(t *testing.T) {
	sess := &mockSession{}
	s, _ := loadedState(t, sess)
	ctx := context.Background()

	s.Toggle(ctx, "111111@c.us")
	l, _ := s.CreateList(ctx, "kept")
	s.SelectList(l.ID)

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	st := s.Status()
	if st.Contacts != 0 || st.Selected != 0 || st.ActiveListID != "" || st.Ready {
		t.Errorf("Status() after logout = %+v", st)
	}
	if len(s.Lists()) != 1 {
		t.Error("stored lists must survive logout")
	}
}

func TestRefreshDroppedAfterLogout(t *testing.T) {
	sess := &mockSession{}
	s, _ := setupState(t, sess)
	ctx := context.Background()

	sess.onFetch = func() {
		if err := s.Logout(ctx); err != nil {
			t.Errorf("Logout() error = %v", err)
		}
	}
	if _, err := s.RefreshContacts(ctx); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("RefreshContacts() error = %v, want ErrSessionChanged", err)
	}
	if st := s.Status(); st.Contacts != 0 || st.Status != "Logged out" {
		t.Errorf("Status() = %+v, want empty directory after logout", st)
	}

	// A ready event racing a new login QR leaves the status alone
	sess.onFetch = func() { s.OnQRUpdated("qr-2") }
	s.OnSessionReady(ctx)
	if st := s.Status(); st.Contacts != 0 || st.Ready || st.QR != "qr-2" {
		t.Errorf("Status() = %+v, want pending qr and no contacts", st)
	}

	sess.onFetch = nil
	if n, err := s.RefreshContacts(ctx); err != nil || n != 3 {
		t.Errorf("RefreshContacts() = %d, %v, want 3 contacts", n, err)
	}
}

func TestLogoutFailureKeepsState(t *testing.T) {
	boom := errors.New("logout refused")
	sess := &mockSession{logoutErr: boom}
	s, _ := loadedState(t, sess)

	if err := s.Logout(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Logout() error = %v, want session error", err)
	}
	if s.Status().Contacts != 3 {
		t.Error("failed logout must keep the directory")
	}
}

func TestStartBroadcastValidation(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	if _, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank text error = %v, want ErrEmptyMessage", err)
	}
	if _, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "hi"}); !errors.Is(err, ErrNoActiveList) {
		t.Errorf("no active list error = %v, want ErrNoActiveList", err)
	}
	if _, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "hi", ListID: "missing"}); !errors.Is(err, list.ErrNotFound) {
		t.Errorf("unknown list error = %v, want ErrNotFound", err)
	}
	if _, err := s.StartBroadcast(ctx, BroadcastRequest{TemplateID: "missing"}); !errors.Is(err, template.ErrNotFound) {
		t.Errorf("unknown template error = %v, want template.ErrNotFound", err)
	}

	l, _ := s.CreateList(ctx, "empty")
	s.SelectList(l.ID)
	if _, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "hi"}); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("empty list error = %v, want ErrNoRecipients", err)
	}
}

func TestBroadcastPartialFailure(t *testing.T) {
	sess := &mockSession{failFor: map[string]error{"222222@c.us": errors.New("not on platform")}}
	s, _ := loadedState(t, sess)
	ctx := context.Background()

	s.SelectAll()
	l, _ := s.CreateList(ctx, "everyone")
	s.SelectList(l.ID)

	job, err := s.StartBroadcast(ctx, BroadcastRequest{
		Text:      "Hi {nom}, see you {when}",
		Variables: []template.Variable{{Key: "when", Value: "tonight"}},
	})
	if err != nil {
		t.Fatalf("StartBroadcast() error = %v", err)
	}
	if !strings.HasPrefix(job.ID, "bc:") {
		t.Errorf("job id = %q, want bc: prefix", job.ID)
	}

	done := waitJob(t, s, job.ID)
	if done.State != JobCompleted {
		t.Errorf("State = %s, want completed", done.State)
	}
	if done.Sent != 2 || done.Failed != 1 {
		t.Errorf("Sent = %d, Failed = %d, want 2 and 1", done.Sent, done.Failed)
	}
	if done.Failures[0].Recipient.Name != "Bob" {
		t.Errorf("failure recipient = %q, want Bob", done.Failures[0].Recipient.Name)
	}

	sent := sess.sentTo()
	if len(sent) != 2 || sent[0] != "111111@c.us" || sent[1] != "333333@c.us" {
		t.Errorf("sent = %v, want Alice then 333333 in list order", sent)
	}
	if sess.texts[0] != "Hi Alice, see you tonight" {
		t.Errorf("text = %q", sess.texts[0])
	}

	st := s.Status()
	if !strings.Contains(st.Status, "2 sent, 1 failed") {
		t.Errorf("status = %q, want completion summary", st.Status)
	}
	if st.Broadcast != nil {
		t.Error("no broadcast should be running")
	}
}

func TestBroadcastRunningAndCancel(t *testing.T) {
	sess := &mockSession{block: make(chan struct{})}
	s, _ := loadedState(t, sess)
	ctx := context.Background()

	s.SelectAll()
	l, _ := s.CreateList(ctx, "everyone")

	job, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "hi", ListID: l.ID})
	if err != nil {
		t.Fatalf("StartBroadcast() error = %v", err)
	}

	if _, err := s.StartBroadcast(ctx, BroadcastRequest{Text: "again", ListID: l.ID}); !errors.Is(err, ErrBroadcastRunning) {
		t.Errorf("second StartBroadcast() error = %v, want ErrBroadcastRunning", err)
	}
	if st := s.Status(); st.Broadcast == nil || st.Broadcast.ID != job.ID {
		t.Errorf("Status().Broadcast = %+v, want running job", st.Broadcast)
	}

	if _, err := s.CancelBroadcast(job.ID); err != nil {
		t.Fatalf("CancelBroadcast() error = %v", err)
	}

	done := waitJob(t, s, job.ID)
	if done.State != JobCanceled {
		t.Errorf("State = %s, want canceled", done.State)
	}
	if done.Sent != 0 {
		t.Errorf("Sent = %d, want 0", done.Sent)
	}

	if _, err := s.CancelBroadcast("bc:0"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CancelBroadcast(unknown) error = %v, want ErrJobNotFound", err)
	}
	if jobs := s.Broadcasts(); len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("Broadcasts() = %+v", jobs)
	}
}

func TestBroadcastFromTemplate(t *testing.T) {
	sess := &mockSession{}
	s, _ := loadedState(t, sess)
	s.templates = mockTemplates{
		"welcome": {
			ID:        "t1",
			Name:      "welcome",
			Text:      "Welcome {nom} to {club}",
			Variables: []template.Variable{{Key: "club", Value: "the club"}},
		},
	}
	ctx := context.Background()

	s.Toggle(ctx, "111111@c.us")
	l, _ := s.CreateList(ctx, "one")

	job, err := s.StartBroadcast(ctx, BroadcastRequest{
		TemplateID: "welcome",
		ListID:     l.ID,
		Variables:  []template.Variable{{Key: "club", Value: "Chess Club"}},
	})
	if err != nil {
		t.Fatalf("StartBroadcast() error = %v", err)
	}
	waitJob(t, s, job.ID)

	if sess.texts[0] != "Welcome Alice to Chess Club" {
		t.Errorf("text = %q", sess.texts[0])
	}
}

func TestPreview(t *testing.T) {
	s, _ := loadedState(t, &mockSession{})
	ctx := context.Background()

	p, err := s.Preview(ctx, PreviewRequest{
		BroadcastRequest: BroadcastRequest{Text: "Hi {NOM} {missing}"},
		Name:             "Zoe",
		PhoneNumber:      "999999",
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p.Text != "Hi Zoe {missing}" {
		t.Errorf("Text = %q", p.Text)
	}
	if len(p.Unknown) != 1 || p.Unknown[0] != "missing" {
		t.Errorf("Unknown = %v, want [missing]", p.Unknown)
	}

	s.Toggle(ctx, "222222@c.us")
	l, _ := s.CreateList(ctx, "bob")
	s.SelectList(l.ID)

	p, _ = s.Preview(ctx, PreviewRequest{BroadcastRequest: BroadcastRequest{Text: "Hi {nom}"}})
	if p.Text != "Hi Bob" {
		t.Errorf("Text = %q, want first active list contact", p.Text)
	}

	if _, err := s.Preview(ctx, PreviewRequest{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Preview(empty) error = %v, want ErrEmptyMessage", err)
	}
}

func TestOverrideVariables(t *testing.T) {
	base := []template.Variable{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	got := overrideVariables(base, []template.Variable{{Key: "b", Value: "x"}, {Key: "c", Value: "3"}})

	want := []template.Variable{{Key: "a", Value: "1"}, {Key: "b", Value: "x"}, {Key: "c", Value: "3"}}
	if len(got) != len(want) {
		t.Fatalf("overrideVariables() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if base[1].Value != "2" {
		t.Error("base must not be modified")
	}
}
