// Package sandbox is an offline session. It serves a fixture address book,
// logs itself in without a QR scan and captures sent messages in BoltDB.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/group"
	"github.com/foxzi/broadcaster/internal/session"
)

// ErrNotReady is returned when the session is not logged in
var ErrNotReady = errors.New("sandbox session not ready")

// SimulatedError represents a simulated delivery error
type SimulatedError struct {
	Message string
}

func (e *SimulatedError) Error() string {
	return e.Message
}

var simulatedErrors = []string{
	"recipient is not on the platform",
	"chat not found",
	"rate-overlimit",
	"session disconnected",
}

// Session is a session.Session that never leaves the process
type Session struct {
	fixture *Fixture
	storage *Storage
	logger  *slog.Logger

	mu               sync.Mutex
	notifier         session.Notifier
	ready            bool
	errorProbability float64
	rnd              *rand.Rand
}

var _ session.Session = (*Session)(nil)

// New creates a sandbox session
func New(fixture *Fixture, storage *Storage, logger *slog.Logger) *Session {
	if fixture == nil {
		fixture = DefaultFixture()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		fixture: fixture,
		storage: storage,
		logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetErrorSimulation sets the share of sends that fail (0 disables)
func (s *Session) SetErrorSimulation(probability float64, seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	s.errorProbability = probability
	s.rnd = rand.New(rand.NewSource(seed))
}

// Start emits a QR code, then logs in straight away
func (s *Session) Start(ctx context.Context, n session.Notifier) error {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()

	s.login()
	return nil
}

func (s *Session) login() {
	s.mu.Lock()
	n := s.notifier
	s.ready = true
	s.mu.Unlock()

	if n == nil {
		return
	}
	n.Notify(session.NewEvent(session.EventQR, "sandbox:"+uuid.NewString()))
	n.Notify(session.NewEvent(session.EventStatus, "sandbox session authenticated"))
	n.Notify(session.NewEvent(session.EventReady, ""))
}

// Ready reports whether the session is logged in
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// FetchContacts returns a copy of the fixture address book
func (s *Session) FetchContacts(ctx context.Context) ([]contact.RawContact, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	out := make([]contact.RawContact, len(s.fixture.Contacts))
	copy(out, s.fixture.Contacts)
	return out, nil
}

// FetchGroups returns a copy of the fixture groups
func (s *Session) FetchGroups(ctx context.Context) ([]group.Group, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	out := make([]group.Group, len(s.fixture.Groups))
	for i, g := range s.fixture.Groups {
		g.Participants = append([]group.Participant(nil), g.Participants...)
		out[i] = g
	}
	return out, nil
}

// SendMessage captures the message. With error simulation on, some sends
// are recorded with an error and fail.
func (s *Session) SendMessage(ctx context.Context, address, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	ready := s.ready
	var simErr string
	if s.errorProbability > 0 && s.rnd.Float64() < s.errorProbability {
		simErr = simulatedErrors[s.rnd.Intn(len(simulatedErrors))]
	}
	s.mu.Unlock()

	if !ready {
		return ErrNotReady
	}

	msg := &Message{
		ID:           uuid.NewString(),
		ChatID:       address,
		Text:         text,
		CapturedAt:   time.Now(),
		SimulatedErr: simErr,
	}

	if s.storage != nil {
		if err := s.storage.Save(ctx, msg); err != nil {
			if simErr == "" {
				return fmt.Errorf("sandbox: failed to save message: %w", err)
			}
			s.logger.Error("sandbox: failed to save message", "error", err)
		}
	}

	if simErr != "" {
		s.logger.Info("sandbox: simulated failure", "chat_id", address, "error", simErr)
		return &SimulatedError{Message: simErr}
	}

	s.logger.Info("sandbox: message captured", "id", msg.ID, "chat_id", address)
	return nil
}

// Logout drops the login and re-initializes, which emits a fresh QR code.
// Calling Start again stands in for scanning it.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.ready = false
	n := s.notifier
	s.mu.Unlock()

	s.logger.Info("sandbox: logged out, waiting for login")
	if n != nil {
		n.Notify(session.NewEvent(session.EventStatus, "logged out"))
		n.Notify(session.NewEvent(session.EventQR, "sandbox:"+uuid.NewString()))
	}
	return nil
}
