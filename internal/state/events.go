package state

import (
	"context"
	"errors"

	"github.com/foxzi/broadcaster/internal/metrics"
	"github.com/foxzi/broadcaster/internal/session"
)

// Notify queues a session event. It never blocks; when the buffer is full
// the event is dropped.
func (s *State) Notify(e session.Event) {
	select {
	case s.events <- e:
	default:
		metrics.IncSessionEventsDropped()
		s.logger.Warn("session event dropped, buffer full", "type", e.Type)
	}
}

// RunEvents applies queued session events until ctx is done
func (s *State) RunEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.events:
			s.handleEvent(ctx, e)
		}
	}
}

func (s *State) handleEvent(ctx context.Context, e session.Event) {
	metrics.IncSessionEvents(string(e.Type))

	switch e.Type {
	case session.EventQR:
		s.OnQRUpdated(e.Payload)
	case session.EventReady:
		s.OnSessionReady(ctx)
	case session.EventStatus:
		s.OnStatus(e.Payload)
	default:
		s.logger.Warn("unknown session event", "type", e.Type)
	}
}

// OnQRUpdated stores a new login QR code; the session is not logged in
// while one is pending
func (s *State) OnQRUpdated(qr string) {
	s.mu.Lock()
	s.qr = qr
	s.ready = false
	s.generation++
	s.mu.Unlock()

	s.logger.Info("login qr code updated")
}

// OnSessionReady marks the session logged in and reloads the directory
func (s *State) OnSessionReady(ctx context.Context) {
	s.mu.Lock()
	s.qr = ""
	s.ready = true
	s.status = "Session ready"
	s.mu.Unlock()

	s.logger.Info("session ready")

	_, err := s.RefreshContacts(ctx)
	switch {
	case errors.Is(err, ErrSessionChanged):
		return
	case err != nil:
		s.logger.Error("failed to load contacts", "error", err)
		s.setStatus("Failed to load contacts: " + err.Error())
	}
}

// OnStatus records free-form status text from the session
func (s *State) OnStatus(text string) {
	s.setStatus(text)
	s.logger.Debug("session status", "status", text)
}

func (s *State) setStatus(text string) {
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
}
