package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/list"
	"github.com/foxzi/broadcaster/internal/sender"
	"github.com/foxzi/broadcaster/internal/template"
)

// Job states
const (
	JobRunning   = "running"
	JobCompleted = sender.StatusCompleted
	JobCanceled  = sender.StatusCanceled
)

// maxJobs bounds the finished jobs kept for lookup
const maxJobs = 50

// Job tracks one broadcast
type Job struct {
	ID         string           `json:"id"`
	ListID     string           `json:"list_id"`
	ListName   string           `json:"list_name"`
	State      string           `json:"state"`
	Total      int              `json:"total"`
	Sent       int              `json:"sent"`
	Failed     int              `json:"failed"`
	Failures   []sender.Failure `json:"failures"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`

	cancel context.CancelFunc
}

func (j *Job) snapshot() Job {
	c := *j
	c.Failures = append([]sender.Failure{}, j.Failures...)
	c.cancel = nil
	return c
}

// BroadcastRequest names the message and the list to send it to.
// TemplateID takes a saved template; Variables then override its values
// by key. ListID defaults to the active list.
type BroadcastRequest struct {
	Text       string              `json:"text"`
	Variables  []template.Variable `json:"variables"`
	TemplateID string              `json:"template_id,omitempty"`
	ListID     string              `json:"list_id,omitempty"`
}

// StartBroadcast validates the request, snapshots the list and sends to it
// in the background. At most one broadcast runs at a time.
func (s *State) StartBroadcast(ctx context.Context, req BroadcastRequest) (Job, error) {
	msg, err := s.resolveMessage(ctx, req)
	if err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		l  list.List
		ok bool
	)
	if req.ListID != "" {
		if l, ok = s.lists.Get(req.ListID); !ok {
			return Job{}, list.ErrNotFound
		}
	} else if l, ok = s.activeList(); !ok {
		return Job{}, ErrNoActiveList
	}
	if len(l.Contacts) == 0 {
		return Job{}, ErrNoRecipients
	}
	if s.running != "" {
		return Job{}, ErrBroadcastRunning
	}

	now := time.Now()
	job := &Job{
		ID:        fmt.Sprintf("bc:%d", now.UnixNano()),
		ListID:    l.ID,
		ListName:  l.Name,
		State:     JobRunning,
		Total:     len(l.Contacts),
		Failures:  []sender.Failure{},
		StartedAt: now,
	}
	jobCtx, cancel := context.WithCancel(s.jobCtx)
	job.cancel = cancel

	s.addJob(job)
	s.running = job.ID
	s.status = fmt.Sprintf("Sending to %d contacts of %s", job.Total, l.Name)

	s.jobWG.Add(1)
	go s.runBroadcast(jobCtx, job, msg, l.Contacts)

	return job.snapshot(), nil
}

func (s *State) runBroadcast(ctx context.Context, job *Job, msg template.Message, recipients []contact.Recipient) {
	defer s.jobWG.Done()
	defer job.cancel()

	s.sender.Send(ctx, msg, recipients, sender.Hooks{
		OnSent: func(r contact.Recipient) {
			s.mu.Lock()
			job.Sent++
			s.mu.Unlock()
		},
		OnFailure: func(f sender.Failure) {
			s.mu.Lock()
			job.Failed++
			job.Failures = append(job.Failures, f)
			s.status = fmt.Sprintf("Failed to send to %s: %s", f.Recipient.Name, f.Error)
			s.mu.Unlock()
		},
		OnComplete: func(o sender.Outcome) {
			s.mu.Lock()
			defer s.mu.Unlock()

			job.State = JobCompleted
			if o.Canceled {
				job.State = JobCanceled
			}
			job.FinishedAt = o.FinishedAt
			if s.running == job.ID {
				s.running = ""
			}

			if o.Canceled {
				s.status = fmt.Sprintf("Broadcast canceled: %d sent, %d failed", o.Sent, o.Failed())
			} else {
				s.status = fmt.Sprintf("Broadcast completed: %d sent, %d failed", o.Sent, o.Failed())
			}
		},
	})
}

// addJob records a job, forgetting the oldest finished ones past maxJobs
func (s *State) addJob(job *Job) {
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)

	for len(s.jobOrder) > maxJobs {
		oldest := s.jobOrder[0]
		if oldest == s.running {
			break
		}
		delete(s.jobs, oldest)
		s.jobOrder = s.jobOrder[1:]
	}
}

// Broadcast returns a snapshot of a job
func (s *State) Broadcast(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// CancelBroadcast stops a running job before its next recipient. The send
// in flight completes.
func (s *State) CancelBroadcast(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if job.State == JobRunning {
		job.cancel()
		s.logger.Info("broadcast cancel requested", "id", id)
	}
	return job.snapshot(), nil
}

// Broadcasts returns snapshots of known jobs, newest first
func (s *State) Broadcasts() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobOrder))
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.jobOrder[i]].snapshot())
	}
	return out
}

func (s *State) resolveMessage(ctx context.Context, req BroadcastRequest) (template.Message, error) {
	msg := template.Message{Text: req.Text, Variables: req.Variables}

	if req.TemplateID != "" {
		if s.templates == nil {
			return template.Message{}, template.ErrNotFound
		}
		tmpl, err := s.templates.Resolve(ctx, req.TemplateID)
		if err != nil {
			return template.Message{}, err
		}
		msg = tmpl.Message()
		if strings.TrimSpace(req.Text) != "" {
			msg.Text = req.Text
		}
		msg.Variables = overrideVariables(msg.Variables, req.Variables)
	}

	if strings.TrimSpace(msg.Text) == "" {
		return template.Message{}, ErrEmptyMessage
	}
	return msg, nil
}

// overrideVariables replaces values by key and appends new keys, keeping
// the order of base
func overrideVariables(base, overrides []template.Variable) []template.Variable {
	out := append([]template.Variable{}, base...)
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].Key == o.Key {
				out[i].Value = o.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

// PreviewRequest renders a message for one recipient. Without PhoneNumber
// the first contact of the active list is used, then a sample recipient.
type PreviewRequest struct {
	BroadcastRequest
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Preview is a rendered message
type Preview struct {
	Recipient    contact.Recipient      `json:"recipient"`
	Text         string                 `json:"text"`
	Placeholders []template.Placeholder `json:"placeholders"`
	Unknown      []string               `json:"unknown,omitempty"`
}

// Preview renders a message without sending it
func (s *State) Preview(ctx context.Context, req PreviewRequest) (Preview, error) {
	msg, err := s.resolveMessage(ctx, req.BroadcastRequest)
	if err != nil {
		return Preview{}, err
	}

	r := contact.Recipient{Name: req.Name, PhoneNumber: req.PhoneNumber}
	if r.PhoneNumber == "" {
		if l, ok := s.ActiveList(); ok && len(l.Contacts) > 0 {
			r = l.Contacts[0]
		} else {
			r = contact.Recipient{Name: "Sample", PhoneNumber: "000000"}
		}
	}
	if r.Name == "" {
		r.Name = r.PhoneNumber
	}

	return Preview{
		Recipient:    r,
		Text:         template.RenderMessage(msg, r),
		Placeholders: template.Analyze(msg.Text, msg.Variables),
		Unknown:      template.Unknown(msg.Text, msg.Variables),
	}, nil
}
