// Package sender delivers a personalized message to each recipient of a list.
package sender

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/metrics"
	"github.com/foxzi/broadcaster/internal/template"
)

// Broadcast statuses reported to metrics
const (
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// Messenger delivers one text to one chat address
type Messenger interface {
	SendMessage(ctx context.Context, address, text string) error
}

// Failure records a recipient the messenger could not reach
type Failure struct {
	Recipient contact.Recipient `json:"recipient"`
	Error     string            `json:"error"`
	Err       error             `json:"-"`
}

// Outcome summarizes one broadcast
type Outcome struct {
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failures   []Failure `json:"failures"`
	Canceled   bool      `json:"canceled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed returns the number of failed recipients
func (o Outcome) Failed() int {
	return len(o.Failures)
}

// Attempted returns how many recipients were tried
func (o Outcome) Attempted() int {
	return o.Sent + len(o.Failures)
}

// Hooks receive progress while a broadcast runs. Nil hooks are skipped.
type Hooks struct {
	OnSent     func(r contact.Recipient)
	OnFailure  func(f Failure)
	OnComplete func(o Outcome)
}

// Config controls addressing and pacing
type Config struct {
	AddressSuffix string
	RatePerSec    float64 // 0 disables pacing
}

// Sender sends broadcasts one recipient at a time
type Sender struct {
	messenger Messenger
	suffix    string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a sender
func New(m Messenger, cfg Config, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Sender{
		messenger: m,
		suffix:    cfg.AddressSuffix,
		logger:    logger,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return s
}

// Send renders msg for each recipient in order and hands it to the
// messenger. A failed recipient is recorded and the batch moves on.
// Cancellation is honored between recipients only; the send in flight
// runs detached from ctx and completes. OnComplete fires exactly once.
func (s *Sender) Send(ctx context.Context, msg template.Message, recipients []contact.Recipient, hooks Hooks) Outcome {
	out := Outcome{
		Total:     len(recipients),
		Failures:  []Failure{},
		StartedAt: time.Now(),
	}
	metrics.SetBroadcastRunning(true)

	s.logger.Info("broadcast started", "recipients", out.Total)

	for _, r := range recipients {
		if ctx.Err() != nil {
			out.Canceled = true
			break
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				out.Canceled = true
				break
			}
		}

		text := template.RenderMessage(msg, r)
		address := contact.Address(r.PhoneNumber, s.suffix)

		start := time.Now()
		err := s.messenger.SendMessage(context.WithoutCancel(ctx), address, text)
		metrics.ObserveSendDuration(time.Since(start))

		if err != nil {
			f := Failure{Recipient: r, Error: err.Error(), Err: err}
			out.Failures = append(out.Failures, f)
			metrics.IncMessagesFailed()
			s.logger.Warn("send failed", "recipient", r.Name, "phone", r.PhoneNumber, "error", err)
			if hooks.OnFailure != nil {
				hooks.OnFailure(f)
			}
			continue
		}

		out.Sent++
		metrics.IncMessagesSent()
		s.logger.Debug("message sent", "recipient", r.Name, "phone", r.PhoneNumber)
		if hooks.OnSent != nil {
			hooks.OnSent(r)
		}
	}

	out.FinishedAt = time.Now()
	metrics.SetBroadcastRunning(false)

	status := StatusCompleted
	if out.Canceled {
		status = StatusCanceled
	}
	metrics.IncBroadcasts(status)

	fields := []any{
		"status", status,
		"total", out.Total,
		"sent", out.Sent,
		"failed", out.Failed(),
		"duration", out.FinishedAt.Sub(out.StartedAt),
	}
	if out.Failed() > 0 || out.Canceled {
		s.logger.Warn("broadcast finished with failures", fields...)
	} else {
		s.logger.Info("broadcast finished", fields...)
	}

	if hooks.OnComplete != nil {
		hooks.OnComplete(out)
	}
	return out
}
