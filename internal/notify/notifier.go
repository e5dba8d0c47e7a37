package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/terra-clan/club-registration/internal/metrics"
	"github.com/terra-clan/club-registration/internal/models"
)

// ReasonNotConfigured is reported for every message when no sender is wired
const ReasonNotConfigured = "notification service not configured"

// Driver names accepted by config
const (
	DriverLog  = "log"
	DriverNATS = "nats"
	DriverNone = "none"
)

// ValidDriver reports whether name is a known notification driver
func ValidDriver(name string) bool {
	switch strings.ToLower(name) {
	case DriverLog, DriverNATS, DriverNone:
		return true
	}
	return false
}

// Sender delivers one notification to the mail worker
type Sender interface {
	Send(ctx context.Context, msg *models.Notification) error
	Close() error
}

// Outcome is the result of a single send
type Outcome struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// Failure names a student whose message was not delivered
type Failure struct {
	Student string `json:"student"`
	Reason  string `json:"reason"`
}

// Details lists per-student results of a batch
type Details struct {
	Sent   []string  `json:"sent"`
	Failed []Failure `json:"failed"`
	Total  int       `json:"total"`
}

// Report summarizes a batch send
type Report struct {
	Success bool    `json:"success"`
	Total   int     `json:"total"`
	Sent    int     `json:"sent"`
	Failed  int     `json:"failed"`
	Details Details `json:"details"`
}

// Notifier sends messages through a Sender with a fixed gap between sends
type Notifier struct {
	sender   Sender
	limiter  *rate.Limiter
	recorder metrics.Recorder
}

// Option configures a Notifier
type Option func(*Notifier)

// WithRecorder counts every send attempt
func WithRecorder(r metrics.Recorder) Option {
	return func(n *Notifier) {
		n.recorder = r
	}
}

// NewNotifier creates a notifier. A nil sender reports every message as
// not configured. delay is the minimum gap between consecutive sends.
func NewNotifier(sender Sender, delay time.Duration, opts ...Option) *Notifier {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	n := &Notifier{
		sender:   sender,
		limiter:  rate.NewLimiter(limit, 1),
		recorder: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Configured reports whether a sender is wired
func (n *Notifier) Configured() bool {
	return n.sender != nil
}

// Send delivers one message and reports the outcome. It never returns an error.
func (n *Notifier) Send(ctx context.Context, msg *models.Notification) Outcome {
	if n.sender == nil {
		slog.Info("notification service not configured, skipping", "kind", msg.Kind, "student", msg.StudentName)
		n.recorder.RecordNotification(string(msg.Kind), false)
		return Outcome{Reason: ReasonNotConfigured}
	}

	if err := n.limiter.Wait(ctx); err != nil {
		n.recorder.RecordNotification(string(msg.Kind), false)
		return Outcome{Reason: fmt.Sprintf("failed to wait for send slot: %v", err)}
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		slog.Error("failed to send notification",
			"kind", msg.Kind,
			"student", msg.StudentName,
			"error", err,
		)
		n.recorder.RecordNotification(string(msg.Kind), false)
		return Outcome{Reason: fmt.Sprintf("failed to send %s message: %v", msg.Kind, err)}
	}

	slog.Info("notification sent", "kind", msg.Kind, "student", msg.StudentName, "id", msg.ID)
	n.recorder.RecordNotification(string(msg.Kind), true)
	return Outcome{Sent: true}
}

// SendAll delivers messages in order and reports each student's outcome
func (n *Notifier) SendAll(ctx context.Context, msgs []*models.Notification) Report {
	details := Details{
		Sent:   []string{},
		Failed: []Failure{},
		Total:  len(msgs),
	}

	for _, msg := range msgs {
		out := n.Send(ctx, msg)
		if out.Sent {
			details.Sent = append(details.Sent, msg.StudentName)
			continue
		}
		details.Failed = append(details.Failed, Failure{Student: msg.StudentName, Reason: out.Reason})
	}

	return Report{
		Success: len(details.Failed) == 0,
		Total:   len(msgs),
		Sent:    len(details.Sent),
		Failed:  len(details.Failed),
		Details: details,
	}
}

// Close releases the sender
func (n *Notifier) Close() error {
	if n.sender == nil {
		return nil
	}
	return n.sender.Close()
}
