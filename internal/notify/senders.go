package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/terra-clan/club-registration/internal/models"
)

// NATSSender publishes notifications as JSON on <subject>.<kind>
type NATSSender struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSSender connects to url and publishes under subject
func NewNATSSender(url, subject string) (*NATSSender, error) {
	nc, err := nats.Connect(url,
		nats.Name("club-registration"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	slog.Info("nats publisher initialized", "url", url, "subject", subject)

	s := NewNATSSenderWithConn(nc, subject)
	s.owned = true
	return s, nil
}

// NewNATSSenderWithConn publishes on an existing connection. Close leaves it open.
func NewNATSSenderWithConn(nc *nats.Conn, subject string) *NATSSender {
	return &NATSSender{conn: nc, subject: subject}
}

// Subject returns the subject a message of kind is published on
func (s *NATSSender) Subject(kind models.NotificationKind) string {
	return s.subject + "." + string(kind)
}

// Send publishes msg and waits for the server to acknowledge the flush
func (s *NATSSender) Send(ctx context.Context, msg *models.Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	out := nats.NewMsg(s.Subject(msg.Kind))
	out.Header.Set("Nats-Msg-Id", msg.ID)
	out.Header.Set("Content-Type", "application/json")
	out.Data = data

	if err := s.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush notification: %w", err)
	}

	return nil
}

// Ping reports whether the connection is up
func (s *NATSSender) Ping(ctx context.Context) error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", s.conn.Status())
	}
	return nil
}

// Close drains the connection when this sender opened it
func (s *NATSSender) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Drain()
}

// LogSender writes notifications to the structured log instead of delivering them
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender logs through logger, or the default logger when nil
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, msg *models.Notification) error {
	clubs := make([]string, 0, len(msg.Clubs))
	for _, c := range msg.Clubs {
		clubs = append(clubs, fmt.Sprintf("%d:%s", c.Choice, c.ClubID))
	}

	s.logger.InfoContext(ctx, "notification",
		"id", msg.ID,
		"kind", msg.Kind,
		"to", msg.To,
		"student", msg.StudentName,
		"grade", int(msg.Grade),
		"clubs", clubs,
	)
	return nil
}

// Close is a no-op
func (s *LogSender) Close() error {
	return nil
}
