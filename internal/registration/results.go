package registration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/notify"
)

// SendResults notifies every registered family of their final placement.
// Students without a seat get a waitlist message.
func (s *Service) SendResults(ctx context.Context) (notify.Report, error) {
	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return notify.Report{}, fmt.Errorf("failed to list submissions: %w", err)
	}

	assignments, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return notify.Report{}, fmt.Errorf("failed to list assignments: %w", err)
	}

	msgs := make([]*models.Notification, 0, len(subs))
	for _, sub := range subs {
		msgs = append(msgs, notify.Results(sub, assignments))
	}

	report := s.notifier.SendAll(ctx, msgs)

	slog.Info("result notifications finished",
		"total", report.Total,
		"sent", report.Sent,
		"failed", report.Failed,
	)

	return report, nil
}
