package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/club-registration/internal/assign"
	"github.com/terra-clan/club-registration/internal/models"
)

const recomputeLock = "recompute"

// Status is the result class of a recompute run
type Status string

const (
	StatusRecomputed Status = "recomputed"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Outcome describes one recompute run. Runs never return errors; callers
// decide whether a failed or skipped outcome matters to them.
type Outcome struct {
	Status      Status        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	RunID       string        `json:"runId"`
	Policy      assign.Policy `json:"policy"`
	Digest      string        `json:"digest,omitempty"`
	Submissions int           `json:"submissions"`
	Counts      assign.Counts `json:"counts"`
	DurationMS  int64         `json:"durationMs"`
}

func newRunID() string {
	return uuid.NewString()
}

// Recompute reruns the engine over every stored submission and replaces
// stored rosters and waitlists with the result. An empty submission set
// leaves stored state untouched.
func (s *Service) Recompute(ctx context.Context) (out Outcome) {
	start := time.Now()
	out = Outcome{RunID: newRunID(), Policy: s.engine.Policy()}

	defer func() {
		elapsed := time.Since(start)
		out.DurationMS = elapsed.Milliseconds()
		s.recorder.RecordRun(string(out.Status), elapsed)
	}()

	release, err := s.locker.Acquire(ctx, recomputeLock)
	if err != nil {
		return s.failed(out, fmt.Sprintf("failed to acquire recompute lock: %v", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release recompute lock", "run_id", out.RunID, "error", err)
		}
	}()

	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return s.failed(out, fmt.Sprintf("failed to list submissions: %v", err))
	}

	out.Submissions = len(subs)
	digest := assign.Digest(subs)
	out.Digest = digest

	result, err := s.runEngine(subs)
	if err != nil {
		return s.failed(out, err.Error())
	}
	if result == nil {
		if err := s.recordDigest(ctx, digest); err != nil {
			return s.failed(out, err.Error())
		}
		out.Status = StatusSkipped
		out.Reason = "no submissions"
		slog.Info("assignment run skipped", "run_id", out.RunID, "reason", out.Reason)
		return out
	}

	stamp := s.now().UTC()
	result.Stamp(out.RunID, stamp)
	assignments := result.AssignmentList()
	waitlists := result.WaitlistList()

	state := models.RunState{RunID: out.RunID, Digest: digest, UpdatedAt: stamp}
	if err := s.repo.ReplaceResults(ctx, assignments, waitlists, state); err != nil {
		return s.failed(out, fmt.Sprintf("failed to persist results: %v", err))
	}

	out.Status = StatusRecomputed
	out.Counts = result.Counts()
	s.recorder.SetPlacement(out.Counts.Seats, out.Counts.Fallback, out.Counts.Waitlisted, out.Counts.Unplaced)

	if s.hub != nil {
		s.hub.Publish(out.RunID, assignments, waitlists)
	}

	slog.Info("assignment run completed",
		"run_id", out.RunID,
		"policy", out.Policy,
		"submissions", out.Submissions,
		"seats", out.Counts.Seats,
		"fallback", out.Counts.Fallback,
		"waitlisted", out.Counts.Waitlisted,
		"unplaced", out.Counts.Unplaced,
		"digest", out.Digest,
	)

	return out
}

// RunState returns the persisted digest and manual marker of the stored results
func (s *Service) RunState(ctx context.Context) (models.RunState, error) {
	state, err := s.repo.GetRunState(ctx)
	if err != nil {
		return models.RunState{}, fmt.Errorf("failed to load run state: %w", err)
	}
	return state, nil
}

// recordDigest notes that a run saw digest without writing results. The
// manual marker and run id of the stored results are kept.
func (s *Service) recordDigest(ctx context.Context, digest string) error {
	state, err := s.RunState(ctx)
	if err != nil {
		return err
	}
	state.Digest = digest
	state.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveRunState(ctx, state); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// manualState describes results an administrator wrote directly over the
// current submission set. Background reconciliation leaves them alone
// until submissions change.
func (s *Service) manualState(ctx context.Context, runID string) (models.RunState, error) {
	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return models.RunState{}, fmt.Errorf("failed to list submissions: %w", err)
	}
	return models.RunState{
		RunID:     runID,
		Digest:    assign.Digest(subs),
		Manual:    true,
		UpdatedAt: s.now().UTC(),
	}, nil
}

// runEngine converts an engine panic into an error
func (s *Service) runEngine(subs []*models.Submission) (result *assign.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assignment engine panicked: %v", r)
		}
	}()
	return s.engine.Assign(subs), nil
}

func (s *Service) failed(out Outcome, reason string) Outcome {
	out.Status = StatusFailed
	out.Reason = reason
	slog.Error("assignment run failed", "run_id", out.RunID, "reason", reason)
	return out
}

// recomputeAfter runs a recompute and logs the outcome without surfacing it
func (s *Service) recomputeAfter(ctx context.Context, trigger string) {
	out := s.Recompute(ctx)
	if out.Status == StatusFailed {
		slog.Warn("recompute failed", "trigger", trigger, "run_id", out.RunID, "reason", out.Reason)
	}
}
