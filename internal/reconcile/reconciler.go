package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/club-registration/internal/assign"
	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/registration"
)

// Service is the slice of the registration service the reconciler drives
type Service interface {
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
	RunState(ctx context.Context) (models.RunState, error)
	Recompute(ctx context.Context) registration.Outcome
}

// Reconciler periodically reruns assignment when stored submissions have
// changed since the stored results were written. The comparison uses the
// persisted run state, so it survives restarts and is shared by replicas.
type Reconciler struct {
	service  Service
	interval time.Duration
}

// NewReconciler creates a new reconcile worker
func NewReconciler(service Service, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Reconciler{
		service:  service,
		interval: interval,
	}
}

// Start begins the reconcile worker in a goroutine
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	slog.Info("reconcile worker started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one cycle and reports whether a recompute was triggered
func (r *Reconciler) Reconcile(ctx context.Context) bool {
	slog.Debug("running reconcile cycle")

	subs, err := r.service.ListSubmissions(ctx)
	if err != nil {
		slog.Error("failed to list submissions for reconcile", "error", err)
		return false
	}

	state, err := r.service.RunState(ctx)
	if err != nil {
		slog.Error("failed to load run state for reconcile", "error", err)
		return false
	}

	digest := assign.Digest(subs)
	if digest == state.Digest {
		if state.Manual {
			slog.Debug("manual results in place", "digest", digest, "run_id", state.RunID)
		} else {
			slog.Debug("assignments up to date", "digest", digest)
		}
		return false
	}

	slog.Info("submission set changed since last run",
		"digest", digest,
		"last_digest", state.Digest,
		"submissions", len(subs),
		"replaces_manual", state.Manual,
	)

	out := r.service.Recompute(ctx)
	if out.Status == registration.StatusFailed {
		slog.Error("reconcile recompute failed", "run_id", out.RunID, "reason", out.Reason)
	}

	return true
}
