package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/terra-clan/club-registration/internal/assign"
	"github.com/terra-clan/club-registration/internal/catalog"
	"github.com/terra-clan/club-registration/internal/live"
	"github.com/terra-clan/club-registration/internal/lock"
	"github.com/terra-clan/club-registration/internal/metrics"
	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/notify"
	"github.com/terra-clan/club-registration/internal/storage"
)

var (
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrInvalidOverwrite   = errors.New("invalid assignment overwrite")
)

// Assigner computes rosters and waitlists from a submission set
type Assigner interface {
	Assign(submissions []*models.Submission) *assign.Result
	Policy() assign.Policy
}

// Service orchestrates registrations and assignment runs
type Service struct {
	repo     storage.Repository
	catalog  *catalog.Catalog
	engine   Assigner
	locker   lock.Locker
	notifier *notify.Notifier
	hub      *live.Hub
	recorder metrics.Recorder
	validate *validator.Validate

	deadline       time.Time
	notifyOnSubmit bool
	now            func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLocker serializes recompute runs through l
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithNotifier sets the notification collaborator
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithHub publishes every persisted run to h
func WithHub(h *live.Hub) Option {
	return func(s *Service) {
		s.hub = h
	}
}

// WithRecorder records service metrics
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithDeadline rejects submissions after t. A zero time disables the check.
func WithDeadline(t time.Time) Option {
	return func(s *Service) {
		s.deadline = t
	}
}

// WithConfirmations sends a confirmation after each recorded submission
func WithConfirmations(enabled bool) Option {
	return func(s *Service) {
		s.notifyOnSubmit = enabled
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a registration service
func NewService(repo storage.Repository, cat *catalog.Catalog, engine Assigner, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		catalog:  cat,
		engine:   engine,
		locker:   lock.NoopLocker{},
		notifier: notify.NewNotifier(nil, 0),
		recorder: metrics.Nop{},
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Catalog returns the club catalog
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Deadline returns the registration deadline, zero when unset
func (s *Service) Deadline() time.Time {
	return s.deadline
}

// Submit validates and records a registration, replacing any prior submission
// for the same student and grade. The recompute and confirmation that follow
// never fail the call.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (*models.Submission, error) {
	now := s.now()
	if !s.deadline.IsZero() && now.After(s.deadline) {
		s.recorder.RecordSubmission("closed")
		return nil, ErrRegistrationClosed
	}

	if err := s.validateRequest(req); err != nil {
		s.recorder.RecordSubmission("invalid")
		return nil, err
	}

	sub := &models.Submission{
		StudentName: strings.TrimSpace(req.StudentName),
		Grade:       req.Grade,
		ParentName:  strings.TrimSpace(req.ParentName),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Rankings:    append([]models.Ranking(nil), req.Rankings...),
		Timestamp:   now.UTC(),
	}

	if err := s.repo.ReplaceSubmission(ctx, sub); err != nil {
		s.recorder.RecordSubmission("error")
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	s.recorder.RecordSubmission("accepted")
	slog.Info("submission recorded",
		"key", sub.Key().String(),
		"grade", int(sub.Grade),
		"rankings", len(sub.Rankings),
	)

	s.recomputeAfter(ctx, "submit")

	if s.notifyOnSubmit {
		out := s.notifier.Send(ctx, notify.Confirmation(sub, s.catalog))
		if !out.Sent {
			slog.Warn("confirmation not sent", "key", sub.Key().String(), "reason", out.Reason)
		}
	}

	return sub, nil
}

func (s *Service) validateRequest(req models.SubmitRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidSubmission, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	if models.NormalizeStudentName(req.StudentName) == "" {
		return fmt.Errorf("%w: studentName must contain letters or digits", ErrInvalidSubmission)
	}

	return nil
}

// Delete removes one student's submission and recomputes
func (s *Service) Delete(ctx context.Context, studentName string, grade models.Grade) error {
	key := models.NewSubmissionKey(studentName, grade)
	if key.RowKey == "" {
		return storage.ErrNotFound
	}

	if err := s.repo.DeleteSubmission(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	slog.Info("submission deleted", "key", key.String())

	s.recomputeAfter(ctx, "delete")
	return nil
}

// ListSubmissions returns every stored submission
func (s *Service) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// ListAssignments returns every stored roster
func (s *Service) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	list, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return list, nil
}

// ListWaitlists returns every stored waitlist
func (s *Service) ListWaitlists(ctx context.Context) ([]*models.Waitlist, error) {
	list, err := s.repo.ListWaitlists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlists: %w", err)
	}
	return list, nil
}

// OverwriteAssignments replaces stored rosters with an administrator's list,
// bypassing the engine. Waitlists are left as they are.
func (s *Service) OverwriteAssignments(ctx context.Context, clubs map[string]models.OverwriteClub) ([]*models.Assignment, error) {
	ids := make([]string, 0, len(clubs))
	for id := range clubs {
		ids = append(ids, id)
	}
	s.sortByCatalog(ids)

	runID := "overwrite-" + newRunID()
	now := s.now().UTC()

	assignments := make([]*models.Assignment, 0, len(ids))
	for _, id := range ids {
		club := clubs[id]
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty club id", ErrInvalidOverwrite)
		}
		if club.Capacity < 0 {
			return nil, fmt.Errorf("%w: club %s has negative capacity", ErrInvalidOverwrite, id)
		}
		if len(club.Students) > club.Capacity {
			return nil, fmt.Errorf("%w: club %s has %d students for %d seats",
				ErrInvalidOverwrite, id, len(club.Students), club.Capacity)
		}

		name := club.Name
		if name == "" {
			name = s.catalog.DisplayName(id)
		}
		students := club.Students
		if students == nil {
			students = []models.AssignedStudent{}
		}

		assignments = append(assignments, &models.Assignment{
			ClubID:      id,
			ClubName:    name,
			Capacity:    club.Capacity,
			Students:    students,
			RunID:       runID,
			LastUpdated: now,
		})
	}

	err := s.withRecomputeLock(ctx, func() error {
		state, err := s.manualState(ctx, runID)
		if err != nil {
			return err
		}
		return s.repo.ReplaceAssignments(ctx, assignments, state)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to overwrite assignments: %w", err)
	}

	slog.Info("assignments overwritten", "run_id", runID, "clubs", len(assignments))
	s.publishStored(ctx, runID)

	return assignments, nil
}

// ClearAssignments removes every roster. The empty result is kept until
// submissions change.
func (s *Service) ClearAssignments(ctx context.Context) (int64, error) {
	n, err := s.clearResults(ctx, s.repo.ClearAssignments)
	if err != nil {
		return 0, fmt.Errorf("failed to clear assignments: %w", err)
	}
	slog.Info("assignments cleared", "count", n)
	s.publishStored(ctx, "")
	return n, nil
}

// ClearWaitlists removes every waitlist
func (s *Service) ClearWaitlists(ctx context.Context) (int64, error) {
	n, err := s.clearResults(ctx, s.repo.ClearWaitlists)
	if err != nil {
		return 0, fmt.Errorf("failed to clear waitlists: %w", err)
	}
	slog.Info("waitlists cleared", "count", n)
	s.publishStored(ctx, "")
	return n, nil
}

// ClearSubmissions removes every submission. Stored results are not recomputed.
func (s *Service) ClearSubmissions(ctx context.Context) (int64, error) {
	n, err := s.repo.ClearSubmissions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear submissions: %w", err)
	}
	slog.Info("submissions cleared", "count", n)
	return n, nil
}

// clearResults runs clear and marks what remains as manual results
func (s *Service) clearResults(ctx context.Context, clear func(context.Context) (int64, error)) (int64, error) {
	var n int64
	err := s.withRecomputeLock(ctx, func() error {
		var err error
		if n, err = clear(ctx); err != nil {
			return err
		}
		state, err := s.manualState(ctx, "clear-"+newRunID())
		if err != nil {
			return err
		}
		return s.repo.SaveRunState(ctx, state)
	})
	return n, err
}

// withRecomputeLock runs fn while holding the lock recompute runs take, so an
// admin write and its run state cannot interleave with a run.
func (s *Service) withRecomputeLock(ctx context.Context, fn func() error) error {
	release, err := s.locker.Acquire(ctx, recomputeLock)
	if err != nil {
		return fmt.Errorf("failed to acquire recompute lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release recompute lock", "error", err)
		}
	}()
	return fn()
}

// sortByCatalog orders club ids by catalog position, unknown ids last by name
func (s *Service) sortByCatalog(ids []string) {
	pos := make(map[string]int)
	for i, c := range s.catalog.AllClubs() {
		pos[c.ID] = i
	}
	sort.SliceStable(ids, func(i, j int) bool {
		pi, iok := pos[ids[i]]
		pj, jok := pos[ids[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
}

// publishStored pushes the stored state to live subscribers after an admin write
func (s *Service) publishStored(ctx context.Context, runID string) {
	if s.hub == nil {
		return
	}

	assignments, err := s.repo.ListAssignments(ctx)
	if err != nil {
		slog.Warn("failed to load assignments for live feed", "error", err)
		return
	}
	waitlists, err := s.repo.ListWaitlists(ctx)
	if err != nil {
		slog.Warn("failed to load waitlists for live feed", "error", err)
		return
	}

	s.hub.Publish(runID, assignments, waitlists)
}
