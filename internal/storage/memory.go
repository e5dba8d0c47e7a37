package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/terra-clan/club-registration/internal/models"
)

// MemoryRepository implements Repository in process memory.
// Values are copied on the way in and out so callers never share state.
type MemoryRepository struct {
	mu          sync.RWMutex
	submissions map[models.SubmissionKey]*models.Submission
	assignments []*models.Assignment
	waitlists   []*models.Waitlist
	state       models.RunState
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		submissions: make(map[models.SubmissionKey]*models.Submission),
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// ListSubmissions returns every stored submission, oldest first
func (r *MemoryRepository) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Submission, 0, len(r.submissions))
	for _, sub := range r.submissions {
		out = append(out, cloneSubmission(sub))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Key().String() < out[j].Key().String()
	})

	return out, nil
}

// ReplaceSubmission stores sub, replacing any submission under the same key
func (r *MemoryRepository) ReplaceSubmission(ctx context.Context, sub *models.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.submissions[sub.Key()] = cloneSubmission(sub)
	return nil
}

// DeleteSubmission removes a submission by key
func (r *MemoryRepository) DeleteSubmission(ctx context.Context, key models.SubmissionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.submissions[key]; !ok {
		return ErrNotFound
	}
	delete(r.submissions, key)
	return nil
}

// ClearSubmissions removes every submission
func (r *MemoryRepository) ClearSubmissions(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.submissions))
	r.submissions = make(map[models.SubmissionKey]*models.Submission)
	return n, nil
}

// ListAssignments returns rosters in the order they were written
func (r *MemoryRepository) ListAssignments(ctx context.Context) ([]*models.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, cloneAssignment(a))
	}
	return out, nil
}

// ListWaitlists returns waitlists in the order they were written
func (r *MemoryRepository) ListWaitlists(ctx context.Context) ([]*models.Waitlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Waitlist, 0, len(r.waitlists))
	for _, w := range r.waitlists {
		out = append(out, cloneWaitlist(w))
	}
	return out, nil
}

// ReplaceResults swaps both collections and the run state under one lock
func (r *MemoryRepository) ReplaceResults(ctx context.Context, assignments []*models.Assignment, waitlists []*models.Waitlist, state models.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a := cloneAssignments(assignments)
	w := make([]*models.Waitlist, 0, len(waitlists))
	for _, wl := range waitlists {
		w = append(w, cloneWaitlist(wl))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments = a
	r.waitlists = w
	r.state = state
	return nil
}

// ReplaceAssignments swaps the roster collection, leaving waitlists untouched
func (r *MemoryRepository) ReplaceAssignments(ctx context.Context, assignments []*models.Assignment, state models.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a := cloneAssignments(assignments)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assignments = a
	r.state = state
	return nil
}

// ClearAssignments removes every roster
func (r *MemoryRepository) ClearAssignments(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.assignments))
	r.assignments = nil
	return n, nil
}

// ClearWaitlists removes every waitlist
func (r *MemoryRepository) ClearWaitlists(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.waitlists))
	r.waitlists = nil
	return n, nil
}

// GetRunState returns the last saved run state
func (r *MemoryRepository) GetRunState(ctx context.Context) (models.RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, nil
}

// SaveRunState replaces the run state
func (r *MemoryRepository) SaveRunState(ctx context.Context, state models.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	return nil
}

func cloneSubmission(sub *models.Submission) *models.Submission {
	c := *sub
	c.Rankings = append([]models.Ranking(nil), sub.Rankings...)
	return &c
}

func cloneAssignments(in []*models.Assignment) []*models.Assignment {
	out := make([]*models.Assignment, 0, len(in))
	for _, a := range in {
		out = append(out, cloneAssignment(a))
	}
	return out
}

func cloneAssignment(a *models.Assignment) *models.Assignment {
	c := *a
	c.Students = append([]models.AssignedStudent{}, a.Students...)
	return &c
}

func cloneWaitlist(w *models.Waitlist) *models.Waitlist {
	c := *w
	c.Students = append([]models.AssignedStudent{}, w.Students...)
	return &c
}
