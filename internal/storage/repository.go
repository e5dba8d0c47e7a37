package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/club-registration/internal/models"
)

// ErrNotFound is returned when a keyed record does not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for registration persistence.
// Assignment and waitlist writes replace the whole collection.
type Repository interface {
	// Submissions
	ListSubmissions(ctx context.Context) ([]*models.Submission, error)
	ReplaceSubmission(ctx context.Context, sub *models.Submission) error
	DeleteSubmission(ctx context.Context, key models.SubmissionKey) error
	ClearSubmissions(ctx context.Context) (int64, error)

	// Assignments and waitlists
	ListAssignments(ctx context.Context) ([]*models.Assignment, error)
	ListWaitlists(ctx context.Context) ([]*models.Waitlist, error)
	ReplaceResults(ctx context.Context, assignments []*models.Assignment, waitlists []*models.Waitlist, state models.RunState) error
	ReplaceAssignments(ctx context.Context, assignments []*models.Assignment, state models.RunState) error
	ClearAssignments(ctx context.Context) (int64, error)
	ClearWaitlists(ctx context.Context) (int64, error)

	// Run state is written with the results it describes. GetRunState
	// returns the zero value before the first write.
	GetRunState(ctx context.Context) (models.RunState, error)
	SaveRunState(ctx context.Context, state models.RunState) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
