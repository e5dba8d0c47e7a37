package assign

import (
	"time"

	"github.com/terra-clan/club-registration/internal/models"
)

// Result is the outcome of one placement pass, keyed by club id
type Result struct {
	Policy      Policy
	Assignments map[string]*models.Assignment
	Waitlists   map[string]*models.Waitlist

	// Unplaced lists students who received no seat at all
	Unplaced []models.SubmissionKey

	order []string
}

// AssignmentList returns rosters in catalog order
func (r *Result) AssignmentList() []*models.Assignment {
	list := make([]*models.Assignment, 0, len(r.Assignments))
	for _, id := range r.order {
		if a, ok := r.Assignments[id]; ok {
			list = append(list, a)
		}
	}
	return list
}

// WaitlistList returns waitlists in catalog order
func (r *Result) WaitlistList() []*models.Waitlist {
	list := make([]*models.Waitlist, 0, len(r.Waitlists))
	for _, id := range r.order {
		if w, ok := r.Waitlists[id]; ok {
			list = append(list, w)
		}
	}
	return list
}

// Stamp tags every roster and waitlist with the run id and time
func (r *Result) Stamp(runID string, at time.Time) {
	for _, a := range r.Assignments {
		a.RunID = runID
		a.LastUpdated = at
	}
	for _, w := range r.Waitlists {
		w.RunID = runID
		w.LastUpdated = at
	}
}

// Counts summarizes a result for logging and metrics
type Counts struct {
	Seats      int `json:"seats"`
	Fallback   int `json:"fallback"`
	Waitlisted int `json:"waitlisted"`
	Unplaced   int `json:"unplaced"`
}

// Counts tallies seats, fallback placements, waitlist entries and unplaced students
func (r *Result) Counts() Counts {
	var c Counts
	for _, a := range r.Assignments {
		c.Seats += len(a.Students)
		for _, s := range a.Students {
			if s.IsFallback() {
				c.Fallback++
			}
		}
	}
	for _, w := range r.Waitlists {
		c.Waitlisted += len(w.Students)
	}
	c.Unplaced = len(r.Unplaced)
	return c
}
