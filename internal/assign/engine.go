package assign

import (
	"fmt"
	"strings"

	"github.com/terra-clan/club-registration/internal/catalog"
	"github.com/terra-clan/club-registration/internal/models"
)

// Policy selects how the ranked pass places students
type Policy string

const (
	// PolicyFirstFit places each student in the first ranked club with room.
	// There is no waitlist.
	PolicyFirstFit Policy = "first-fit"

	// PolicyAllRanked places each student in every ranked club with room and
	// waitlists them on the ranked clubs that were full.
	PolicyAllRanked Policy = "all-ranked"
)

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFirstFit, PolicyAllRanked:
		return p, nil
	default:
		return "", fmt.Errorf("unknown assignment policy %q", s)
	}
}

// Engine partitions submissions into club rosters and waitlists.
// It holds no state between calls.
type Engine struct {
	catalog *catalog.Catalog
	policy  Policy
	source  Source
}

// Option configures the engine
type Option func(*Engine)

// WithPolicy sets the placement policy
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithSource sets the random source used for both shuffles
func WithSource(src Source) Option {
	return func(e *Engine) {
		e.source = src
	}
}

// NewEngine creates an engine over an immutable catalog.
// Defaults to PolicyAllRanked and the package-level generator.
func NewEngine(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog: cat,
		policy:  PolicyAllRanked,
		source:  globalSource{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Policy returns the configured policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Assign runs one full placement pass. It returns nil when there is nothing to
// assign so callers leave previously stored results untouched.
func (e *Engine) Assign(submissions []*models.Submission) *Result {
	if len(submissions) == 0 {
		return nil
	}

	p := newPlacement(e.catalog, e.policy)

	order := make([]*models.Submission, len(submissions))
	copy(order, submissions)
	Shuffle(e.source, order)

	var unassigned []*models.Submission
	for _, sub := range order {
		var placed int
		switch e.policy {
		case PolicyFirstFit:
			placed = p.placeFirstFit(sub)
		default:
			placed = p.placeAllRanked(sub)
		}

		if placed == 0 {
			unassigned = append(unassigned, sub)
		}
	}

	for _, sub := range unassigned {
		if !p.placeFallback(sub, e.catalog.ClubsForGrade(sub.Grade), e.source) {
			p.result.Unplaced = append(p.result.Unplaced, sub.Key())
		}
	}

	return p.result
}

// placement is the capacity bookkeeping shared by both policies
type placement struct {
	result *Result
}

func newPlacement(cat *catalog.Catalog, policy Policy) *placement {
	clubs := cat.AllClubs()

	r := &Result{
		Policy:      policy,
		Assignments: make(map[string]*models.Assignment, len(clubs)),
		Waitlists:   make(map[string]*models.Waitlist),
		order:       make([]string, 0, len(clubs)),
	}

	for _, club := range clubs {
		r.order = append(r.order, club.ID)
		r.Assignments[club.ID] = models.NewAssignment(club)
		if policy == PolicyAllRanked {
			r.Waitlists[club.ID] = models.NewWaitlist(club)
		}
	}

	return &placement{result: r}
}

// placeFirstFit assigns the student to the first ranked club with room
func (p *placement) placeFirstFit(sub *models.Submission) int {
	for _, ranking := range sub.SortedRankings() {
		roster, ok := p.result.Assignments[ranking.ClubID]
		if !ok {
			continue
		}

		if roster.HasRoom() {
			roster.Students = append(roster.Students, models.NewAssignedStudent(sub, ranking.Rank))
			return 1
		}
	}

	return 0
}

// placeAllRanked assigns the student to every ranked club with room and
// waitlists them everywhere else they ranked
func (p *placement) placeAllRanked(sub *models.Submission) int {
	placed := 0
	seen := make(map[string]bool, len(sub.Rankings))

	for _, ranking := range sub.SortedRankings() {
		if seen[ranking.ClubID] {
			continue
		}
		seen[ranking.ClubID] = true

		roster, ok := p.result.Assignments[ranking.ClubID]
		if !ok {
			continue
		}

		entry := models.NewAssignedStudent(sub, ranking.Rank)
		if roster.HasRoom() {
			roster.Students = append(roster.Students, entry)
			placed++
			continue
		}

		waitlist := p.result.Waitlists[ranking.ClubID]
		waitlist.Students = append(waitlist.Students, entry)
	}

	return placed
}

// placeFallback puts the student in the first grade club with room,
// trying clubs in a freshly shuffled order
func (p *placement) placeFallback(sub *models.Submission, gradeClubs []models.Club, src Source) bool {
	Shuffle(src, gradeClubs)

	for _, club := range gradeClubs {
		roster := p.result.Assignments[club.ID]
		if roster != nil && roster.HasRoom() {
			roster.Students = append(roster.Students, models.NewAssignedStudent(sub, models.FallbackPreference))
			return true
		}
	}

	return false
}
