package models

import (
	"time"
)

// FallbackPreference marks a placement that was not one of the student's ranked choices
const FallbackPreference = 99

// AssignedStudent is a roster entry
type AssignedStudent struct {
	Name       string    `json:"name"`
	Grade      Grade     `json:"grade"`
	Preference int       `json:"preference"`
	Email      string    `json:"email"`
	Parent     string    `json:"parent"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsFallback reports whether the student was placed here without ranking the club
func (s AssignedStudent) IsFallback() bool {
	return s.Preference == FallbackPreference
}

// WaitlistedStudent has the same shape as a roster entry
type WaitlistedStudent = AssignedStudent

// NewAssignedStudent builds a roster entry from a submission
func NewAssignedStudent(sub *Submission, preference int) AssignedStudent {
	return AssignedStudent{
		Name:       sub.StudentName,
		Grade:      sub.Grade,
		Preference: preference,
		Email:      sub.Email,
		Parent:     sub.ParentName,
		Timestamp:  sub.Timestamp,
	}
}

// Assignment is a club's roster of admitted students
type Assignment struct {
	ClubID      string            `json:"clubId"`
	ClubName    string            `json:"clubName"`
	Capacity    int               `json:"capacity"`
	Students    []AssignedStudent `json:"students"`
	RunID       string            `json:"runId,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// NewAssignment creates an empty roster for a club
func NewAssignment(club Club) *Assignment {
	return &Assignment{
		ClubID:   club.ID,
		ClubName: club.Name,
		Capacity: club.Capacity,
		Students: []AssignedStudent{},
	}
}

// HasRoom reports whether another student fits
func (a *Assignment) HasRoom() bool {
	return len(a.Students) < a.Capacity
}

// Find returns the roster entry for a student, matched on normalized name and grade
func (a *Assignment) Find(name string, grade Grade) (AssignedStudent, bool) {
	key := NewSubmissionKey(name, grade)
	for _, s := range a.Students {
		if NewSubmissionKey(s.Name, s.Grade) == key {
			return s, true
		}
	}
	return AssignedStudent{}, false
}

// Waitlist lists students who ranked a club that was already full
type Waitlist struct {
	ClubID      string              `json:"clubId"`
	ClubName    string              `json:"clubName"`
	Students    []WaitlistedStudent `json:"students"`
	RunID       string              `json:"runId,omitempty"`
	LastUpdated time.Time           `json:"lastUpdated"`
}

// NewWaitlist creates an empty waitlist for a club
func NewWaitlist(club Club) *Waitlist {
	return &Waitlist{
		ClubID:   club.ID,
		ClubName: club.Name,
		Students: []WaitlistedStudent{},
	}
}

// OverwriteClub is one entry of an administrative bulk overwrite, keyed by club id
type OverwriteClub struct {
	Name     string            `json:"name"`
	Capacity int               `json:"capacity"`
	Students []AssignedStudent `json:"students"`
}

// OverwriteRequest replaces stored assignments without running the engine
type OverwriteRequest struct {
	Type        string                   `json:"type,omitempty"`
	Assignments map[string]OverwriteClub `json:"assignments"`
}

// RunState records which submission snapshot the stored results reflect.
// Manual is set when an administrator wrote or cleared results directly.
type RunState struct {
	RunID     string    `json:"runId"`
	Digest    string    `json:"digest"`
	Manual    bool      `json:"manual"`
	UpdatedAt time.Time `json:"updatedAt"`
}
