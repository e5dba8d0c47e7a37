package models

import (
	"sort"
	"strings"
	"time"
)

// Ranking is one ranked club choice; lower rank means more preferred
type Ranking struct {
	ClubID string `json:"clubId" validate:"required"`
	Rank   int    `json:"rank" validate:"min=1,max=98"`
}

// Submission is one student's registration with ranked club preferences
type Submission struct {
	StudentName string    `json:"studentName"`
	Grade       Grade     `json:"grade"`
	ParentName  string    `json:"parentName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Rankings    []Ranking `json:"rankings"`
	Timestamp   time.Time `json:"timestamp"`
}

// Key returns the uniqueness key of the submission
func (s *Submission) Key() SubmissionKey {
	return NewSubmissionKey(s.StudentName, s.Grade)
}

// SortedRankings returns a copy of the rankings ordered by ascending rank.
// Equal ranks keep their submitted order.
func (s *Submission) SortedRankings() []Ranking {
	sorted := make([]Ranking, len(s.Rankings))
	copy(sorted, s.Rankings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank < sorted[j].Rank
	})
	return sorted
}

// SubmissionKey identifies a student's single submission
type SubmissionKey struct {
	PartitionKey string `json:"partitionKey"`
	RowKey       string `json:"rowKey"`
}

// NewSubmissionKey builds the key from a student name and grade
func NewSubmissionKey(studentName string, grade Grade) SubmissionKey {
	return SubmissionKey{
		PartitionKey: grade.PartitionKey(),
		RowKey:       NormalizeStudentName(studentName),
	}
}

// String renders the key as partition/row
func (k SubmissionKey) String() string {
	return k.PartitionKey + "/" + k.RowKey
}

// NormalizeStudentName lowercases the name and drops everything outside [a-z0-9]
func NormalizeStudentName(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SubmitRequest represents a registration request
type SubmitRequest struct {
	StudentName string    `json:"studentName" validate:"required,max=200"`
	Grade       Grade     `json:"grade" validate:"required,gt=0"`
	ParentName  string    `json:"parentName" validate:"required,max=200"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone" validate:"max=50"`
	Rankings    []Ranking `json:"rankings" validate:"required,min=1,dive"`
}
