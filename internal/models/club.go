package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Grade is a school grade level (4 or 5 in the default catalog)
type Grade int

// UnmarshalJSON accepts both 4 and "4", since registration forms post grades as strings
func (g *Grade) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*g = 0
		return nil
	}

	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}

	if raw == "" {
		*g = 0
		return nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid grade %s: %w", string(data), err)
	}

	*g = Grade(value)
	return nil
}

// MarshalJSON always emits the numeric form
func (g Grade) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(g))
}

// String returns the grade as a plain number
func (g Grade) String() string {
	return strconv.Itoa(int(g))
}

// PartitionKey returns the storage partition for submissions of this grade
func (g Grade) PartitionKey() string {
	return "grade" + g.String()
}

// ParseGrade parses a grade from a query/path parameter
func ParseGrade(s string) (Grade, error) {
	value, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid grade %q: %w", s, err)
	}
	return Grade(value), nil
}

// Club represents one seat-limited club offered to a grade.
// A club id listed under several grades shares a single capacity.
type Club struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Capacity int    `yaml:"capacity" json:"capacity"`
	Grade    Grade  `yaml:"-" json:"grade"`
}
