package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGradeJSON(t *testing.T) {
	var sub Submission
	require.NoError(t, json.Unmarshal([]byte(`{"studentName":"Ada","grade":"4"}`), &sub))
	require.Equal(t, Grade(4), sub.Grade)

	require.NoError(t, json.Unmarshal([]byte(`{"grade":5}`), &sub))
	require.Equal(t, Grade(5), sub.Grade)

	require.Error(t, json.Unmarshal([]byte(`{"grade":"fourth"}`), &sub))

	out, err := json.Marshal(AssignedStudent{Name: "Ada", Grade: 4, Preference: 1})
	require.NoError(t, err)
	require.Contains(t, string(out), `"grade":4`)
}

func TestNormalizeStudentName(t *testing.T) {
	tests := map[string]string{
		"Ada Lovelace":    "adalovelace",
		"  O'Brien-Smith": "obriensmith",
		"Zoë 2nd":         "zo2nd",
		"!!!":             "",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeStudentName(in), in)
	}
}

func TestSubmissionKey(t *testing.T) {
	sub := Submission{StudentName: "Ada Lovelace", Grade: 4}
	key := sub.Key()

	require.Equal(t, "grade4", key.PartitionKey)
	require.Equal(t, "adalovelace", key.RowKey)
	require.Equal(t, key, NewSubmissionKey("ADA  lovelace!", 4))
	require.NotEqual(t, key, NewSubmissionKey("Ada Lovelace", 5))
}

func TestSortedRankings(t *testing.T) {
	sub := Submission{Rankings: []Ranking{
		{ClubID: "c", Rank: 3},
		{ClubID: "a", Rank: 1},
		{ClubID: "x", Rank: 2},
		{ClubID: "y", Rank: 2},
	}}

	sorted := sub.SortedRankings()

	require.Equal(t, []string{"a", "x", "y", "c"}, []string{sorted[0].ClubID, sorted[1].ClubID, sorted[2].ClubID, sorted[3].ClubID})
	require.Equal(t, "c", sub.Rankings[0].ClubID, "input must not be reordered")
}

func TestAssignmentCapacity(t *testing.T) {
	a := NewAssignment(Club{ID: "yoga-4", Name: "Yoga", Capacity: 1})
	require.True(t, a.HasRoom())

	a.Students = append(a.Students, AssignedStudent{Name: "Ada", Grade: 4, Preference: FallbackPreference})
	require.False(t, a.HasRoom())
	s, ok := a.Find(" ada ", 4)
	require.True(t, ok)
	require.Equal(t, "Ada", s.Name)
	_, ok = a.Find("Ada", 5)
	require.False(t, ok)
	require.True(t, a.Students[0].IsFallback())
}
