package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terra-clan/club-registration/internal/models"
	"github.com/terra-clan/club-registration/internal/registration"
)

const legacyPath = "/api/club-registration"

func decodePlain(t *testing.T, body []byte) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestLegacyRegistrationFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, legacyPath,
		submitBody("Ada Lovelace", 4, models.Ranking{ClubID: "yoga-4", Rank: 1}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Registration submitted successfully"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, legacyPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs struct {
		Submissions []models.Submission `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs.Submissions, 1)

	rec = f.do(t, http.MethodGet, legacyPath+"?type=assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decodePlain(t, rec.Body.Bytes()), "assignments")

	rec = f.do(t, http.MethodGet, legacyPath+"?type=waitlists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decodePlain(t, rec.Body.Bytes()), "waitlists")

	rec = f.do(t, http.MethodDelete, legacyPath+"?studentName=Ada%20Lovelace&grade=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Submission deleted successfully"}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, legacyPath+"?studentName=Ada%20Lovelace&grade=4", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Submission not found"}`, rec.Body.String())
}

func TestLegacySaveAssignments(t *testing.T) {
	f := newFixture(t)

	body := map[string]interface{}{
		"type": "assignment",
		"assignments": map[string]models.OverwriteClub{
			"chess-4": {Name: "Chess", Capacity: 5, Students: []models.AssignedStudent{{Name: "Grace", Grade: 4, Preference: 2}}},
		},
	}
	rec := f.do(t, http.MethodPost, legacyPath, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Assignments saved"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, legacyPath+"?type=assignments", nil)
	var list struct {
		Assignments []models.Assignment `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Assignments, 1)
	require.Equal(t, "Grace", list.Assignments[0].Students[0].Name)

	rec = f.do(t, http.MethodDelete, legacyPath+"?type=assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Assignments cleared"}`, rec.Body.String())
}

func TestLegacyClearSubmissions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, legacyPath+"?type=submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"All submissions cleared"}`, rec.Body.String())
}

func TestLegacyErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, legacyPath, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Invalid delete request"}`, rec.Body.String())

	rec = f.do(t, http.MethodPatch, legacyPath, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())

	rec = f.do(t, http.MethodOptions, legacyPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, legacyPath, submitBody("Ada", 4))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodePlain(t, rec.Body.Bytes()), "details")
}

func TestLegacyRegistrationClosed(t *testing.T) {
	f := newFixture(t, registration.WithDeadline(time.Now().Add(-time.Hour)))

	rec := f.do(t, http.MethodPost, legacyPath,
		submitBody("Ada", 4, models.Ranking{ClubID: "yoga-4", Rank: 1}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Registration is closed"}`, rec.Body.String())
}
