package assign

import (
	"fmt"
	rand "math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terra-clan/club-registration/internal/catalog"
	"github.com/terra-clan/club-registration/internal/models"
)

// identitySource never swaps, so every shuffle keeps its input order
type identitySource struct{}

func (identitySource) IntN(n int) int { return n - 1 }

// zeroSource always swaps with the head
type zeroSource struct{}

func (zeroSource) IntN(int) int { return 0 }

func rank(clubID string, r int) models.Ranking {
	return models.Ranking{ClubID: clubID, Rank: r}
}

func submission(name string, grade models.Grade, rankings ...models.Ranking) *models.Submission {
	return &models.Submission{
		StudentName: name,
		Grade:       grade,
		ParentName:  "Parent of " + name,
		Email:       name + "@example.com",
		Rankings:    rankings,
		Timestamp:   time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
	}
}

func rosterNames(a *models.Assignment) []string {
	names := make([]string, 0, len(a.Students))
	for _, s := range a.Students {
		names = append(names, s.Name)
	}
	return names
}

func findStudent(students []models.AssignedStudent, name string) (models.AssignedStudent, bool) {
	for _, s := range students {
		if s.Name == name {
			return s, true
		}
	}
	return models.AssignedStudent{}, false
}

func TestEngine_EmptyInput(t *testing.T) {
	cat := catalog.Default()

	for _, policy := range []Policy{PolicyFirstFit, PolicyAllRanked} {
		engine := NewEngine(cat, WithPolicy(policy), WithSource(identitySource{}))
		require.Nil(t, engine.Assign(nil))
		require.Nil(t, engine.Assign([]*models.Submission{}))
	}
}

func TestEngine_SingleSeatContention(t *testing.T) {
	yogaOnly := catalog.MustNew(models.Club{ID: "yoga-4", Name: "Yoga", Capacity: 1, Grade: 4})
	withChess := catalog.MustNew(
		models.Club{ID: "yoga-4", Name: "Yoga", Capacity: 1, Grade: 4},
		models.Club{ID: "chess-4", Name: "Chess", Capacity: 5, Grade: 4},
	)

	for _, src := range []Source{identitySource{}, zeroSource{}} {
		subs := []*models.Submission{
			submission("Ada", 4, rank("yoga-4", 1)),
			submission("Ben", 4, rank("yoga-4", 1)),
		}

		t.Run(fmt.Sprintf("first-fit without alternatives/%T", src), func(t *testing.T) {
			result := NewEngine(yogaOnly, WithPolicy(PolicyFirstFit), WithSource(src)).Assign(subs)

			yoga := result.Assignments["yoga-4"]
			require.Len(t, yoga.Students, 1)
			require.Equal(t, 1, yoga.Students[0].Preference)
			require.Empty(t, result.Waitlists)
			require.Len(t, result.Unplaced, 1)
		})

		t.Run(fmt.Sprintf("first-fit with fallback/%T", src), func(t *testing.T) {
			result := NewEngine(withChess, WithPolicy(PolicyFirstFit), WithSource(src)).Assign(subs)

			yoga := result.Assignments["yoga-4"]
			chess := result.Assignments["chess-4"]
			require.Len(t, yoga.Students, 1)
			require.Len(t, chess.Students, 1)
			require.Equal(t, 1, yoga.Students[0].Preference)
			require.Equal(t, models.FallbackPreference, chess.Students[0].Preference)
			require.NotEqual(t, yoga.Students[0].Name, chess.Students[0].Name)
			require.Empty(t, result.Unplaced)
		})

		t.Run(fmt.Sprintf("all-ranked waitlists then falls back/%T", src), func(t *testing.T) {
			result := NewEngine(withChess, WithPolicy(PolicyAllRanked), WithSource(src)).Assign(subs)

			yoga := result.Assignments["yoga-4"]
			chess := result.Assignments["chess-4"]
			require.Len(t, yoga.Students, 1)
			require.Len(t, chess.Students, 1)

			loser := chess.Students[0].Name
			require.NotEqual(t, yoga.Students[0].Name, loser)
			require.Equal(t, models.FallbackPreference, chess.Students[0].Preference)

			waitlist := result.Waitlists["yoga-4"]
			require.Len(t, waitlist.Students, 1)
			require.Equal(t, loser, waitlist.Students[0].Name)
			require.Equal(t, 1, waitlist.Students[0].Preference)
			require.Empty(t, result.Waitlists["chess-4"].Students)
		})
	}
}

func TestEngine_ShuffleOrderDecidesWinner(t *testing.T) {
	cat := catalog.MustNew(models.Club{ID: "yoga-4", Name: "Yoga", Capacity: 1, Grade: 4})
	subs := []*models.Submission{
		submission("Ada", 4, rank("yoga-4", 1)),
		submission("Ben", 4, rank("yoga-4", 1)),
	}

	kept := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(identitySource{})).Assign(subs)
	require.Equal(t, []string{"Ada"}, rosterNames(kept.Assignments["yoga-4"]))

	swapped := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(zeroSource{})).Assign(subs)
	require.Equal(t, []string{"Ben"}, rosterNames(swapped.Assignments["yoga-4"]))

	// caller's slice is not reordered
	require.Equal(t, "Ada", subs[0].StudentName)
	require.Equal(t, "Ben", subs[1].StudentName)
}

func TestEngine_UnknownClubIsIgnored(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "yoga-4", Name: "Yoga", Capacity: 2, Grade: 4},
		models.Club{ID: "chess-4", Name: "Chess", Capacity: 2, Grade: 4},
	)
	subs := []*models.Submission{submission("Ada", 4, rank("foo", 1))}

	for _, policy := range []Policy{PolicyFirstFit, PolicyAllRanked} {
		t.Run(string(policy), func(t *testing.T) {
			result := NewEngine(cat, WithPolicy(policy), WithSource(identitySource{})).Assign(subs)

			// identity shuffle tries grade clubs in catalog order
			yoga := result.Assignments["yoga-4"]
			require.Equal(t, []string{"Ada"}, rosterNames(yoga))
			require.Equal(t, models.FallbackPreference, yoga.Students[0].Preference)
			require.Empty(t, result.Assignments["chess-4"].Students)
			require.NotContains(t, result.Assignments, "foo")
			for _, w := range result.Waitlists {
				require.Empty(t, w.Students)
			}
		})
	}
}

func TestEngine_FirstFitStopsAtFirstMatch(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "a", Name: "A", Capacity: 1, Grade: 4},
		models.Club{ID: "b", Name: "B", Capacity: 1, Grade: 4},
		models.Club{ID: "c", Name: "C", Capacity: 1, Grade: 4},
	)
	subs := []*models.Submission{
		submission("Ada", 4, rank("b", 2), rank("a", 1), rank("c", 3)),
		submission("Ben", 4, rank("a", 1), rank("c", 5)),
	}

	result := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(identitySource{})).Assign(subs)

	require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["a"]))
	require.Empty(t, result.Assignments["b"].Students)
	require.Equal(t, []string{"Ben"}, rosterNames(result.Assignments["c"]))
	require.Equal(t, 5, result.Assignments["c"].Students[0].Preference)
}

func TestEngine_AllRankedAssignsEveryOpenChoice(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "a", Name: "A", Capacity: 1, Grade: 4},
		models.Club{ID: "b", Name: "B", Capacity: 1, Grade: 4},
		models.Club{ID: "c", Name: "C", Capacity: 5, Grade: 4},
	)
	subs := []*models.Submission{
		submission("Ada", 4, rank("a", 1)),
		submission("Ben", 4, rank("a", 1), rank("b", 2)),
	}

	result := NewEngine(cat, WithPolicy(PolicyAllRanked), WithSource(identitySource{})).Assign(subs)

	require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["a"]))
	require.Equal(t, []string{"Ben"}, rosterNames(result.Assignments["b"]))
	require.Equal(t, 2, result.Assignments["b"].Students[0].Preference)

	// Ben holds a seat, so being waitlisted on "a" never triggers fallback
	require.Empty(t, result.Assignments["c"].Students)
	waitlisted, ok := findStudent(result.Waitlists["a"].Students, "Ben")
	require.True(t, ok)
	require.Equal(t, 1, waitlisted.Preference)
}

func TestEngine_AllRankedMultipleSeats(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "a", Name: "A", Capacity: 2, Grade: 4},
		models.Club{ID: "b", Name: "B", Capacity: 2, Grade: 4},
	)
	subs := []*models.Submission{
		submission("Ada", 4, rank("a", 1), rank("b", 2), rank("a", 3)),
	}

	result := NewEngine(cat, WithPolicy(PolicyAllRanked), WithSource(identitySource{})).Assign(subs)

	// repeated club ids count once, at their best rank
	require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["a"]))
	require.Equal(t, 1, result.Assignments["a"].Students[0].Preference)
	require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["b"]))
}

func TestEngine_SharedCapacityAcrossGrades(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "art", Name: "Art", Capacity: 1, Grade: 4},
		models.Club{ID: "art", Name: "Art", Capacity: 1, Grade: 5},
	)
	subs := []*models.Submission{
		submission("Ada", 4, rank("art", 1)),
		submission("Ben", 5, rank("art", 1)),
	}

	result := NewEngine(cat, WithPolicy(PolicyAllRanked), WithSource(identitySource{})).Assign(subs)

	require.Len(t, result.Assignments, 1)
	require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["art"]))
	require.Equal(t, []string{"Ben"}, []string{result.Waitlists["art"].Students[0].Name})
	require.Equal(t, []models.SubmissionKey{models.NewSubmissionKey("Ben", 5)}, result.Unplaced)
}

func TestEngine_UnknownGrade(t *testing.T) {
	cat := catalog.MustNew(models.Club{ID: "a", Name: "A", Capacity: 1, Grade: 4})
	subs := []*models.Submission{
		submission("Ada", 4, rank("a", 1)),
		submission("Zed", 6, rank("a", 1)),
	}

	t.Run("first-fit leaves the student out entirely", func(t *testing.T) {
		result := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(identitySource{})).Assign(subs)

		require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["a"]))
		require.Equal(t, []models.SubmissionKey{models.NewSubmissionKey("Zed", 6)}, result.Unplaced)
	})

	t.Run("all-ranked keeps the waitlist entry from the ranked pass", func(t *testing.T) {
		result := NewEngine(cat, WithPolicy(PolicyAllRanked), WithSource(identitySource{})).Assign(subs)

		require.Equal(t, []string{"Ada"}, rosterNames(result.Assignments["a"]))
		_, ok := findStudent(result.Waitlists["a"].Students, "Zed")
		require.True(t, ok)
		require.Len(t, result.Unplaced, 1)
	})

	t.Run("ranked clubs are looked up globally", func(t *testing.T) {
		only := []*models.Submission{submission("Zed", 6, rank("a", 1))}
		result := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(identitySource{})).Assign(only)

		require.Equal(t, []string{"Zed"}, rosterNames(result.Assignments["a"]))
	})
}

func TestEngine_Determinism(t *testing.T) {
	cat := catalog.Default()
	subs := generateSubmissions(rand.New(rand.NewPCG(7, 11)), cat, 180)

	for _, policy := range []Policy{PolicyFirstFit, PolicyAllRanked} {
		t.Run(string(policy), func(t *testing.T) {
			first := NewEngine(cat, WithPolicy(policy), WithSource(NewSource(42))).Assign(subs)
			second := NewEngine(cat, WithPolicy(policy), WithSource(NewSource(42))).Assign(subs)

			require.Equal(t, first.AssignmentList(), second.AssignmentList())
			require.Equal(t, first.WaitlistList(), second.WaitlistList())
			require.Equal(t, first.Unplaced, second.Unplaced)
		})
	}
}

func TestEngine_Invariants(t *testing.T) {
	cat := catalog.MustNew(
		models.Club{ID: "a", Name: "A", Capacity: 3, Grade: 4},
		models.Club{ID: "b", Name: "B", Capacity: 2, Grade: 4},
		models.Club{ID: "shared", Name: "Shared", Capacity: 2, Grade: 4},
		models.Club{ID: "c", Name: "C", Capacity: 3, Grade: 5},
		models.Club{ID: "shared", Name: "Shared", Capacity: 2, Grade: 5},
	)

	for seed := uint64(1); seed <= 25; seed++ {
		subs := generateSubmissions(rand.New(rand.NewPCG(seed, seed*31)), cat, 24)
		byName := make(map[string]*models.Submission, len(subs))
		for _, s := range subs {
			byName[s.StudentName] = s
		}

		t.Run(fmt.Sprintf("first-fit/seed-%d", seed), func(t *testing.T) {
			result := NewEngine(cat, WithPolicy(PolicyFirstFit), WithSource(NewSource(seed))).Assign(subs)

			seats := make(map[string]int)
			for clubID, a := range result.Assignments {
				club, _ := cat.Get(clubID)
				require.LessOrEqual(t, len(a.Students), club.Capacity)

				for _, s := range a.Students {
					seats[s.Name]++
					if s.Preference != models.FallbackPreference {
						require.Equal(t, bestRank(byName[s.Name], clubID), s.Preference)
					}
				}
			}
			for name, n := range seats {
				require.Equal(t, 1, n, "student %s holds %d seats", name, n)
			}
			require.Empty(t, result.Waitlists)
		})

		t.Run(fmt.Sprintf("all-ranked/seed-%d", seed), func(t *testing.T) {
			result := NewEngine(cat, WithPolicy(PolicyAllRanked), WithSource(NewSource(seed))).Assign(subs)

			seats := make(map[string]int)
			fallback := make(map[string]bool)
			for clubID, a := range result.Assignments {
				club, _ := cat.Get(clubID)
				require.LessOrEqual(t, len(a.Students), club.Capacity)

				for _, s := range a.Students {
					seats[s.Name]++
					if s.IsFallback() {
						fallback[s.Name] = true
					}
				}

				for _, w := range result.Waitlists[clubID].Students {
					_, seated := a.Find(w.Name, w.Grade)
					require.False(t, seated, "%s both seated and waitlisted on %s", w.Name, clubID)
					require.Equal(t, bestRank(byName[w.Name], clubID), w.Preference)
				}
			}

			for name, n := range seats {
				require.LessOrEqual(t, n, len(byName[name].Rankings))
				if fallback[name] {
					require.Equal(t, 1, n, "fallback student %s holds ranked seats", name)
				}
			}
		})
	}
}

func bestRank(sub *models.Submission, clubID string) int {
	best := -1
	for _, r := range sub.SortedRankings() {
		if r.ClubID == clubID {
			return r.Rank
		}
	}
	return best
}

func generateSubmissions(r *rand.Rand, cat *catalog.Catalog, n int) []*models.Submission {
	grades := cat.Grades()
	subs := make([]*models.Submission, 0, n)

	for i := 0; i < n; i++ {
		grade := grades[r.IntN(len(grades))]
		clubs := cat.ClubsForGrade(grade)
		r.Shuffle(len(clubs), func(a, b int) { clubs[a], clubs[b] = clubs[b], clubs[a] })

		picks := 1 + r.IntN(len(clubs))
		rankings := make([]models.Ranking, 0, picks)
		for j := 0; j < picks; j++ {
			rankings = append(rankings, rank(clubs[j].ID, j+1))
		}

		subs = append(subs, submission(fmt.Sprintf("student-%03d", i), grade, rankings...))
	}

	return subs
}
