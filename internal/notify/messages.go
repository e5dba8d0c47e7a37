package notify

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/club-registration/internal/models"
)

// Namer resolves a club id to its display name
type Namer interface {
	DisplayName(clubID string) string
}

// Confirmation builds the receipt sent after a registration is recorded
func Confirmation(sub *models.Submission, names Namer) *models.Notification {
	rankings := sub.SortedRankings()
	clubs := make([]models.ClubChoice, 0, len(rankings))
	for _, r := range rankings {
		clubs = append(clubs, models.ClubChoice{
			ClubID:   r.ClubID,
			ClubName: names.DisplayName(r.ClubID),
			Choice:   r.Rank,
		})
	}

	return newNotification(models.NotificationConfirmation, sub, clubs)
}

// Results builds the final assignment message for a student. Roster entries
// are matched on normalized name and grade, the submission key. With no seat
// anywhere a waitlist message is built.
func Results(sub *models.Submission, assignments []*models.Assignment) *models.Notification {
	var clubs []models.ClubChoice
	for _, a := range assignments {
		s, ok := a.Find(sub.StudentName, sub.Grade)
		if !ok {
			continue
		}
		clubs = append(clubs, models.ClubChoice{
			ClubID:   a.ClubID,
			ClubName: a.ClubName,
			Choice:   s.Preference,
			Fallback: s.IsFallback(),
		})
	}

	if len(clubs) == 0 {
		return Waitlist(sub)
	}

	sort.SliceStable(clubs, func(i, j int) bool {
		return clubs[i].Choice < clubs[j].Choice
	})

	return newNotification(models.NotificationResults, sub, clubs)
}

// Waitlist builds the message for a student who received no seat
func Waitlist(sub *models.Submission) *models.Notification {
	return newNotification(models.NotificationWaitlist, sub, []models.ClubChoice{})
}

func newNotification(kind models.NotificationKind, sub *models.Submission, clubs []models.ClubChoice) *models.Notification {
	return &models.Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		To:          sub.Email,
		ParentName:  sub.ParentName,
		StudentName: sub.StudentName,
		Grade:       sub.Grade,
		Clubs:       clubs,
		CreatedAt:   time.Now().UTC(),
	}
}
