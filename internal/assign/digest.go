package assign

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/terra-clan/club-registration/internal/models"
)

// Digest fingerprints a submission set independent of its order.
// Two snapshots with the same digest produce statistically identical runs.
func Digest(submissions []*models.Submission) string {
	lines := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		lines = append(lines, canonical(sub))
	}
	sort.Strings(lines)

	h := xxh3.New()
	for _, line := range lines {
		_, _ = h.WriteString(line)
		_, _ = h.WriteString("\n")
	}

	return strconv.FormatUint(h.Sum64(), 16)
}

func canonical(sub *models.Submission) string {
	var b strings.Builder
	key := sub.Key()
	b.WriteString(key.String())
	b.WriteByte('|')
	b.WriteString(sub.StudentName)
	b.WriteByte('|')
	b.WriteString(sub.Email)
	b.WriteByte('|')
	b.WriteString(sub.ParentName)
	b.WriteByte('|')
	b.WriteString(sub.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	for _, r := range sub.Rankings {
		b.WriteByte('|')
		b.WriteString(r.ClubID)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(r.Rank))
	}
	return b.String()
}
