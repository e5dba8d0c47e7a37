package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/club-registration/internal/models"
)

// startEmbeddedNATS runs an in-process server on a random port
func startEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:  "127.0.0.1",
		Port:  -1,
		NoLog: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded nats server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return nc
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*models.Notification
	at   []time.Time
	fail map[string]error
}

func (s *recordingSender) Send(ctx context.Context, msg *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.StudentName]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	s.at = append(s.at, time.Now())
	return nil
}

func (s *recordingSender) Close() error { return nil }

type names map[string]string

func (n names) DisplayName(id string) string {
	if v, ok := n[id]; ok {
		return v
	}
	return id
}

func submission(name string) *models.Submission {
	return &models.Submission{
		StudentName: name,
		Grade:       4,
		ParentName:  "Parent of " + name,
		Email:       name + "@example.com",
		Rankings:    []models.Ranking{{ClubID: "art-4", Rank: 2}, {ClubID: "yoga-4", Rank: 1}},
	}
}

func TestConfirmation(t *testing.T) {
	msg := Confirmation(submission("ada"), names{"yoga-4": "Yoga Club - 4th Grade"})

	require.Equal(t, models.NotificationConfirmation, msg.Kind)
	require.Equal(t, "ada@example.com", msg.To)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, []models.ClubChoice{
		{ClubID: "yoga-4", ClubName: "Yoga Club - 4th Grade", Choice: 1},
		{ClubID: "art-4", ClubName: "art-4", Choice: 2},
	}, msg.Clubs)
}

func TestResults(t *testing.T) {
	assignments := []*models.Assignment{
		{ClubID: "yard-games-4", ClubName: "Yard Games", Students: []models.AssignedStudent{{Name: "ada", Grade: 4, Preference: 99}}},
		{ClubID: "yoga-4", ClubName: "Yoga", Students: []models.AssignedStudent{{Name: "ben", Grade: 4, Preference: 1}, {Name: "ada", Grade: 4, Preference: 1}}},
		{ClubID: "art-4", ClubName: "Art", Students: []models.AssignedStudent{{Name: "ben", Grade: 4, Preference: 2}}},
	}

	msg := Results(submission("ada"), assignments)
	require.Equal(t, models.NotificationResults, msg.Kind)
	require.Len(t, msg.Clubs, 2)
	require.Equal(t, "yoga-4", msg.Clubs[0].ClubID)
	require.Equal(t, "yard-games-4", msg.Clubs[1].ClubID)
	require.True(t, msg.Clubs[1].Fallback)

	msg = Results(submission("cy"), assignments)
	require.Equal(t, models.NotificationWaitlist, msg.Kind)
	require.Empty(t, msg.Clubs)
}

func TestResultsMatchesGrade(t *testing.T) {
	assignments := []*models.Assignment{
		{ClubID: "yoga-4", ClubName: "Yoga", Students: []models.AssignedStudent{{Name: "Sam Lee", Grade: 4, Preference: 1}}},
		{ClubID: "robotics-5", ClubName: "Robotics", Students: []models.AssignedStudent{{Name: "SAM LEE", Grade: 5, Preference: 2}}},
	}

	fourth := submission("Sam Lee")
	msg := Results(fourth, assignments)
	require.Equal(t, models.NotificationResults, msg.Kind)
	require.Len(t, msg.Clubs, 1)
	require.Equal(t, "yoga-4", msg.Clubs[0].ClubID)

	fifth := submission("sam lee")
	fifth.Grade = 5
	msg = Results(fifth, assignments)
	require.Len(t, msg.Clubs, 1)
	require.Equal(t, "robotics-5", msg.Clubs[0].ClubID)

	sixth := submission("Sam Lee")
	sixth.Grade = 6
	msg = Results(sixth, assignments)
	require.Equal(t, models.NotificationWaitlist, msg.Kind)
}

func TestNotifierUnconfigured(t *testing.T) {
	n := NewNotifier(nil, 0)
	require.False(t, n.Configured())

	out := n.Send(context.Background(), Waitlist(submission("ada")))
	require.False(t, out.Sent)
	require.Equal(t, ReasonNotConfigured, out.Reason)

	report := n.SendAll(context.Background(), []*models.Notification{Waitlist(submission("ada")), Waitlist(submission("ben"))})
	require.False(t, report.Success)
	require.Equal(t, 2, report.Total)
	require.Equal(t, 2, report.Failed)
	require.Equal(t, ReasonNotConfigured, report.Details.Failed[1].Reason)
	require.NoError(t, n.Close())
}

func TestNotifierSendAll(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{"ben": errors.New("mailbox full")}}
	n := NewNotifier(sender, 20*time.Millisecond)

	msgs := []*models.Notification{
		Waitlist(submission("ada")),
		Waitlist(submission("ben")),
		Waitlist(submission("cy")),
	}
	report := n.SendAll(context.Background(), msgs)

	require.False(t, report.Success)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.Sent)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{"ada", "cy"}, report.Details.Sent)
	require.Equal(t, "ben", report.Details.Failed[0].Student)
	require.Contains(t, report.Details.Failed[0].Reason, "mailbox full")

	// ada, ben (failed attempt), cy: cy waits two gaps after ada
	require.GreaterOrEqual(t, sender.at[1].Sub(sender.at[0]), 35*time.Millisecond)
}

func TestNotifierCancelled(t *testing.T) {
	n := NewNotifier(&recordingSender{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, n.Send(ctx, Waitlist(submission("ada"))).Sent)

	cancel()
	out := n.Send(ctx, Waitlist(submission("ben")))
	require.False(t, out.Sent)
	require.NotEmpty(t, out.Reason)
}

func TestNATSSender(t *testing.T) {
	nc := startEmbeddedNATS(t)

	sub, err := nc.SubscribeSync("clubs.notifications.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sender := NewNATSSenderWithConn(nc, "clubs.notifications")
	n := NewNotifier(sender, 0)

	msg := Confirmation(submission("ada"), names{})
	require.True(t, n.Send(context.Background(), msg).Sent)

	got, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "clubs.notifications.confirmation", got.Subject)
	require.Equal(t, msg.ID, got.Header.Get("Nats-Msg-Id"))

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	require.Equal(t, "ada", decoded.StudentName)
	require.Len(t, decoded.Clubs, 2)

	require.NoError(t, n.Close())
	require.True(t, nc.IsConnected(), "borrowed connection stays open")
}

func TestValidDriver(t *testing.T) {
	require.True(t, ValidDriver("nats"))
	require.True(t, ValidDriver("LOG"))
	require.False(t, ValidDriver("sendgrid"))
}
