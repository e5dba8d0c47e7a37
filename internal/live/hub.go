package live

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/terra-clan/club-registration/internal/models"
)

// Snapshot is the full result of one persisted run
type Snapshot struct {
	Type        string               `json:"type"`
	Seq         uint64               `json:"seq"`
	RunID       string               `json:"runId"`
	Assignments []*models.Assignment `json:"assignments"`
	Waitlists   []*models.Waitlist   `json:"waitlists"`
	PublishedAt time.Time            `json:"publishedAt"`
}

// Hub fans the latest snapshot out to subscribers
type Hub struct {
	buffer      int
	seq         atomic.Uint64
	latest      atomic.Pointer[Snapshot]
	subscribers *xsync.Map[uint64, *subscriber]
	nextID      atomic.Uint64
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan *Snapshot
	last   uint64
	closed bool
}

// trySend delivers snap unless it is stale. It reports false when the buffer is full.
func (s *subscriber) trySend(snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || snap.Seq <= s.last {
		return true
	}

	select {
	case s.ch <- snap:
		s.last = snap.Seq
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewHub creates a hub whose subscribers buffer up to buffer snapshots
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 4
	}
	return &Hub{
		buffer:      buffer,
		subscribers: xsync.NewMap[uint64, *subscriber](),
	}
}

// Publish records a new snapshot and delivers it to every subscriber.
// Subscribers that cannot keep up are dropped.
func (h *Hub) Publish(runID string, assignments []*models.Assignment, waitlists []*models.Waitlist) *Snapshot {
	if assignments == nil {
		assignments = []*models.Assignment{}
	}
	if waitlists == nil {
		waitlists = []*models.Waitlist{}
	}

	snap := &Snapshot{
		Type:        "snapshot",
		Seq:         h.seq.Add(1),
		RunID:       runID,
		Assignments: assignments,
		Waitlists:   waitlists,
		PublishedAt: time.Now().UTC(),
	}
	h.latest.Store(snap)

	h.subscribers.Range(func(id uint64, sub *subscriber) bool {
		if !sub.trySend(snap) {
			slog.Warn("dropping slow live subscriber", "subscriber", id, "run_id", runID)
			h.remove(id)
		}
		return true
	})

	return snap
}

// Latest returns the most recent snapshot, or nil before the first publish
func (h *Hub) Latest() *Snapshot {
	return h.latest.Load()
}

// Subscribe registers a subscriber. The latest snapshot, if any, is delivered first.
// The channel is closed on unsubscribe or when the subscriber is dropped.
func (h *Hub) Subscribe() (<-chan *Snapshot, func()) {
	id := h.nextID.Add(1)
	sub := &subscriber{ch: make(chan *Snapshot, h.buffer)}
	h.subscribers.Store(id, sub)

	if snap := h.latest.Load(); snap != nil {
		sub.trySend(snap)
	}

	return sub.ch, func() { h.remove(id) }
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	return h.subscribers.Size()
}

// Close drops every subscriber
func (h *Hub) Close() {
	h.subscribers.Range(func(id uint64, _ *subscriber) bool {
		h.remove(id)
		return true
	})
}

func (h *Hub) remove(id uint64) {
	if sub, ok := h.subscribers.LoadAndDelete(id); ok {
		sub.close()
	}
}
