package display

import (
	"sync"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// Frame is what the public display renders.
type Frame struct {
	Modules  []ModuleView    `json:"modules"`
	Waiting  []WaitingTicket `json:"waiting"`
	NewCalls []int           `json:"new_calls"`
	Version  int64           `json:"version"`
	At       time.Time       `json:"at"`
}

// Tracker remembers the last call time seen per module so each call press
// rings the display bell once. The first observed snapshot only primes it.
type Tracker struct {
	mu       sync.Mutex
	primed   bool
	lastCall map[int]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{lastCall: make(map[int]time.Time)}
}

// Frame builds the display frame for s and reports modules whose calledAt
// advanced since the previous frame.
func (t *Tracker) Frame(s *domain.SystemState) Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := Frame{
		Modules:  ModuleViews(s),
		Waiting:  WaitingList(s, 0),
		NewCalls: []int{},
		Version:  s.Version,
		At:       s.LastUpdated,
	}
	for _, id := range s.ModuleIDs() {
		m := s.Modules[id]
		if m.Current == nil || m.Current.CalledAt == nil {
			continue
		}
		calledAt := *m.Current.CalledAt
		if t.primed && calledAt.After(t.lastCall[id]) {
			f.NewCalls = append(f.NewCalls, id)
		}
		if calledAt.After(t.lastCall[id]) {
			t.lastCall[id] = calledAt
		}
	}
	t.primed = true
	return f
}
