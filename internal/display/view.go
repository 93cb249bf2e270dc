package display

import (
	"strings"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// WaitingPreviewSize is how many waiting tickets the reception overview lists.
const WaitingPreviewSize = 5

// Status is the label a module card shows.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusPaused    Status = "paused"
	StatusCalling   Status = "calling"
	StatusAttending Status = "attending"
	StatusAssigned  Status = "assigned"
	StatusFree      Status = "free"
)

// ModuleView is one module card.
type ModuleView struct {
	ID         int        `json:"id"`
	Status     Status     `json:"status"`
	State      string     `json:"state"`
	Ticket     string     `json:"ticket,omitempty"`
	SubjectID  string     `json:"subject_id,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	CalledAt   *time.Time `json:"called_at,omitempty"`
	Calls      int        `json:"calls"`
	Finished   int        `json:"finished"`
}

// WaitingTicket is one row of a waiting list.
type WaitingTicket struct {
	Code     string `json:"code"`
	Priority string `json:"priority"`
	High     bool   `json:"high"`
}

// Overview is the reception summary of the whole queue.
type Overview struct {
	NextCode      string              `json:"next_code"`
	HighWaiting   int                 `json:"high_waiting"`
	NormalWaiting int                 `json:"normal_waiting"`
	TotalWaiting  int                 `json:"total_waiting"`
	ActiveModules int                 `json:"active_modules"`
	Waiting       []WaitingTicket     `json:"waiting"`
	Modules       []ModuleView        `json:"modules"`
	RecentCalls   []domain.CallRecord `json:"recent_calls"`
	Version       int64               `json:"version"`
	LastUpdated   time.Time           `json:"last_updated"`
}

// StatusOf labels a module. Pause wins over the ticket stage so a paused
// operator never looks available.
func StatusOf(m *domain.Module) Status {
	switch {
	case !m.Active():
		return StatusInactive
	case m.Paused():
		return StatusPaused
	case m.Current == nil:
		return StatusFree
	case m.Current.Stage == domain.StageCalled:
		return StatusCalling
	case m.Current.Stage == domain.StageAttending:
		return StatusAttending
	default:
		return StatusAssigned
	}
}

// NewModuleView builds the card for m.
func NewModuleView(m *domain.Module) ModuleView {
	v := ModuleView{
		ID:       m.ID,
		Status:   StatusOf(m),
		State:    string(m.State()),
		Calls:    len(m.CallLogs),
		Finished: len(m.FinishedTickets),
	}
	if c := m.Current; c != nil {
		assignedAt := c.AssignedAt
		v.Ticket = c.Code
		v.SubjectID = c.SubjectID
		v.Priority = string(c.Priority)
		v.AssignedAt = &assignedAt
		if c.CalledAt != nil {
			calledAt := *c.CalledAt
			v.CalledAt = &calledAt
		}
	}
	return v
}

// ModuleViews returns cards in ascending module id.
func ModuleViews(s *domain.SystemState) []ModuleView {
	ids := s.ModuleIDs()
	out := make([]ModuleView, 0, len(ids))
	for _, id := range ids {
		out = append(out, NewModuleView(s.Modules[id]))
	}
	return out
}

// WaitingList merges both lanes, high first. limit <= 0 means no limit.
func WaitingList(s *domain.SystemState, limit int) []WaitingTicket {
	out := make([]WaitingTicket, 0, len(s.HighQueue)+len(s.Queue))
	for _, t := range s.HighQueue {
		out = append(out, WaitingTicket{Code: t.Code, Priority: string(domain.PriorityHigh), High: true})
	}
	for _, t := range s.Queue {
		out = append(out, WaitingTicket{Code: t.Code, Priority: string(domain.PriorityNormal)})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BuildOverview summarises s for the reception desk.
func BuildOverview(s *domain.SystemState) Overview {
	return Overview{
		NextCode:      s.TicketCounter.Peek(),
		HighWaiting:   len(s.HighQueue),
		NormalWaiting: len(s.Queue),
		TotalWaiting:  len(s.HighQueue) + len(s.Queue),
		ActiveModules: s.ActiveModules(),
		Waiting:       WaitingList(s, WaitingPreviewSize),
		Modules:       ModuleViews(s),
		RecentCalls:   append([]domain.CallRecord{}, s.RecentCallHistory...),
		Version:       s.Version,
		LastUpdated:   s.LastUpdated,
	}
}

// CallGroup collects every call of one ticket on a module.
type CallGroup struct {
	Ticket    string      `json:"ticket"`
	SubjectID string      `json:"subject_id"`
	Calls     []time.Time `json:"calls"`
}

// GroupCallLogs filters logs by a case-insensitive code substring and groups
// them per ticket. Groups are ordered newest first by their first call; the
// calls inside a group keep their original order.
func GroupCallLogs(logs []domain.CallLog, query string) []CallGroup {
	query = strings.ToLower(strings.TrimSpace(query))
	index := make(map[string]int)
	var groups []CallGroup
	for _, l := range logs {
		if query != "" && !strings.Contains(strings.ToLower(l.Code), query) {
			continue
		}
		i, ok := index[l.Code]
		if !ok {
			i = len(groups)
			index[l.Code] = i
			groups = append(groups, CallGroup{Ticket: l.Code, SubjectID: l.SubjectID})
		}
		groups[i].Calls = append(groups[i].Calls, l.CalledAt)
	}
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return groups
}
