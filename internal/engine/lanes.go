package engine

import "github.com/spec-kit/queue-service/internal/domain"

// Enqueue issues the next code and appends the ticket to the tail of its
// lane. Unknown priorities fall back to the normal lane.
func (e *Engine) Enqueue(s *domain.SystemState, subjectID string, priority domain.Priority) domain.Ticket {
	if !priority.Valid() {
		priority = domain.PriorityNormal
	}
	t := domain.Ticket{
		Code:      s.TicketCounter.Next(),
		SubjectID: subjectID,
		Priority:  priority,
		CreatedAt: e.now().UTC(),
	}
	if priority == domain.PriorityHigh {
		s.HighQueue = append(s.HighQueue, t)
	} else {
		s.Queue = append(s.Queue, t)
	}
	return t
}

// Issue enqueues a ticket and immediately runs an assignment pass.
func (e *Engine) Issue(s *domain.SystemState, subjectID string, priority domain.Priority) (domain.Ticket, []Change) {
	t := e.Enqueue(s, subjectID, priority)
	changes := []Change{e.change(ChangeTicketIssued, 0, t)}
	return t, append(changes, e.AutoAssign(s)...)
}

// DequeueNext removes the next ticket, high lane first.
func DequeueNext(s *domain.SystemState) (domain.Ticket, bool) {
	if len(s.HighQueue) > 0 {
		t := s.HighQueue[0]
		s.HighQueue = s.HighQueue[1:]
		return t, true
	}
	if len(s.Queue) > 0 {
		t := s.Queue[0]
		s.Queue = s.Queue[1:]
		return t, true
	}
	return domain.Ticket{}, false
}

// PeekNext returns what DequeueNext would return without removing it.
func PeekNext(s *domain.SystemState) (domain.Ticket, bool) {
	if len(s.HighQueue) > 0 {
		return s.HighQueue[0], true
	}
	if len(s.Queue) > 0 {
		return s.Queue[0], true
	}
	return domain.Ticket{}, false
}

// TotalWaiting counts tickets across both lanes.
func TotalWaiting(s *domain.SystemState) int {
	return len(s.HighQueue) + len(s.Queue)
}

// requeueFront puts a released ticket at the head of the normal lane. The
// ticket loses any high priority it had.
func requeueFront(s *domain.SystemState, t domain.Ticket) domain.Ticket {
	t.Priority = domain.PriorityNormal
	s.Queue = append([]domain.Ticket{t}, s.Queue...)
	return t
}
