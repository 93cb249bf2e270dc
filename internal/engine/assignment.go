package engine

import "github.com/spec-kit/queue-service/internal/domain"

// AutoAssign walks modules in ascending id order and hands the next waiting
// ticket to every eligible one. It stops as soon as both lanes are empty.
func (e *Engine) AutoAssign(s *domain.SystemState) []Change {
	var changes []Change
	for _, id := range s.ModuleIDs() {
		if TotalWaiting(s) == 0 {
			break
		}
		if c, ok := e.AssignOne(s, id); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

// AssignOne gives module id the next waiting ticket if the module is
// eligible. The assignment starts uncalled; call logs are untouched.
func (e *Engine) AssignOne(s *domain.SystemState, id int) (Change, bool) {
	m, ok := s.Module(id)
	if !ok || !m.Eligible() {
		return Change{}, false
	}
	t, ok := DequeueNext(s)
	if !ok {
		return Change{}, false
	}
	m.Current = &domain.Assignment{
		Code:       t.Code,
		SubjectID:  t.SubjectID,
		Priority:   t.Priority,
		Stage:      domain.StageAssigned,
		CreatedAt:  t.CreatedAt,
		AssignedAt: e.now().UTC(),
	}
	return e.change(ChangeTicketAssigned, id, t), true
}
