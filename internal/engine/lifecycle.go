package engine

import "github.com/spec-kit/queue-service/internal/domain"

// Every lifecycle operation returns the changes it made. A nil result means
// the guard rejected the call and the state was left untouched.

// Deactivate disables module id. A held ticket goes back to the head of the
// normal lane and the paused flag is dropped.
func (e *Engine) Deactivate(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || !m.Active() {
		return nil
	}
	var changes []Change
	if m.Current != nil {
		t := requeueFront(s, m.Current.Ticket())
		m.Current = nil
		changes = append(changes, e.change(ChangeTicketRequeued, id, t))
	}
	m.Availability = domain.AvailabilityInactive
	return append(changes, e.change(ChangeModuleDeactivated, id, domain.Ticket{}))
}

// Activate enables module id and runs an assignment pass with the module
// already eligible.
func (e *Engine) Activate(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Active() {
		return nil
	}
	m.Availability = domain.AvailabilityActive
	changes := []Change{e.change(ChangeModuleActivated, id, domain.Ticket{})}
	return append(changes, e.AutoAssign(s)...)
}

// Pause stops new assignments to module id. A held ticket stays.
func (e *Engine) Pause(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Availability != domain.AvailabilityActive {
		return nil
	}
	m.Availability = domain.AvailabilityPaused
	return []Change{e.change(ChangeModulePaused, id, domain.Ticket{})}
}

// Resume clears the pause and runs an assignment pass.
func (e *Engine) Resume(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Availability != domain.AvailabilityPaused {
		return nil
	}
	m.Availability = domain.AvailabilityActive
	changes := []Change{e.change(ChangeModuleResumed, id, domain.Ticket{})}
	return append(changes, e.AutoAssign(s)...)
}

// TogglePause flips the pause flag. Inactive modules are ignored.
func (e *Engine) TogglePause(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok {
		return nil
	}
	switch m.Availability {
	case domain.AvailabilityActive:
		return e.Pause(s, id)
	case domain.AvailabilityPaused:
		return e.Resume(s, id)
	}
	return nil
}

// Call announces the held ticket. Calling again re-announces it.
func (e *Engine) Call(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Current == nil {
		return nil
	}
	now := e.now().UTC()
	cur := m.Current
	cur.Stage = domain.StageCalled
	cur.CalledAt = &now
	m.CallLogs = append(m.CallLogs, domain.CallLog{Code: cur.Code, SubjectID: cur.SubjectID, CalledAt: now})

	history := append([]domain.CallRecord{{Code: cur.Code, ModuleID: id, CalledAt: now}}, s.RecentCallHistory...)
	if len(history) > e.historySize {
		history = history[:e.historySize]
	}
	s.RecentCallHistory = history
	return []Change{{Kind: ChangeTicketCalled, ModuleID: id, Ticket: cur.Ticket(), At: now}}
}

// Attend marks service as started and ends the calling state.
func (e *Engine) Attend(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Current == nil {
		return nil
	}
	m.Current.Stage = domain.StageAttending
	m.Current.CalledAt = nil
	return []Change{e.change(ChangeTicketAttending, id, m.Current.Ticket())}
}

// Complete finishes the held ticket, frees the module and runs an
// assignment pass.
func (e *Engine) Complete(s *domain.SystemState, id int) []Change {
	m, ok := s.Module(id)
	if !ok || m.Current == nil {
		return nil
	}
	now := e.now().UTC()
	t := m.Current.Ticket()
	m.FinishedTickets = append(m.FinishedTickets, domain.FinishedTicket{Code: t.Code, SubjectID: t.SubjectID, FinishedAt: now})
	m.Current = nil
	changes := []Change{{Kind: ChangeTicketCompleted, ModuleID: id, Ticket: t, At: now}}
	return append(changes, e.AutoAssign(s)...)
}

// ActivateAll enables every inactive module, then runs one assignment pass.
func (e *Engine) ActivateAll(s *domain.SystemState) []Change {
	var changes []Change
	for _, id := range s.ModuleIDs() {
		m := s.Modules[id]
		if m.Active() {
			continue
		}
		m.Availability = domain.AvailabilityActive
		changes = append(changes, e.change(ChangeModuleActivated, id, domain.Ticket{}))
	}
	if len(changes) == 0 {
		return nil
	}
	return append(changes, e.AutoAssign(s)...)
}

// DeactivateAll disables every active module in ascending id order. Each
// held ticket is pushed to the head of the normal lane in turn, so the
// ticket of the highest module id ends up first.
func (e *Engine) DeactivateAll(s *domain.SystemState) []Change {
	var changes []Change
	for _, id := range s.ModuleIDs() {
		changes = append(changes, e.Deactivate(s, id)...)
	}
	return changes
}

// Reset clears the snapshot except each module's active flag.
func (e *Engine) Reset(s *domain.SystemState) []Change {
	s.Reset()
	return []Change{e.change(ChangeSystemReset, 0, domain.Ticket{})}
}
