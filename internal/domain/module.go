package domain

import (
	"encoding/json"
	"time"
)

// Availability is the administrator/operator axis of a module.
type Availability string

const (
	AvailabilityInactive Availability = "inactive"
	AvailabilityActive   Availability = "active"
	AvailabilityPaused   Availability = "paused"
)

// Stage is the progress of the ticket a module currently holds.
type Stage string

const (
	StageAssigned  Stage = "assigned"
	StageCalled    Stage = "called"
	StageAttending Stage = "attending"
)

func (s Stage) valid() bool {
	return s == StageAssigned || s == StageCalled || s == StageAttending
}

// ModuleState is the combined state a module is observed in.
type ModuleState string

const (
	ModuleInactive   ModuleState = "inactive"
	ModuleIdleActive ModuleState = "idle_active"
	ModuleIdlePaused ModuleState = "idle_paused"
	ModuleAssigned   ModuleState = "assigned"
	ModuleCalled     ModuleState = "called"
	ModuleAttending  ModuleState = "attending"
)

// Assignment is the ticket bound to a module. CalledAt is set only while
// Stage is StageCalled. CreatedAt is the issue time of the ticket.
type Assignment struct {
	Code       string
	SubjectID  string
	Priority   Priority
	Stage      Stage
	CreatedAt  time.Time
	AssignedAt time.Time
	CalledAt   *time.Time
}

// Ticket rebuilds the queue ticket the assignment was made from.
func (a *Assignment) Ticket() Ticket {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.AssignedAt
	}
	return Ticket{Code: a.Code, SubjectID: a.SubjectID, Priority: a.Priority, CreatedAt: createdAt}
}

// CallLog is one press of the call button.
type CallLog struct {
	Code      string    `json:"code"`
	SubjectID string    `json:"subjectId"`
	CalledAt  time.Time `json:"calledAt"`
}

// FinishedTicket records a completed service.
type FinishedTicket struct {
	Code       string    `json:"code"`
	SubjectID  string    `json:"subjectId"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Module is one physical service counter. A module is idle exactly when
// Current is nil; CallLogs and FinishedTickets only grow until a reset.
type Module struct {
	ID              int
	Availability    Availability
	Current         *Assignment
	CallLogs        []CallLog
	FinishedTickets []FinishedTicket
}

// NewModule returns an active idle module.
func NewModule(id int) *Module {
	return &Module{
		ID:              id,
		Availability:    AvailabilityActive,
		CallLogs:        []CallLog{},
		FinishedTickets: []FinishedTicket{},
	}
}

func (m *Module) Active() bool { return m.Availability != AvailabilityInactive }
func (m *Module) Paused() bool { return m.Availability == AvailabilityPaused }
func (m *Module) Idle() bool   { return m.Current == nil }

// Eligible reports whether the module can receive a new assignment.
func (m *Module) Eligible() bool {
	return m.Availability == AvailabilityActive && m.Current == nil
}

// State folds availability and stage into a single observable state. A
// paused module still reports its ticket stage while it holds one.
func (m *Module) State() ModuleState {
	if m.Availability == AvailabilityInactive {
		return ModuleInactive
	}
	if m.Current == nil {
		if m.Availability == AvailabilityPaused {
			return ModuleIdlePaused
		}
		return ModuleIdleActive
	}
	switch m.Current.Stage {
	case StageCalled:
		return ModuleCalled
	case StageAttending:
		return ModuleAttending
	default:
		return ModuleAssigned
	}
}

func (m *Module) clone() *Module {
	out := &Module{
		ID:              m.ID,
		Availability:    m.Availability,
		CallLogs:        append([]CallLog{}, m.CallLogs...),
		FinishedTickets: append([]FinishedTicket{}, m.FinishedTickets...),
	}
	if m.Current != nil {
		current := *m.Current
		if current.CalledAt != nil {
			calledAt := *current.CalledAt
			current.CalledAt = &calledAt
		}
		out.Current = &current
	}
	return out
}

// moduleRecord is the persisted flag layout of a module.
type moduleRecord struct {
	Active           bool             `json:"active"`
	Paused           bool             `json:"paused"`
	CurrentTicket    *string          `json:"currentTicket"`
	CurrentSubjectID *string          `json:"currentSubjectId"`
	CalledAt         *Timestamp       `json:"calledAt"`
	IsAttending      bool             `json:"isAttending"`
	AssignedAt       Timestamp        `json:"assignedAt"`
	TicketCreatedAt  *Timestamp       `json:"ticketCreatedAt,omitempty"`
	Stage            Stage            `json:"stage,omitempty"`
	Priority         Priority         `json:"priority,omitempty"`
	CallLogs         []CallLog        `json:"callLogs"`
	FinishedTickets  []FinishedTicket `json:"finishedTickets"`
}

// MarshalJSON writes the module in its persisted flag layout. isAttending
// stays true for as long as a ticket is held; an idle module writes
// assignedAt as 0.
func (m Module) MarshalJSON() ([]byte, error) {
	rec := moduleRecord{
		Active:          m.Availability != AvailabilityInactive,
		Paused:          m.Availability == AvailabilityPaused,
		CallLogs:        m.CallLogs,
		FinishedTickets: m.FinishedTickets,
	}
	if rec.CallLogs == nil {
		rec.CallLogs = []CallLog{}
	}
	if rec.FinishedTickets == nil {
		rec.FinishedTickets = []FinishedTicket{}
	}
	if cur := m.Current; cur != nil {
		code, subject := cur.Code, cur.SubjectID
		rec.CurrentTicket = &code
		rec.CurrentSubjectID = &subject
		rec.AssignedAt = At(cur.AssignedAt)
		rec.IsAttending = true
		rec.Stage = cur.Stage
		rec.Priority = cur.Priority
		if !cur.CreatedAt.IsZero() {
			createdAt := At(cur.CreatedAt)
			rec.TicketCreatedAt = &createdAt
		}
		if cur.Stage == StageCalled && cur.CalledAt != nil {
			calledAt := At(*cur.CalledAt)
			rec.CalledAt = &calledAt
		}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON maps persisted flags back onto availability and stage. When
// both calledAt and isAttending are present, calledAt wins.
func (m *Module) UnmarshalJSON(data []byte) error {
	var rec moduleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	switch {
	case !rec.Active:
		m.Availability = AvailabilityInactive
	case rec.Paused:
		m.Availability = AvailabilityPaused
	default:
		m.Availability = AvailabilityActive
	}
	m.CallLogs = rec.CallLogs
	m.FinishedTickets = rec.FinishedTickets
	m.Current = nil
	if rec.CurrentTicket == nil || *rec.CurrentTicket == "" {
		return nil
	}
	cur := &Assignment{Code: *rec.CurrentTicket, Priority: rec.Priority}
	if rec.CurrentSubjectID != nil {
		cur.SubjectID = *rec.CurrentSubjectID
	}
	cur.AssignedAt = rec.AssignedAt.Time
	if rec.TicketCreatedAt != nil {
		cur.CreatedAt = rec.TicketCreatedAt.Time
	}
	if !cur.Priority.Valid() {
		cur.Priority = PriorityNormal
	}
	switch {
	case rec.CalledAt != nil && !rec.CalledAt.IsZero():
		cur.Stage = StageCalled
		calledAt := rec.CalledAt.Time
		cur.CalledAt = &calledAt
	case rec.Stage.valid() && rec.Stage != StageCalled:
		cur.Stage = rec.Stage
	case rec.IsAttending:
		cur.Stage = StageAttending
	default:
		cur.Stage = StageAssigned
	}
	m.Current = cur
	return nil
}
