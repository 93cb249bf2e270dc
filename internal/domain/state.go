package domain

import (
	"sort"
	"time"
)

const (
	DefaultModuleCount     = 4
	DefaultCallHistorySize = 10
)

// CallRecord is an entry of the system-wide recent call history shown on
// the public display.
type CallRecord struct {
	Code     string    `json:"code"`
	ModuleID int       `json:"moduleId"`
	CalledAt time.Time `json:"calledAt"`
}

// SystemState is the whole persisted snapshot. Readers and writers always
// exchange it as a unit. Version is the store version the snapshot was read
// at and is advanced by the store on every successful write.
type SystemState struct {
	Queue             []Ticket        `json:"queue"`
	HighQueue         []Ticket        `json:"highQueue"`
	Modules           map[int]*Module `json:"modules"`
	TicketCounter     TicketCounter   `json:"ticketCounter"`
	RecentCallHistory []CallRecord    `json:"recentCallHistory"`
	LastUpdated       time.Time       `json:"lastUpdated"`
	Version           int64           `json:"version"`
}

// NewSystemState returns the default snapshot: empty lanes, counter at A01
// and moduleCount active idle modules numbered from 1.
func NewSystemState(moduleCount int) *SystemState {
	if moduleCount <= 0 {
		moduleCount = DefaultModuleCount
	}
	s := &SystemState{
		Queue:             []Ticket{},
		HighQueue:         []Ticket{},
		Modules:           make(map[int]*Module, moduleCount),
		TicketCounter:     NewTicketCounter(),
		RecentCallHistory: []CallRecord{},
	}
	for id := 1; id <= moduleCount; id++ {
		s.Modules[id] = NewModule(id)
	}
	return s
}

// Module returns the record for id.
func (s *SystemState) Module(id int) (*Module, bool) {
	m, ok := s.Modules[id]
	return m, ok && m != nil
}

// ModuleIDs returns module ids in ascending order.
func (s *SystemState) ModuleIDs() []int {
	ids := make([]int, 0, len(s.Modules))
	for id, m := range s.Modules {
		if m != nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// ActiveModules counts modules that are not administratively disabled.
func (s *SystemState) ActiveModules() int {
	n := 0
	for _, m := range s.Modules {
		if m != nil && m.Active() {
			n++
		}
	}
	return n
}

// Normalize repairs a decoded snapshot in place and returns the ids of the
// module records it had to backfill. Missing collections are initialised,
// a damaged counter is reset, and an inactive module still holding a ticket
// hands it back to the head of the normal lane.
func (s *SystemState) Normalize(moduleCount int) []int {
	if moduleCount <= 0 {
		moduleCount = DefaultModuleCount
	}
	if s.Queue == nil {
		s.Queue = []Ticket{}
	}
	if s.HighQueue == nil {
		s.HighQueue = []Ticket{}
	}
	if s.RecentCallHistory == nil {
		s.RecentCallHistory = []CallRecord{}
	}
	if s.Modules == nil {
		s.Modules = make(map[int]*Module, moduleCount)
	}
	s.TicketCounter = s.TicketCounter.normalized()

	var backfilled []int
	for id := 1; id <= moduleCount; id++ {
		if m, ok := s.Modules[id]; !ok || m == nil {
			s.Modules[id] = NewModule(id)
			backfilled = append(backfilled, id)
		}
	}
	for _, id := range s.ModuleIDs() {
		m := s.Modules[id]
		m.ID = id
		if m.Availability == "" {
			m.Availability = AvailabilityActive
		}
		if m.CallLogs == nil {
			m.CallLogs = []CallLog{}
		}
		if m.FinishedTickets == nil {
			m.FinishedTickets = []FinishedTicket{}
		}
		if m.Availability == AvailabilityInactive && m.Current != nil {
			t := m.Current.Ticket()
			t.Priority = PriorityNormal
			s.Queue = append([]Ticket{t}, s.Queue...)
			m.Current = nil
		}
	}
	return backfilled
}

// Reset restores the defaults of every queue and module field except each
// module's active flag. Version and LastUpdated are left for the store.
func (s *SystemState) Reset() {
	s.Queue = []Ticket{}
	s.HighQueue = []Ticket{}
	s.TicketCounter = NewTicketCounter()
	s.RecentCallHistory = []CallRecord{}
	for _, id := range s.ModuleIDs() {
		active := s.Modules[id].Active()
		fresh := NewModule(id)
		if !active {
			fresh.Availability = AvailabilityInactive
		}
		s.Modules[id] = fresh
	}
}

// Clone returns a deep copy of the snapshot.
func (s *SystemState) Clone() *SystemState {
	out := &SystemState{
		Queue:             append([]Ticket{}, s.Queue...),
		HighQueue:         append([]Ticket{}, s.HighQueue...),
		Modules:           make(map[int]*Module, len(s.Modules)),
		TicketCounter:     s.TicketCounter,
		RecentCallHistory: append([]CallRecord{}, s.RecentCallHistory...),
		LastUpdated:       s.LastUpdated,
		Version:           s.Version,
	}
	for id, m := range s.Modules {
		if m != nil {
			out.Modules[id] = m.clone()
		}
	}
	return out
}
