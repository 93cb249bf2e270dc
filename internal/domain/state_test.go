package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewSystemStateDefaults(t *testing.T) {
	s := NewSystemState(4)
	if len(s.Queue) != 0 || len(s.HighQueue) != 0 {
		t.Fatalf("expected empty lanes")
	}
	if s.TicketCounter.Peek() != "A01" {
		t.Fatalf("expected counter at A01, got %s", s.TicketCounter.Peek())
	}
	ids := s.ModuleIDs()
	if len(ids) != 4 || ids[0] != 1 || ids[3] != 4 {
		t.Fatalf("unexpected module ids %v", ids)
	}
	for _, id := range ids {
		if s.Modules[id].State() != ModuleIdleActive {
			t.Fatalf("module %d: expected idle_active, got %s", id, s.Modules[id].State())
		}
	}
}

func TestModuleJSONUsesFlagLayout(t *testing.T) {
	calledAt := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	m := NewModule(2)
	m.Current = &Assignment{
		Code: "A05", SubjectID: "1234", Priority: PriorityHigh,
		Stage: StageCalled, AssignedAt: calledAt.Add(-time.Minute), CalledAt: &calledAt,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flags map[string]any
	if err := json.Unmarshal(raw, &flags); err != nil {
		t.Fatalf("unmarshal flags: %v", err)
	}
	for _, key := range []string{"active", "paused", "currentTicket", "currentSubjectId", "calledAt", "isAttending", "assignedAt", "callLogs", "finishedTickets"} {
		if _, ok := flags[key]; !ok {
			t.Fatalf("missing persisted field %q in %s", key, raw)
		}
	}
	if flags["currentTicket"] != "A05" || flags["isAttending"] != true {
		t.Fatalf("unexpected flags %s", raw)
	}

	idle, _ := json.Marshal(NewModule(1))
	var idleFlags map[string]any
	_ = json.Unmarshal(idle, &idleFlags)
	if idleFlags["currentTicket"] != nil || idleFlags["calledAt"] != nil || idleFlags["isAttending"] != false || idleFlags["assignedAt"] != float64(0) {
		t.Fatalf("idle module must clear every ticket field: %s", idle)
	}
}

func TestModuleUnmarshalStagePrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ModuleState
	}{
		{"idle", `{"active":true,"paused":false,"currentTicket":null}`, ModuleIdleActive},
		{"paused idle", `{"active":true,"paused":true,"currentTicket":null}`, ModuleIdlePaused},
		{"inactive", `{"active":false,"paused":true,"currentTicket":null}`, ModuleInactive},
		{"assigned", `{"active":true,"currentTicket":"A01","isAttending":true,"stage":"assigned"}`, ModuleAssigned},
		{"legacy attending", `{"active":true,"currentTicket":"A01","isAttending":true}`, ModuleAttending},
		{"called wins", `{"active":true,"currentTicket":"A01","isAttending":true,"stage":"attending","calledAt":"2026-01-02T09:30:00Z"}`, ModuleCalled},
		{"no flags", `{"active":true,"currentTicket":"A01"}`, ModuleAssigned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Module
			if err := json.Unmarshal([]byte(tc.raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := m.State(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDecodeStoredLayoutWithZeroAssignedAt(t *testing.T) {
	raw := `{
		"queue":[{"code":"A01","subjectId":"1234","priority":"normal","createdAt":1767261600000}],
		"highQueue":[],
		"modules":{
			"1":{"active":false,"paused":false,"currentTicket":null,"currentSubjectId":null,"calledAt":null,"isAttending":false,"assignedAt":0,"callLogs":[],"finishedTickets":[]},
			"2":{"active":true,"paused":false,"currentTicket":"A00","currentSubjectId":"9999","calledAt":1767261660000,"isAttending":true,"assignedAt":"2026-01-01T10:00:30Z","callLogs":[{"code":"A00","subjectId":"9999","calledAt":1767261660000}],"finishedTickets":[]},
			"3":{"active":true,"paused":true,"currentTicket":null,"currentSubjectId":null,"calledAt":null,"isAttending":false,"assignedAt":0,"callLogs":[],"finishedTickets":[]},
			"4":{"active":true,"paused":false,"currentTicket":null,"currentSubjectId":null,"calledAt":null,"isAttending":false,"assignedAt":0,"callLogs":[],"finishedTickets":[]}
		},
		"ticketCounter":{"letter":"A","sequence":2},
		"recentCallHistory":[],
		"lastUpdated":1767261660000
	}`
	var s SystemState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s.Queue) != 1 || s.Queue[0].Code != "A01" || !s.Queue[0].CreatedAt.Equal(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected queue %+v", s.Queue)
	}
	if s.TicketCounter.Peek() != "A02" {
		t.Fatalf("expected counter at A02, got %s", s.TicketCounter.Peek())
	}
	if s.Modules[1].State() != ModuleInactive || s.Modules[3].State() != ModuleIdlePaused || s.Modules[4].State() != ModuleIdleActive {
		t.Fatalf("unexpected module states %s %s %s", s.Modules[1].State(), s.Modules[3].State(), s.Modules[4].State())
	}
	cur := s.Modules[2].Current
	if s.Modules[2].State() != ModuleCalled || cur.CalledAt == nil || !cur.AssignedAt.Equal(time.Date(2026, 1, 1, 10, 0, 30, 0, time.UTC)) {
		t.Fatalf("unexpected module 2 %+v", cur)
	}
	if s.LastUpdated.IsZero() || len(s.Modules[2].CallLogs) != 1 || s.Modules[2].CallLogs[0].CalledAt.IsZero() {
		t.Fatalf("timestamps not decoded: %+v", s)
	}
}

func TestTimestampForms(t *testing.T) {
	want := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		zero bool
	}{
		{`0`, true},
		{`null`, true},
		{`""`, true},
		{`1767261600000`, false},
		{`"2026-01-01T10:00:00Z"`, false},
		{`"2026-01-01T11:00:00+01:00"`, false},
	}
	for _, tc := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tc.raw), &ts); err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if tc.zero != ts.IsZero() || (!tc.zero && !ts.Equal(want)) {
			t.Fatalf("%s: decoded %v", tc.raw, ts.Time)
		}
	}
	if raw, _ := json.Marshal(Timestamp{}); string(raw) != "0" {
		t.Fatalf("zero timestamp must encode as 0, got %s", raw)
	}
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestAssignmentKeepsTicketIssueTime(t *testing.T) {
	issued := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewModule(1)
	m.Current = &Assignment{Code: "A01", Priority: PriorityNormal, Stage: StageAssigned, CreatedAt: issued, AssignedAt: issued.Add(5 * time.Minute)}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Module
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := back.Current.Ticket().CreatedAt; !got.Equal(issued) {
		t.Fatalf("expected issue time %v, got %v", issued, got)
	}
}

func TestNormalizeBackfillsMissingModules(t *testing.T) {
	var s SystemState
	raw := `{"queue":[],"modules":{"1":{"active":false,"currentTicket":null},"3":null},"ticketCounter":{"letter":"C","sequence":7}}`
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	backfilled := s.Normalize(4)
	if len(backfilled) != 3 || backfilled[0] != 2 || backfilled[1] != 3 || backfilled[2] != 4 {
		t.Fatalf("expected modules 2,3,4 backfilled, got %v", backfilled)
	}
	if s.Modules[1].Active() {
		t.Fatalf("existing module 1 lost its inactive flag")
	}
	if s.HighQueue == nil || s.RecentCallHistory == nil {
		t.Fatalf("expected collections initialised")
	}
	if s.TicketCounter.Peek() != "C07" {
		t.Fatalf("counter should survive normalisation, got %s", s.TicketCounter.Peek())
	}
}

func TestNormalizeRequeuesTicketHeldByInactiveModule(t *testing.T) {
	s := NewSystemState(2)
	s.Queue = []Ticket{{Code: "A02", SubjectID: "2222", Priority: PriorityNormal}}
	s.Modules[2].Availability = AvailabilityInactive
	s.Modules[2].Current = &Assignment{Code: "A01", SubjectID: "1111", Priority: PriorityHigh, Stage: StageAssigned}

	s.Normalize(2)

	if !s.Modules[2].Idle() {
		t.Fatalf("inactive module must not hold a ticket")
	}
	if len(s.Queue) != 2 || s.Queue[0].Code != "A01" || s.Queue[0].Priority != PriorityNormal {
		t.Fatalf("expected A01 at head of normal lane as normal, got %+v", s.Queue)
	}
}

func TestResetPreservesActivation(t *testing.T) {
	s := NewSystemState(3)
	s.TicketCounter = TicketCounter{Letter: "D", Sequence: 40}
	s.Queue = []Ticket{{Code: "D38"}}
	s.HighQueue = []Ticket{{Code: "D39"}}
	s.RecentCallHistory = []CallRecord{{Code: "D30", ModuleID: 1}}
	s.Modules[1].Availability = AvailabilityPaused
	s.Modules[1].Current = &Assignment{Code: "D30", Stage: StageCalled}
	s.Modules[1].CallLogs = []CallLog{{Code: "D30"}}
	s.Modules[2].Availability = AvailabilityInactive
	s.Modules[3].FinishedTickets = []FinishedTicket{{Code: "D01"}}
	s.Version = 17

	s.Reset()

	if len(s.Queue) != 0 || len(s.HighQueue) != 0 || len(s.RecentCallHistory) != 0 {
		t.Fatalf("expected queues and history cleared")
	}
	if s.TicketCounter.Peek() != "A01" {
		t.Fatalf("expected counter reset, got %s", s.TicketCounter.Peek())
	}
	if got := s.Modules[1].State(); got != ModuleIdleActive {
		t.Fatalf("module 1: expected idle_active after reset, got %s", got)
	}
	if len(s.Modules[1].CallLogs) != 0 || len(s.Modules[3].FinishedTickets) != 0 {
		t.Fatalf("expected module histories cleared")
	}
	if s.Modules[2].Active() {
		t.Fatalf("module 2 must stay inactive across reset")
	}
	if s.Version != 17 {
		t.Fatalf("reset must not touch the store version")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSystemState(1)
	calledAt := time.Now()
	s.Modules[1].Current = &Assignment{Code: "A01", Stage: StageCalled, CalledAt: &calledAt}
	s.Queue = append(s.Queue, Ticket{Code: "A02"})

	c := s.Clone()
	c.Queue[0].Code = "ZZZ"
	c.Modules[1].Current.Code = "B01"
	*c.Modules[1].Current.CalledAt = calledAt.Add(time.Hour)

	if s.Queue[0].Code != "A02" || s.Modules[1].Current.Code != "A01" || !s.Modules[1].Current.CalledAt.Equal(calledAt) {
		t.Fatalf("clone shares memory with the original")
	}
}

func TestOperatorCanOperate(t *testing.T) {
	two := 2
	cases := []struct {
		op   Operator
		want bool
	}{
		{Operator{Role: RoleAdmin, Active: true}, true},
		{Operator{Role: RoleModule, ModuleID: &two, Active: true}, true},
		{Operator{Role: RoleModule, Active: true}, false},
		{Operator{Role: RoleReception, Active: true}, false},
		{Operator{Role: RoleAdmin, Active: false}, false},
	}
	for i, tc := range cases {
		if got := tc.op.CanOperate(2); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
