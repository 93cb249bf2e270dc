// Package engine holds the pure queue rules. Every operation mutates a
// *domain.SystemState in place and reports what it changed; persistence and
// concurrency belong to the caller.
package engine

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ChangeKind names one observable effect of an operation.
type ChangeKind string

const (
	ChangeTicketIssued      ChangeKind = "ticket_issued"
	ChangeTicketAssigned    ChangeKind = "ticket_assigned"
	ChangeTicketCalled      ChangeKind = "ticket_called"
	ChangeTicketAttending   ChangeKind = "ticket_attending"
	ChangeTicketCompleted   ChangeKind = "ticket_completed"
	ChangeTicketRequeued    ChangeKind = "ticket_requeued"
	ChangeModuleActivated   ChangeKind = "module_activated"
	ChangeModuleDeactivated ChangeKind = "module_deactivated"
	ChangeModulePaused      ChangeKind = "module_paused"
	ChangeModuleResumed     ChangeKind = "module_resumed"
	ChangeSystemReset       ChangeKind = "system_reset"
)

// Change is emitted for every state transition. ModuleID is zero for
// changes that do not concern a single module.
type Change struct {
	Kind     ChangeKind
	ModuleID int
	Ticket   domain.Ticket
	At       time.Time
}

// Engine applies queue operations. The zero value is not usable; call New.
type Engine struct {
	now         func() time.Time
	historySize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCallHistorySize bounds the system-wide recent call history.
func WithCallHistorySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historySize = n
		}
	}
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:         time.Now,
		historySize: domain.DefaultCallHistorySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) change(kind ChangeKind, moduleID int, t domain.Ticket) Change {
	return Change{Kind: kind, ModuleID: moduleID, Ticket: t, At: e.now().UTC()}
}
