package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketIssued      EventType = "ticket_issued"
	EventTicketAssigned    EventType = "ticket_assigned"
	EventTicketCalled      EventType = "ticket_called"
	EventTicketAttending   EventType = "ticket_attending"
	EventTicketCompleted   EventType = "ticket_completed"
	EventTicketRequeued    EventType = "ticket_requeued"
	EventModuleActivated   EventType = "module_activated"
	EventModuleDeactivated EventType = "module_deactivated"
	EventModulePaused      EventType = "module_paused"
	EventModuleResumed     EventType = "module_resumed"
	EventSystemReset       EventType = "system_reset"
	EventSnapshotArchived  EventType = "snapshot_archived"
)

// AllTypes lists every event type, for subscribers that want everything.
var AllTypes = []EventType{
	EventTicketIssued, EventTicketAssigned, EventTicketCalled, EventTicketAttending,
	EventTicketCompleted, EventTicketRequeued, EventModuleActivated, EventModuleDeactivated,
	EventModulePaused, EventModuleResumed, EventSystemReset, EventSnapshotArchived,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role       domain.Role `json:"role"`
	OperatorID string      `json:"operator_id,omitempty"`
	Username   string      `json:"username,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	ModuleID   int         `json:"module_id,omitempty"`
	TicketCode string      `json:"ticket_code,omitempty"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload,omitempty"`
}

// TicketPayload accompanies every ticket event.
type TicketPayload struct {
	SubjectID string          `json:"subject_id"`
	Priority  domain.Priority `json:"priority"`
}

// SnapshotArchivedPayload accompanies EventSnapshotArchived.
type SnapshotArchivedPayload struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
}
