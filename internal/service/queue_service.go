package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/archive"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/engine"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const defaultWriteRetries = 5

// QueueService runs every actor operation as a read-modify-write cycle on
// the shared snapshot.
type QueueService struct {
	store      repository.StateStore
	engine     *engine.Engine
	dispatcher events.Dispatcher
	archiver   archive.Archiver
	metrics    *observability.Metrics
	logger     *zap.Logger
	retries    int
}

// QueueDependencies bundles collaborators. Only Store is required.
type QueueDependencies struct {
	Store        repository.StateStore
	Engine       *engine.Engine
	Dispatcher   events.Dispatcher
	Archiver     archive.Archiver
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	WriteRetries int
}

// NewQueueService creates the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	s := &QueueService{
		store:      deps.Store,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		archiver:   deps.Archiver,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		retries:    deps.WriteRetries,
	}
	if s.engine == nil {
		s.engine = engine.New()
	}
	if s.archiver == nil {
		s.archiver = archive.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.retries <= 0 {
		s.retries = defaultWriteRetries
	}
	return s
}

// IssueResult reports a newly issued ticket and where it went.
type IssueResult struct {
	Ticket   domain.Ticket
	ModuleID int
	State    *domain.SystemState
}

// ResetResult reports a reset and the archive key of the wiped snapshot.
type ResetResult struct {
	State      *domain.SystemState
	ArchiveKey string
}

type mutation func(*domain.SystemState) ([]engine.Change, error)

// Snapshot returns the current state.
func (s *QueueService) Snapshot(ctx context.Context) (*domain.SystemState, error) {
	state, err := s.store.Read(ctx)
	if err != nil {
		return nil, apperrors.NewUnavailable("state store unavailable", err)
	}
	return state, nil
}

// IssueTicket enqueues a ticket and assigns it right away when a module is free.
func (s *QueueService) IssueTicket(ctx context.Context, actor events.Actor, subjectID string, priority domain.Priority) (*IssueResult, error) {
	var issued domain.Ticket
	state, changes, err := s.mutate(ctx, actor, func(st *domain.SystemState) ([]engine.Change, error) {
		t, changes := s.engine.Issue(st, subjectID, priority)
		issued = t
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	result := &IssueResult{Ticket: issued, State: state}
	for _, c := range changes {
		if c.Kind == engine.ChangeTicketAssigned && c.Ticket.Code == issued.Code {
			result.ModuleID = c.ModuleID
		}
	}
	return result, nil
}

// CallTicket announces the ticket held by module id.
func (s *QueueService) CallTicket(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Call)
}

// AttendTicket marks service as started on module id.
func (s *QueueService) AttendTicket(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Attend)
}

// CompleteTicket finishes the ticket on module id and pulls the next one.
func (s *QueueService) CompleteTicket(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Complete)
}

func (s *QueueService) PauseModule(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Pause)
}

func (s *QueueService) ResumeModule(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Resume)
}

func (s *QueueService) TogglePause(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.TogglePause)
}

func (s *QueueService) ActivateModule(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Activate)
}

func (s *QueueService) DeactivateModule(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error) {
	return s.moduleOp(ctx, actor, moduleID, s.engine.Deactivate)
}

func (s *QueueService) ActivateAll(ctx context.Context, actor events.Actor) (*domain.SystemState, error) {
	state, _, err := s.mutate(ctx, actor, func(st *domain.SystemState) ([]engine.Change, error) {
		return s.engine.ActivateAll(st), nil
	})
	return state, err
}

func (s *QueueService) DeactivateAll(ctx context.Context, actor events.Actor) (*domain.SystemState, error) {
	state, _, err := s.mutate(ctx, actor, func(st *domain.SystemState) ([]engine.Change, error) {
		return s.engine.DeactivateAll(st), nil
	})
	return state, err
}

// Reset wipes the queue and module history, keeping activation flags. The
// snapshot that was wiped is archived afterwards; an archive failure is
// logged and does not undo the reset.
func (s *QueueService) Reset(ctx context.Context, actor events.Actor) (*ResetResult, error) {
	var wiped *domain.SystemState
	state, _, err := s.mutate(ctx, actor, func(st *domain.SystemState) ([]engine.Change, error) {
		wiped = st.Clone()
		return s.engine.Reset(st), nil
	})
	if err != nil {
		return nil, err
	}
	result := &ResetResult{State: state}
	key, err := s.archiver.Archive(ctx, wiped)
	if err != nil {
		s.logger.Error("archive before reset failed", zap.String("driver", s.archiver.Driver()), zap.Int64("version", wiped.Version), zap.Error(err))
		return result, nil
	}
	if key != "" {
		result.ArchiveKey = key
		s.logger.Info("snapshot archived", zap.String("key", key), zap.Int64("version", wiped.Version))
		s.publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSnapshotArchived,
			Actor:     actor,
			Timestamp: time.Now().UTC(),
			Payload:   events.SnapshotArchivedPayload{Key: key, Version: wiped.Version},
		})
	}
	return result, nil
}

func (s *QueueService) moduleOp(ctx context.Context, actor events.Actor, moduleID int, op func(*domain.SystemState, int) []engine.Change) (*domain.SystemState, error) {
	state, _, err := s.mutate(ctx, actor, func(st *domain.SystemState) ([]engine.Change, error) {
		if _, ok := st.Module(moduleID); !ok {
			return nil, apperrors.NewNotFound("module", map[string]any{"module_id": moduleID})
		}
		return op(st, moduleID), nil
	})
	return state, err
}

// mutate applies fn to a fresh snapshot and writes it back, starting over on
// version conflicts. Guarded no-ops are not written.
func (s *QueueService) mutate(ctx context.Context, actor events.Actor, fn mutation) (*domain.SystemState, []engine.Change, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		state, err := s.store.Read(ctx)
		if err != nil {
			return nil, nil, apperrors.NewUnavailable("state store unavailable", err)
		}
		changes, err := fn(state)
		if err != nil {
			return nil, nil, err
		}
		if len(changes) == 0 {
			return state, nil, nil
		}
		err = s.store.Write(ctx, state)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.WriteConflict()
			s.logger.Debug("state write conflict; retrying", zap.Int("attempt", attempt), zap.Int64("version", state.Version))
			continue
		}
		if err != nil {
			return nil, nil, apperrors.NewUnavailable("state store unavailable", err)
		}
		s.afterWrite(ctx, actor, state, changes)
		return state, changes, nil
	}
	return nil, nil, apperrors.NewConflict("queue state changed concurrently; retry", map[string]any{"attempts": s.retries})
}

func (s *QueueService) afterWrite(ctx context.Context, actor events.Actor, state *domain.SystemState, changes []engine.Change) {
	s.metrics.SetWaiting(len(state.HighQueue), len(state.Queue))
	for _, c := range changes {
		switch c.Kind {
		case engine.ChangeTicketIssued:
			s.metrics.TicketIssued(string(c.Ticket.Priority))
		case engine.ChangeTicketAssigned:
			s.metrics.TicketAssigned(c.ModuleID)
		case engine.ChangeTicketCompleted:
			s.metrics.TicketCompleted(c.ModuleID)
		}
		s.publish(ctx, toEvent(actor, c))
	}
}

func (s *QueueService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func toEvent(actor events.Actor, c engine.Change) events.Event {
	e := events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventType(c.Kind),
		ModuleID:   c.ModuleID,
		TicketCode: c.Ticket.Code,
		Actor:      actor,
		Timestamp:  c.At,
	}
	if c.Ticket.Code != "" {
		e.Payload = events.TicketPayload{SubjectID: c.Ticket.SubjectID, Priority: c.Ticket.Priority}
	}
	return e
}
