package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/display"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

// FramePublisher receives display frames.
type FramePublisher interface {
	Publish(display.Frame) error
}

// DisplayFeed turns snapshots into display frames. It should own a store
// handle of its own so every write by the API counts as an external change.
type DisplayFeed struct {
	store   repository.StateStore
	out     FramePublisher
	tracker *display.Tracker
	logger  *zap.Logger

	mu   sync.Mutex
	last int64
}

// NewDisplayFeed builds the feed.
func NewDisplayFeed(store repository.StateStore, out FramePublisher, logger *zap.Logger) *DisplayFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisplayFeed{store: store, out: out, tracker: display.NewTracker(), logger: logger, last: -1}
}

// Start follows external writes until ctx is done and publishes the current
// snapshot. The subscription comes first so no write is missed between the
// two; handle drops whichever copy arrives second.
func (f *DisplayFeed) Start(ctx context.Context) error {
	if err := f.store.Subscribe(ctx, f.handle); err != nil {
		return err
	}
	state, err := f.store.Read(ctx)
	if err != nil {
		return err
	}
	f.handle(state)
	return nil
}

// handle drops snapshots older than the last one shown; notifications can
// arrive out of order on backends that re-read after a notice.
func (f *DisplayFeed) handle(state *domain.SystemState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state.Version <= f.last {
		return
	}
	f.last = state.Version
	frame := f.tracker.Frame(state)
	if len(frame.NewCalls) > 0 {
		f.logger.Info("display call", zap.Ints("modules", frame.NewCalls), zap.Int64("version", state.Version))
	}
	if err := f.out.Publish(frame); err != nil {
		f.logger.Warn("display frame not published", zap.Int64("version", state.Version), zap.Error(err))
	}
}
