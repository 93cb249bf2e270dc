package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
)

// AnnouncementService turns queue events into operator-facing log lines and
// forwards ticket calls to an optional webhook (a speaker or pager bridge).
type AnnouncementService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.AnnounceConfig
	post       func(ctx context.Context, url string, body []byte) error
	pending    sync.WaitGroup
}

// NewAnnouncementService creates the service.
func NewAnnouncementService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.AnnounceConfig) *AnnouncementService {
	a := &AnnouncementService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
	a.post = a.postWebhook
	return a
}

// RegisterHandlers subscribes to events.
func (a *AnnouncementService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketIssued, a.handleTicketIssued)
	a.dispatcher.Subscribe(events.EventTicketCalled, a.handleTicketCalled)
	a.dispatcher.Subscribe(events.EventTicketRequeued, a.handleTicketRequeued)
	a.dispatcher.Subscribe(events.EventSystemReset, a.handleSystemReset)
}

func (a *AnnouncementService) handleTicketIssued(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketIssued", zap.String("ticket", event.TicketCode), zap.Any("payload", event.Payload))
	return nil
}

func (a *AnnouncementService) handleTicketCalled(ctx context.Context, event events.Event) error {
	a.logger.Info("TicketCalled", zap.String("ticket", event.TicketCode), zap.Int("module", event.ModuleID))
	a.sendWebhook(ctx, event)
	return nil
}

func (a *AnnouncementService) handleTicketRequeued(ctx context.Context, event events.Event) error {
	a.logger.Warn("TicketRequeued", zap.String("ticket", event.TicketCode), zap.Int("from_module", event.ModuleID))
	return nil
}

func (a *AnnouncementService) handleSystemReset(ctx context.Context, event events.Event) error {
	a.logger.Info("SystemReset", zap.String("by", event.Actor.Username))
	return nil
}

// callAnnouncement is the webhook body.
type callAnnouncement struct {
	Ticket   string    `json:"ticket"`
	Module   int       `json:"module"`
	CalledAt time.Time `json:"called_at"`
	Text     string    `json:"text"`
}

// sendWebhook posts in the background; announcements never block the
// operator's request.
func (a *AnnouncementService) sendWebhook(_ context.Context, event events.Event) {
	if strings.TrimSpace(a.cfg.WebhookURL) == "" {
		return
	}
	body, err := json.Marshal(callAnnouncement{
		Ticket:   event.TicketCode,
		Module:   event.ModuleID,
		CalledAt: event.Timestamp,
		Text:     announcementText(event.TicketCode, event.ModuleID),
	})
	if err != nil {
		a.logger.Warn("encode announcement", zap.Error(err))
		return
	}
	timeout := time.Duration(a.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.post(ctx, a.cfg.WebhookURL, body); err != nil {
			a.logger.Warn("announcement webhook failed", zap.String("url", a.cfg.WebhookURL), zap.String("ticket", event.TicketCode), zap.Error(err))
		}
	}()
}

// Wait blocks until every webhook already sent has finished.
func (a *AnnouncementService) Wait() {
	a.pending.Wait()
}

func (a *AnnouncementService) postWebhook(ctx context.Context, url string, body []byte) error {
	agent := fiber.Post(url).Body(body).ContentType(fiber.MIMEApplicationJSON)
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	}
	if err := agent.Parse(); err != nil {
		return err
	}
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if status >= fiber.StatusBadRequest {
		return fiber.NewError(status, "webhook rejected announcement")
	}
	return nil
}

// announcementText is what a speaker would read out.
func announcementText(code string, moduleID int) string {
	spelled := strings.Join(strings.Split(code, ""), " ")
	return "Ticket " + spelled + ", please go to module " + strconv.Itoa(moduleID)
}
