package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/display"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueHandler serves the queue overview and the reception desk.
type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Overview GET /queue.
func (h *QueueHandler) Overview(c *fiber.Ctx) error {
	state, err := h.queue.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": display.BuildOverview(state)})
}

// State GET /state returns the raw snapshot.
func (h *QueueHandler) State(c *fiber.Ctx) error {
	state, err := h.queue.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": state})
}

// IssueTicket POST /reception/tickets.
func (h *QueueHandler) IssueTicket(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)

	var req dto.IssueTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if len(subjectID) < dto.MinSubjectIDLength {
		return apperrors.NewValidationError("subject_id must have at least 4 characters", map[string]any{"field": "subject_id"})
	}
	priority := domain.Priority(strings.ToLower(strings.TrimSpace(req.Priority)))
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return apperrors.NewValidationError("priority must be high or normal", map[string]any{"field": "priority"})
	}

	res, err := h.queue.IssueTicket(c.UserContext(), principal.Actor(), subjectID, priority)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketResponse{
		Code:      res.Ticket.Code,
		SubjectID: res.Ticket.SubjectID,
		Priority:  string(res.Ticket.Priority),
		CreatedAt: res.Ticket.CreatedAt,
		ModuleID:  res.ModuleID,
		Waiting:   len(res.State.HighQueue) + len(res.State.Queue),
	}})
}

func stateResponse(state *domain.SystemState) dto.StateResponse {
	return dto.StateResponse{
		Version:       state.Version,
		Modules:       display.ModuleViews(state),
		TotalWaiting:  len(state.HighQueue) + len(state.Queue),
		ActiveModules: state.ActiveModules(),
	}
}
