package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/display"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

type moduleAction func(ctx context.Context, actor events.Actor, moduleID int) (*domain.SystemState, error)

// ModulesHandler serves module operator endpoints. Access to :id is checked
// by auth.RequireModuleAccess before these run.
type ModulesHandler struct {
	queue *service.QueueService
}

// NewModulesHandler constructs handler.
func NewModulesHandler(queue *service.QueueService) *ModulesHandler {
	return &ModulesHandler{queue: queue}
}

// Get GET /modules/:id.
func (h *ModulesHandler) Get(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return err
	}
	state, err := h.queue.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	m, ok := state.Module(id)
	if !ok {
		return apperrors.NewNotFound("module", map[string]any{"module_id": id})
	}
	resp := dto.ModuleResponse{
		Module:  display.NewModuleView(m),
		Waiting: len(state.HighQueue) + len(state.Queue),
		Version: state.Version,
	}
	if next := display.WaitingList(state, 1); len(next) == 1 {
		resp.NextWaiting = next[0].Code
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Calls GET /modules/:id/calls?q=.
func (h *ModulesHandler) Calls(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return err
	}
	state, err := h.queue.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	m, ok := state.Module(id)
	if !ok {
		return apperrors.NewNotFound("module", map[string]any{"module_id": id})
	}
	return c.JSON(fiber.Map{"data": display.GroupCallLogs(m.CallLogs, c.Query("q"))})
}

func (h *ModulesHandler) Call(c *fiber.Ctx) error     { return h.run(c, h.queue.CallTicket) }
func (h *ModulesHandler) Attend(c *fiber.Ctx) error   { return h.run(c, h.queue.AttendTicket) }
func (h *ModulesHandler) Complete(c *fiber.Ctx) error { return h.run(c, h.queue.CompleteTicket) }
func (h *ModulesHandler) Pause(c *fiber.Ctx) error    { return h.run(c, h.queue.PauseModule) }
func (h *ModulesHandler) Resume(c *fiber.Ctx) error   { return h.run(c, h.queue.ResumeModule) }

// TogglePause is the operator's single pause button.
func (h *ModulesHandler) TogglePause(c *fiber.Ctx) error {
	return h.run(c, h.queue.TogglePause)
}

func (h *ModulesHandler) run(c *fiber.Ctx, action moduleAction) error {
	id, err := moduleID(c)
	if err != nil {
		return err
	}
	principal, _ := auth.PrincipalFromContext(c)
	state, err := action(c.UserContext(), principal.Actor(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

func moduleID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid module id")
	}
	return id, nil
}
