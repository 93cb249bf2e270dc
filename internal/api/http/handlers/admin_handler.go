package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/service"
)

// AdminHandler exposes administrator controls.
type AdminHandler struct {
	queue *service.QueueService
	auth  *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(queue *service.QueueService, authService *service.AuthService) *AdminHandler {
	return &AdminHandler{queue: queue, auth: authService}
}

// ActivateModule POST /admin/modules/:id/activate.
func (h *AdminHandler) ActivateModule(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return err
	}
	principal, _ := auth.PrincipalFromContext(c)
	state, err := h.queue.ActivateModule(c.UserContext(), principal.Actor(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// DeactivateModule POST /admin/modules/:id/deactivate.
func (h *AdminHandler) DeactivateModule(c *fiber.Ctx) error {
	id, err := moduleID(c)
	if err != nil {
		return err
	}
	principal, _ := auth.PrincipalFromContext(c)
	state, err := h.queue.DeactivateModule(c.UserContext(), principal.Actor(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// ActivateAll POST /admin/modules/activate-all.
func (h *AdminHandler) ActivateAll(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	state, err := h.queue.ActivateAll(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// DeactivateAll POST /admin/modules/deactivate-all.
func (h *AdminHandler) DeactivateAll(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	state, err := h.queue.DeactivateAll(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stateResponse(state)})
}

// Reset POST /admin/reset.
func (h *AdminHandler) Reset(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	res, err := h.queue.Reset(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ResetResponse{Version: res.State.Version, ArchiveKey: res.ArchiveKey}})
}

// Operators GET /admin/operators.
func (h *AdminHandler) Operators(c *fiber.Ctx) error {
	ops, err := h.auth.Operators(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]any, 0, len(ops))
	for i := range ops {
		items = append(items, operatorResponse(&ops[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
