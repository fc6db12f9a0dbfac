package handlers

import (
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the /api/admin group. Every route sits behind
// JWTProtected and AdminRequired.
type AdminHandler struct {
	admin    *services.AdminService
	cascade  *services.CascadeService
	messages *services.MessageService
	bookings *services.BookingService
}

func NewAdminHandler(admin *services.AdminService, cascade *services.CascadeService, messages *services.MessageService, bookings *services.BookingService) *AdminHandler {
	return &AdminHandler{admin: admin, cascade: cascade, messages: messages, bookings: bookings}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (h *AdminHandler) Users(c *fiber.Ctx) error {
	users, meta, err := h.admin.Users(c.UserContext(), c.Query("search"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"users": users, "pagination": meta})
}

func (h *AdminHandler) UpdateRole(c *fiber.Ctx) error {
	requesterID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := h.admin.UpdateRole(c.UserContext(), id, requesterID, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	requesterID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.cascade.DeleteUser(c.UserContext(), id, requesterID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.CascadeResponse{
		Message:     "User and related data deleted",
		Degraded:    result.Degraded(),
		FailedSteps: result.FailedSteps,
	})
}

func (h *AdminHandler) Listings(c *fiber.Ctx) error {
	resp, err := h.admin.Listings(c.UserContext(), c.Query("status"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AdminHandler) DeleteListing(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.cascade.DeleteListingAsAdmin(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.CascadeResponse{
		Message:     "Listing deleted",
		Degraded:    result.Degraded(),
		FailedSteps: result.FailedSteps,
	})
}

func (h *AdminHandler) Messages(c *fiber.Ctx) error {
	msgs, meta, err := h.messages.All(c.UserContext(), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs, "pagination": meta})
}

func (h *AdminHandler) DeleteMessage(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	if err := h.messages.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Message deleted"})
}

func (h *AdminHandler) Sales(c *fiber.Ctx) error {
	sales, meta, err := h.bookings.AllSales(queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"sales": sales, "pagination": meta})
}
