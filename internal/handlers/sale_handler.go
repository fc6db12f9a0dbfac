package handlers

import (
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type SaleHandler struct {
	bookings *services.BookingService
}

func NewSaleHandler(bookings *services.BookingService) *SaleHandler {
	return &SaleHandler{bookings: bookings}
}

// Book sells one unit of the listing to the caller.
func (h *SaleHandler) Book(c *fiber.Ctx) error {
	buyerID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	listingID, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.bookings.Book(c.UserContext(), listingID, buyerID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}

func (h *SaleHandler) Purchases(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	sales, err := h.bookings.Purchases(userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"sales": sales})
}

func (h *SaleHandler) Sold(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	sales, err := h.bookings.SoldBy(userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"sales": sales})
}
