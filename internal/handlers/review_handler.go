package handlers

import (
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ReviewHandler struct {
	reviews *services.ReviewService
}

func NewReviewHandler(reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

func (h *ReviewHandler) Submit(c *fiber.Ctx) error {
	buyerID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.SubmitReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	id, err := h.reviews.Submit(c.UserContext(), buyerID, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":      id,
		"message": "Review submitted",
	})
}

func (h *ReviewHandler) SellerReviews(c *fiber.Ctx) error {
	sellerID, err := paramUUID(c, "sellerId")
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.reviews.SellerReviews(c.UserContext(), sellerID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}
