package handlers

import (
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AIHandler struct {
	ai *services.AIService
}

func NewAIHandler(ai *services.AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

func (h *AIHandler) PredictPrice(c *fiber.Ctx) error {
	var req dto.PricePredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.ai.PredictPrice(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AIHandler) Describe(c *fiber.Ctx) error {
	var req dto.DescribeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.ai.Describe(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AIHandler) AnalyzeImage(c *fiber.Ctx) error {
	var req dto.AnalyzeImageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.ai.AnalyzeImage(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AIHandler) PriceCategories(c *fiber.Ctx) error {
	return c.JSON(h.ai.PriceCategories())
}

func (h *AIHandler) SmartSearch(c *fiber.Ctx) error {
	var req dto.SmartSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.ai.SmartSearch(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AIHandler) SuggestMessage(c *fiber.Ctx) error {
	var req dto.SuggestMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.ai.SuggestMessage(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}
