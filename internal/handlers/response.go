package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/identity"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// respondError writes err as {"error": true, "code", "message"}. Server
// errors are logged and their details withheld from the client.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	message := "Internal server error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) && kind != apperr.KindInternal {
		message = appErr.Message
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"code", string(kind),
			"request_id", requestID(c),
			"error", err.Error(),
		)
	}

	return c.Status(status).JSON(dto.ErrorResponse{
		Error:   true,
		Code:    string(kind),
		Message: message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Code: string(apperr.KindInvalidArgument), Message: message,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Code: string(apperr.KindUnauthenticated), Message: "Unauthorized",
	})
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid " + name)
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// currentUser is for routes behind JWTProtected.
func currentUser(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := identity.GetUserID(c)
	return id, err == nil
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
