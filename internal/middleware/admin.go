package middleware

import (
	"strings"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/identity"
	"github.com/campx/campx-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminRequired must run after JWTProtected. It admits callers whose email
// is listed in ADMIN_EMAILS or whose stored role is admin. The role claim in
// the token is not trusted on its own so demotions take effect immediately.
func AdminRequired(db *gorm.DB, cfg *config.Config) fiber.Handler {
	adminEmails := parseCSV(cfg.AdminEmails)

	return func(c *fiber.Ctx) error {
		userID, err := identity.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Code: string(apperr.KindUnauthenticated), Message: "Unauthorized",
			})
		}

		if contains(adminEmails, strings.ToLower(identity.GetEmail(c))) {
			return c.Next()
		}

		var user models.User
		if err := db.Select("id", "role").First(&user, "id = ?", userID).Error; err == nil && user.IsAdmin() {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Code: string(apperr.KindForbidden), Message: "Admin access required",
		})
	}
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
