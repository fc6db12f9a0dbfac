package middleware

import (
	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/identity"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

func unauthenticated(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:   true,
		Code:    string(apperr.KindUnauthenticated),
		Message: "Unauthorized: invalid or expired token",
	})
}

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey:   identity.LocalsKey,
		ErrorHandler: unauthenticated,
	})
}

// OptionalJWT attaches the caller's identity when a valid bearer token is
// present and lets anonymous or badly authenticated requests through.
func OptionalJWT(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey: identity.LocalsKey,
		Filter: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderAuthorization) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			c.Locals(identity.LocalsKey, nil)
			return c.Next()
		},
	})
}

// WSProtected authenticates websocket upgrades, where browsers cannot set
// headers, from the token query parameter.
func WSProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey:   identity.LocalsKey,
		TokenLookup:  "query:token",
		ErrorHandler: unauthenticated,
	})
}
