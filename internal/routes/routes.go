package routes

import (
	"time"

	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/handlers"
	"github.com/campx/campx-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Listing  *handlers.ListingHandler
	Sale     *handlers.SaleHandler
	Review   *handlers.ReviewHandler
	Message  *handlers.MessageHandler
	Admin    *handlers.AdminHandler
	AI       *handlers.AIHandler
	Upload   *handlers.UploadHandler
	Realtime *handlers.WSHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	authLimit := limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
	auth.Post("/register", authLimit, h.Auth.Register)
	auth.Post("/login", authLimit, h.Auth.Login)
	auth.Post("/refresh", authLimit, h.Auth.Refresh)
	auth.Get("/verify-email", authLimit, h.Auth.VerifyEmail)
	auth.Post("/resend-verification", authLimit, h.Auth.ResendVerification)
	auth.Post("/forgot-password", authLimit, h.Auth.ForgotPassword)
	auth.Post("/reset-password", authLimit, h.Auth.ResetPassword)

	// Protected routes (JWT required) - apply middleware to individual routes
	// so public routes on the same prefix stay public.
	protected := middleware.JWTProtected(cfg)
	optional := middleware.OptionalJWT(cfg)

	auth.Post("/logout", protected, h.Auth.Logout)
	auth.Get("/me", protected, h.Auth.Me)
	auth.Put("/profile", protected, h.Auth.UpdateProfile)

	// Listings. Static segments are registered before /:id.
	listings := api.Group("/listings")
	listings.Get("/", optional, h.Listing.Query)
	listings.Post("/", protected, h.Listing.Create)
	listings.Get("/categories", h.Listing.Categories)
	listings.Get("/mine", protected, h.Listing.Mine)
	listings.Post("/restore", protected, h.Listing.Restore)
	listings.Get("/:id", optional, h.Listing.Get)
	listings.Put("/:id", protected, h.Listing.Update)
	listings.Delete("/:id", protected, h.Listing.Delete)
	listings.Post("/:id/book", protected, h.Sale.Book)
	listings.Post("/:id/save", protected, h.Listing.ToggleSave)

	api.Get("/users/:id", h.Auth.PublicProfile)

	api.Get("/wishlist", protected, h.Listing.Wishlist)
	api.Get("/sales/purchases", protected, h.Sale.Purchases)
	api.Get("/sales/sold", protected, h.Sale.Sold)

	api.Post("/reviews", protected, h.Review.Submit)
	api.Get("/reviews/:sellerId", h.Review.SellerReviews)

	messages := api.Group("/messages", protected)
	messages.Post("/", h.Message.Send)
	messages.Get("/", h.Message.Inbox)
	messages.Get("/sent", h.Message.Sent)
	messages.Get("/:id", h.Message.Get)
	messages.Put("/:id/offer", h.Message.RespondOffer)

	// AI helpers call paid providers: 20 req/min per IP
	ai := api.Group("/ai", protected, limiter.New(limiter.Config{
		Max:               20,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	ai.Post("/price", h.AI.PredictPrice)
	ai.Post("/describe", h.AI.Describe)
	ai.Post("/analyze-image", h.AI.AnalyzeImage)
	ai.Post("/smart-search", h.AI.SmartSearch)
	ai.Post("/suggest-message", h.AI.SuggestMessage)
	api.Get("/price-categories", h.AI.PriceCategories)

	api.Post("/uploads", protected, h.Upload.UploadImage)

	api.Get("/ws", middleware.WSProtected(cfg), h.Realtime.Upgrade, h.Realtime.Handler())

	// Admin panel (protected + admin required)
	admin := api.Group("/admin", protected, middleware.AdminRequired(db, cfg))
	admin.Get("/stats", h.Admin.Stats)
	admin.Get("/users", h.Admin.Users)
	admin.Put("/users/:id/role", h.Admin.UpdateRole)
	admin.Delete("/users/:id", h.Admin.DeleteUser)
	admin.Get("/listings", h.Admin.Listings)
	admin.Delete("/listings/:id", h.Admin.DeleteListing)
	admin.Get("/messages", h.Admin.Messages)
	admin.Delete("/messages/:id", h.Admin.DeleteMessage)
	admin.Get("/sales", h.Admin.Sales)
}
