package handlers

import (
	"fmt"
	"strings"

	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/identity"
	"github.com/campx/campx-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ListingHandler struct {
	listings  *services.ListingService
	cascade   *services.CascadeService
	uploadDir string
	maxImages int
}

func NewListingHandler(listings *services.ListingService, cascade *services.CascadeService, uploadDir string, maxImages int) *ListingHandler {
	return &ListingHandler{listings: listings, cascade: cascade, uploadDir: uploadDir, maxImages: maxImages}
}

// Create accepts JSON, or multipart form fields with image1..imageN files.
func (h *ListingHandler) Create(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var saved []string
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		price, err := services.ParsePrice(c.FormValue("price"))
		if err != nil {
			return respondError(c, err)
		}
		if price != nil {
			req.Price = *price
		}

		for i := 1; i <= h.maxImages+1; i++ {
			file, err := c.FormFile(fmt.Sprintf("image%d", i))
			if err != nil {
				continue
			}
			if i > h.maxImages {
				removeUploads(h.uploadDir, saved)
				return badRequest(c, fmt.Sprintf("At most %d images are allowed", h.maxImages))
			}
			url, err := saveImage(c, h.uploadDir, file)
			if err != nil {
				removeUploads(h.uploadDir, saved)
				return respondError(c, err)
			}
			saved = append(saved, url)
		}
		req.Images = append(req.Images, saved...)
	}

	listing, err := h.listings.Create(c.UserContext(), userID, &req)
	if err != nil {
		removeUploads(h.uploadDir, saved)
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(listing)
}

func (h *ListingHandler) Query(c *fiber.Ctx) error {
	minPrice, err := services.ParsePrice(c.Query("min_price"))
	if err != nil {
		return respondError(c, err)
	}
	maxPrice, err := services.ParsePrice(c.Query("max_price"))
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.listings.Query(c.UserContext(), dto.ListingFilter{
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
		Query:     c.Query("q"),
		Status:    c.Query("status"),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
	}, identity.OptionalUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.listings.Get(c.UserContext(), id, identity.OptionalUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}

func (h *ListingHandler) Update(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.UpdateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	listing, err := h.listings.Update(c.UserContext(), id, userID, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(listing)
}

func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.cascade.DeleteListing(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.CascadeResponse{
		Message:     "Listing deleted",
		Degraded:    result.Degraded(),
		FailedSteps: result.FailedSteps,
	})
}

func (h *ListingHandler) Restore(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	listing, err := h.listings.Restore(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(listing)
}

func (h *ListingHandler) Mine(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	listings, err := h.listings.Mine(c.UserContext(), userID, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"listings": listings})
}

func (h *ListingHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(h.listings.Categories())
}

func (h *ListingHandler) ToggleSave(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.listings.ToggleSave(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}

func (h *ListingHandler) Wishlist(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	listings, err := h.listings.Wishlist(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"listings": listings})
}
