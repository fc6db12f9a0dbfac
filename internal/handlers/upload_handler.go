package handlers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UploadURLPrefix is the public path the upload dir is served under.
const UploadURLPrefix = "/uploads"

var allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

var ErrImageType = apperr.InvalidArgument("Only .jpg, .jpeg, .png and .webp files are allowed")

type UploadHandler struct {
	dir string
}

func NewUploadHandler(dir string) *UploadHandler {
	return &UploadHandler{dir: dir}
}

// UploadImage stores a single "image" form file and returns its public URL.
func (h *UploadHandler) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "Image file is required")
	}

	url, err := saveImage(c, h.dir, file)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
}

// saveImage writes file under dir with a random name and returns its URL.
func saveImage(c *fiber.Ctx, dir string, file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return "", ErrImageType
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Internal("could not prepare upload dir", err)
	}

	filename := uuid.NewString() + ext
	if err := c.SaveFile(file, filepath.Join(dir, filename)); err != nil {
		return "", apperr.Internal("could not save file", err)
	}

	return fmt.Sprintf("%s/%s", UploadURLPrefix, filename), nil
}

// removeUploads deletes files written by saveImage when the request that
// carried them fails.
func removeUploads(dir string, urls []string) {
	for _, u := range urls {
		_ = os.Remove(filepath.Join(dir, strings.TrimPrefix(u, UploadURLPrefix+"/")))
	}
}
