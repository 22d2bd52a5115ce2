package handler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/oldphotos/api/internal/artifact"
	"github.com/oldphotos/api/internal/model"
	"github.com/oldphotos/api/internal/store"
	"github.com/oldphotos/api/internal/worker"
	"github.com/oldphotos/api/pkg/response"
)

const (
	maxUploadSize  = 50 * 1024 * 1024 // 50MB per file
	maxUploadFiles = 20
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".tiff": true,
	".bmp":  true,
}

type PhotoHandler struct {
	photos    *store.PhotoStore
	files     *artifact.Store
	invoker   *worker.Invoker
	validator *validator.Validate
}

func NewPhotoHandler(photos *store.PhotoStore, files *artifact.Store, invoker *worker.Invoker, v *validator.Validate) *PhotoHandler {
	return &PhotoHandler{
		photos:    photos,
		files:     files,
		invoker:   invoker,
		validator: v,
	}
}

// Upload handles POST /photos
func (h *PhotoHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Invalid multipart form", nil)
	}

	uploads := form.File["photos"]
	if len(uploads) == 0 {
		return response.ValidationError(c, "No photos in request", nil)
	}
	if len(uploads) > maxUploadFiles {
		return response.ValidationError(c, fmt.Sprintf("Too many files (max %d)", maxUploadFiles), nil)
	}

	// Validate everything before saving anything.
	for _, fh := range uploads {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			return response.ValidationError(c, "Unsupported file type. Supported: JPG, PNG, WEBP, TIFF, BMP", map[string]interface{}{
				"filename": fh.Filename,
			})
		}
		if fh.Size > maxUploadSize {
			return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
				"filename": fh.Filename,
				"fileSize": fh.Size,
			})
		}
	}

	created := make([]*model.Photo, 0, len(uploads))
	for _, fh := range uploads {
		name := h.files.NewUploadName(filepath.Ext(fh.Filename))
		path := h.files.UploadPath(name)
		if err := c.SaveFile(fh, path); err != nil {
			return response.ServiceError(c, "Failed to save file")
		}
		p := &model.Photo{
			ID:        uuid.NewString(),
			Filename:  name,
			Name:      fh.Filename,
			URL:       h.files.URLFor(path),
			CreatedAt: time.Now(),
			Path:      path,
		}
		h.photos.Add(p)
		created = append(created, p)
	}

	return response.Created(c, created)
}

// List handles GET /photos
func (h *PhotoHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.photos.List())
}

// Delete handles DELETE /photos/:id
func (h *PhotoHandler) Delete(c *fiber.Ctx) error {
	p, ok := h.photos.Delete(c.Params("id"))
	if !ok {
		return response.NotFound(c, "Photo not found")
	}
	h.files.Remove(p.Path)
	return okBody(c)
}

// DeleteAll handles DELETE /photos
func (h *PhotoHandler) DeleteAll(c *fiber.Ctx) error {
	for _, p := range h.photos.Clear() {
		h.files.Remove(p.Path)
	}
	return okBody(c)
}

// Import handles POST /photos/import: a finished result (or another
// upload) becomes a fresh source photo, so a restored image can be run
// through further steps.
func (h *PhotoHandler) Import(c *fiber.Ctx) error {
	var req model.ImportResultRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	src, ok := h.files.PathFor(req.ResultPath)
	if !ok {
		return response.ValidationError(c, "resultPath must point under /results or /uploads", nil)
	}
	if _, err := os.Stat(src); err != nil {
		return response.NotFound(c, "Artifact not found")
	}

	name := h.files.NewUploadName(filepath.Ext(src))
	dst := h.files.UploadPath(name)
	if err := h.files.Copy(src, dst); err != nil {
		return response.ServiceError(c, "Failed to import artifact")
	}

	p := &model.Photo{
		ID:        uuid.NewString(),
		Filename:  name,
		Name:      filepath.Base(src),
		URL:       h.files.URLFor(dst),
		CreatedAt: time.Now(),
		Path:      dst,
	}
	h.photos.Add(p)
	return response.Created(c, p)
}

// Crop handles POST /photos/:id/crop: the crop worker runs synchronously
// and its output is registered as a new photo.
func (h *PhotoHandler) Crop(c *fiber.Ctx) error {
	var req model.CropPhotoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	p, ok := h.photos.Get(c.Params("id"))
	if !ok {
		return response.NotFound(c, "Photo not found")
	}

	name := h.files.NewUploadName(".png")
	outPath := h.files.UploadPath(name)
	key := h.invoker.RunKey("crop")
	if _, err := h.invoker.Invoke(c.Context(), key, "crop.py", []string{p.Path, outPath, req.CropRect}); err != nil {
		return response.AIError(c, err.Error())
	}

	cropped := &model.Photo{
		ID:        uuid.NewString(),
		Filename:  name,
		Name:      p.Name + " (cropped)",
		URL:       h.files.URLFor(outPath),
		CreatedAt: time.Now(),
		Path:      outPath,
	}
	h.photos.Add(cropped)
	return response.OK(c, cropped)
}

// AutoCrop handles GET /auto-crop/:photoId: the heuristic worker reports
// content bounds in original-pixel coordinates.
func (h *PhotoHandler) AutoCrop(c *fiber.Ctx) error {
	p, ok := h.photos.Get(c.Params("photoId"))
	if !ok {
		return response.NotFound(c, "Photo not found")
	}

	key := h.invoker.RunKey("autocrop")
	out, err := h.invoker.Invoke(c.Context(), key, "auto_crop.py", []string{p.Path})
	if err != nil {
		return response.AIError(c, err.Error())
	}

	var bounds model.CropBounds
	if err := json.Unmarshal(out, &bounds); err != nil {
		return response.AIError(c, "auto-crop returned invalid output")
	}
	return response.OK(c, bounds)
}
