package apiv1

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
)

// UploadProducts handles POST /products/upload. The file is persisted to the
// upload store, the import job is recorded as pending, and the actual work is
// handed to the background queue. The response is the freshly created job so
// clients can start polling the progress stream right away.
func (s *APIServer) UploadProducts(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "No file uploaded")
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		return jsonError(c, fiber.StatusBadRequest, "Only CSV files are supported.")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Failed to read uploaded file")
	}
	defer src.Close()

	key := uploadKey(fileHeader.Filename)
	written, err := s.store.Save(c.Context(), key, src)
	if err != nil {
		if errors.Is(err, uploadstore.ErrTooLarge) {
			return jsonError(c, fiber.StatusBadRequest,
				fmt.Sprintf("CSV exceeds maximum size of %dMB.", uploadstore.MaxUploadMB))
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to store uploaded file")
	}
	if written == 0 {
		if err := s.store.Remove(c.Context(), key); err != nil {
			log.Printf("[Upload] Failed to remove empty upload %s: %v", key, err)
		}
		return jsonError(c, fiber.StatusBadRequest, "Uploaded file is empty.")
	}

	filename := fileHeader.Filename
	contentType := fileHeader.Header.Get("Content-Type")
	job := &models.ImportJob{
		Status:           models.ImportJobStatusPending,
		FilePath:         &key,
		OriginalFilename: &filename,
	}
	if contentType != "" {
		job.ContentType = &contentType
	}
	if err := s.repos.ImportJob.Create(job); err != nil {
		if err := s.store.Remove(c.Context(), key); err != nil {
			log.Printf("[Upload] Failed to remove orphaned upload %s: %v", key, err)
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to create import job")
	}

	payload := jobqueue.CSVImportPayload{ImportJobID: job.ID}
	if _, err := s.enqueuer.EnqueueJob(jobqueue.JobTypeCSVImport, payload.ToMap()); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to enqueue import job")
	}

	return c.Status(fiber.StatusAccepted).JSON(job)
}

// uploadKey prefixes the client filename with a random token so concurrent
// uploads of the same file cannot collide in the store.
func uploadKey(filename string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf) + "_" + filepath.Base(filename)
}
