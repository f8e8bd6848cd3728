package apiv1

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
)

// StreamProgress handles GET /progress/:job_id as a server-sent event stream.
// It polls the durable job row and the ephemeral Redis snapshot once per
// interval and pushes the merged view. The stream ends after the event that
// carries a terminal status, so clients always see the final state.
func (s *APIServer) StreamProgress(c *fiber.Ctx) error {
	jobID := c.Params("job_id")

	if _, err := s.repos.ImportJob.GetByID(jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Import job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load import job")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// The fiber context is recycled once the handler returns, so the stream
	// body only uses values captured here.
	jobs := s.repos.ImportJob
	reader := s.reader
	interval := s.pollInterval

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		for {
			job, err := jobs.GetByID(jobID)
			if err != nil {
				writeSSE(w, "error", fiber.Map{
					"message": "Job not found",
					"job_id":  jobID,
				})
				return
			}

			snap, ok, err := reader.Read(ctx, jobID)
			if err != nil {
				snap, ok = progress.Snapshot{}, false
			}
			if !writeSSE(w, "progress", progress.MergeDurable(job, snap, ok)) {
				return
			}
			if job.Status.IsTerminal() {
				return
			}
			time.Sleep(interval)
		}
	}))
	return nil
}

// writeSSE emits one server-sent event and reports whether the client is
// still connected.
func writeSSE(w *bufio.Writer, event string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	return w.Flush() == nil
}
