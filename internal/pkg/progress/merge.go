package progress

import (
	"github.com/ManuelReschke/CatalogFox/app/models"
)

// StreamPayload is one progress event as seen by a stream subscriber. It is
// seeded from the durable job row and overlaid with the ephemeral snapshot.
type StreamPayload struct {
	JobID            string  `json:"job_id"`
	Status           string  `json:"status"`
	Progress         int     `json:"progress"`
	ProcessedRecords int     `json:"processed_records"`
	TotalRecords     int     `json:"total_records"`
	ErrorMessage     *string `json:"error_message"`
	Phase            string  `json:"phase,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// MergeDurable builds the subscriber payload for one poll tick. Durable
// fields seed the payload with nil numerics defaulted to 0; when a snapshot
// exists its fields overlay one by one. The processed/total counters keep
// the durable value when the job row already carries one, since the durable
// row is committed per batch and the snapshot only adds freshness between
// commits.
func MergeDurable(job *models.ImportJob, snap Snapshot, ok bool) StreamPayload {
	payload := StreamPayload{
		JobID:            job.ID,
		Status:           string(job.Status),
		Progress:         job.Progress,
		ProcessedRecords: job.ProcessedRecords,
		ErrorMessage:     job.ErrorMessage,
	}
	if job.TotalRecords != nil {
		payload.TotalRecords = *job.TotalRecords
	}

	if !ok {
		return payload
	}

	if snap.Status != "" {
		payload.Status = snap.Status
	}
	if snap.Progress != nil {
		payload.Progress = *snap.Progress
	}
	if snap.Total != nil && job.TotalRecords == nil {
		payload.TotalRecords = *snap.Total
	}
	if snap.Phase != "" {
		payload.Phase = snap.Phase
	}
	if snap.Message != "" {
		payload.Message = snap.Message
	}
	return payload
}
