package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/app/repository"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
)

// DeliveryTimeout bounds one HTTP delivery attempt. Retries across attempts
// are owned by the job queue, not by the dispatcher.
const DeliveryTimeout = 10 * time.Second

// JobEnqueuer is the dispatch capability handed to the dispatcher at
// construction time. *jobqueue.Queue satisfies it.
type JobEnqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Dispatcher resolves subscribers for an event and hands each one an
// independent delivery job. Deliveries are best-effort relative to the
// mutating operation that triggered them: enqueue failures are logged and
// never surfaced to the caller.
type Dispatcher struct {
	webhooks repository.WebhookRepository
	enqueuer JobEnqueuer
	client   *http.Client
}

// NewDispatcher creates a dispatcher over the webhook repository and a job
// enqueue capability.
func NewDispatcher(webhooks repository.WebhookRepository, enqueuer JobEnqueuer) *Dispatcher {
	return &Dispatcher{
		webhooks: webhooks,
		enqueuer: enqueuer,
		client:   &http.Client{Timeout: DeliveryTimeout},
	}
}

// Notify fans payload out to the matching subscribers. With explicit ids the
// target set is those ids restricted to enabled=true; otherwise every
// enabled subscriber of eventType. No match is a no-op, not an error.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, payload map[string]interface{}, webhookIDs ...uint) {
	var (
		webhooks []models.Webhook
		err      error
	)
	if len(webhookIDs) > 0 {
		webhooks, err = d.webhooks.FindEnabledByIDs(webhookIDs)
	} else {
		webhooks, err = d.webhooks.FindEnabledByEventType(eventType)
	}
	if err != nil {
		log.Errorf("[Webhook] Failed to resolve subscribers for %s: %v", eventType, err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	for _, hook := range webhooks {
		delivery := jobqueue.WebhookDeliveryPayload{
			EventType: eventType,
			Payload:   payload,
			WebhookID: hook.ID,
			URL:       hook.URL,
		}
		if _, err := d.enqueuer.EnqueueJob(jobqueue.JobTypeWebhookDelivery, delivery.ToMap()); err != nil {
			log.Errorf("[Webhook] Failed to enqueue %s delivery for webhook %d: %v", eventType, hook.ID, err)
		}
	}
}

// Deliver performs one HTTP delivery attempt. Any status >= 400 and any
// transport error are returned so the job queue retries with backoff;
// exhausted retries drop the delivery.
func (d *Dispatcher) Deliver(ctx context.Context, delivery jobqueue.WebhookDeliveryPayload) error {
	body, err := json.Marshal(map[string]interface{}{
		"event": delivery.EventType,
		"data":  delivery.Payload,
	})
	if err != nil {
		return jobqueue.Permanent(fmt.Errorf("marshal webhook body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(body))
	if err != nil {
		return jobqueue.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook to %s: %w", delivery.URL, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	durationMS := time.Since(start).Milliseconds()
	if resp.StatusCode >= 400 {
		log.Warnf("[Webhook] Delivery to %s failed (status %d, %dms)", delivery.URL, resp.StatusCode, durationMS)
		return fmt.Errorf("webhook endpoint %s returned status %d", delivery.URL, resp.StatusCode)
	}

	log.Infof("[Webhook] Delivered %s to %s in %dms", delivery.EventType, delivery.URL, durationMS)
	return nil
}

// QueueHandler adapts Deliver to the job queue handler contract.
func (d *Dispatcher) QueueHandler() jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.WebhookDeliveryPayloadFromMap(job.Payload)
		if err != nil {
			return jobqueue.Permanent(fmt.Errorf("invalid webhook delivery payload: %w", err))
		}
		return d.Deliver(ctx, *payload)
	}
}

// ProbeResult reports the outcome of a synchronous test delivery.
type ProbeResult struct {
	StatusCode     int    `json:"status_code"`
	ResponseTimeMS int64  `json:"response_time_ms"`
	Body           string `json:"body"`
}

// Probe fires the test payload at url and reports the endpoint's response.
// A transport-level failure returns an error; HTTP error statuses do not,
// since the caller wants to see them.
func (d *Dispatcher) Probe(ctx context.Context, url string) (ProbeResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"event": models.WebhookEventTest,
		"data":  map[string]string{"message": "This is a test payload"},
	})
	if err != nil {
		return ProbeResult{}, fmt.Errorf("marshal test payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ProbeResult{}, fmt.Errorf("build test request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("read test response: %w", err)
	}

	return ProbeResult{
		StatusCode:     resp.StatusCode,
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Body:           string(respBody),
	}, nil
}
