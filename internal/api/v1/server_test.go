package apiv1

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/app/repository"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/webhook"
)

type fakeProductRepo struct {
	products map[uint]*models.Product
	nextID   uint
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uint]*models.Product), nextID: 1}
}

func (r *fakeProductRepo) Create(p *models.Product) error {
	p.ID = r.nextID
	r.nextID++
	p.SKUNormalized = models.NormalizeSKU(p.SKU)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	clone := *p
	r.products[p.ID] = &clone
	return nil
}

func (r *fakeProductRepo) GetByID(id uint) (*models.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeProductRepo) GetBySKUNormalized(skuNormalized string) (*models.Product, error) {
	for _, p := range r.products {
		if p.SKUNormalized == skuNormalized {
			clone := *p
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProductRepo) List(filter repository.ProductFilter) ([]models.Product, int64, error) {
	var matched []models.Product
	for _, p := range r.products {
		if filter.SKU != "" && p.SKUNormalized != models.NormalizeSKU(filter.SKU) {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Description != "" {
			if p.Description == nil || !strings.Contains(strings.ToLower(*p.Description), strings.ToLower(filter.Description)) {
				continue
			}
		}
		if filter.Active != nil && p.Active != *filter.Active {
			continue
		}
		matched = append(matched, *p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	if filter.Size > 0 {
		offset := (filter.Page - 1) * filter.Size
		if offset > len(matched) {
			offset = len(matched)
		}
		end := offset + filter.Size
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[offset:end]
	}
	return matched, total, nil
}

func (r *fakeProductRepo) Update(p *models.Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	p.SKUNormalized = models.NormalizeSKU(p.SKU)
	p.UpdatedAt = time.Now()
	clone := *p
	r.products[p.ID] = &clone
	return nil
}

func (r *fakeProductRepo) Delete(id uint) error {
	delete(r.products, id)
	return nil
}

func (r *fakeProductRepo) DeleteAll() (int64, error) {
	n := int64(len(r.products))
	r.products = make(map[uint]*models.Product)
	return n, nil
}

func (r *fakeProductRepo) ExistingSKUs(skuNormalized []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, sku := range skuNormalized {
		if _, err := r.GetBySKUNormalized(sku); err == nil {
			out[sku] = struct{}{}
		}
	}
	return out, nil
}

func (r *fakeProductRepo) UpsertBatch(products []models.Product) error {
	for i := range products {
		p := products[i]
		p.SKUNormalized = models.NormalizeSKU(p.SKU)
		if existing, err := r.GetBySKUNormalized(p.SKUNormalized); err == nil {
			p.ID = existing.ID
		} else {
			p.ID = r.nextID
			r.nextID++
		}
		clone := p
		r.products[p.ID] = &clone
	}
	return nil
}

func (r *fakeProductRepo) FindBySKUNormalizedIn(skuNormalized []string) ([]models.Product, error) {
	var out []models.Product
	for _, sku := range skuNormalized {
		if p, err := r.GetBySKUNormalized(sku); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeWebhookRepo struct {
	webhooks map[uint]*models.Webhook
	nextID   uint
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{webhooks: make(map[uint]*models.Webhook), nextID: 1}
}

func (r *fakeWebhookRepo) Create(w *models.Webhook) error {
	w.ID = r.nextID
	r.nextID++
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	clone := *w
	r.webhooks[w.ID] = &clone
	return nil
}

func (r *fakeWebhookRepo) GetByID(id uint) (*models.Webhook, error) {
	w, ok := r.webhooks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *w
	return &clone, nil
}

func (r *fakeWebhookRepo) List() ([]models.Webhook, error) {
	var out []models.Webhook
	for _, w := range r.webhooks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeWebhookRepo) Update(w *models.Webhook) error {
	if _, ok := r.webhooks[w.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	w.UpdatedAt = time.Now()
	clone := *w
	r.webhooks[w.ID] = &clone
	return nil
}

func (r *fakeWebhookRepo) Delete(id uint) error {
	delete(r.webhooks, id)
	return nil
}

func (r *fakeWebhookRepo) FindEnabledByEventType(eventType string) ([]models.Webhook, error) {
	var out []models.Webhook
	for _, w := range r.webhooks {
		if w.Enabled && w.EventType == eventType {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) FindEnabledByIDs(ids []uint) ([]models.Webhook, error) {
	var out []models.Webhook
	for _, id := range ids {
		if w, ok := r.webhooks[id]; ok && w.Enabled {
			out = append(out, *w)
		}
	}
	return out, nil
}

type fakeImportJobRepo struct {
	jobs map[string]*models.ImportJob

	// vanishAfter makes GetByID report the row gone after that many calls,
	// to exercise streams whose job disappears between polls.
	vanishAfter int
	getCalls    int
}

func newFakeImportJobRepo() *fakeImportJobRepo {
	return &fakeImportJobRepo{jobs: make(map[string]*models.ImportJob)}
}

func (r *fakeImportJobRepo) Create(job *models.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.ImportJobStatusPending
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *fakeImportJobRepo) GetByID(id string) (*models.ImportJob, error) {
	r.getCalls++
	if r.vanishAfter > 0 && r.getCalls > r.vanishAfter {
		return nil, gorm.ErrRecordNotFound
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *job
	return &clone, nil
}

func (r *fakeImportJobRepo) ClaimForProcessing(id string) (*models.ImportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	job.Status = models.ImportJobStatusProcessing
	clone := *job
	return &clone, nil
}

func (r *fakeImportJobRepo) Save(job *models.ImportJob) error {
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *fakeImportJobRepo) MarkCompleted(job *models.ImportJob) error {
	job.Status = models.ImportJobStatusCompleted
	job.Progress = 100
	return r.Save(job)
}

func (r *fakeImportJobRepo) MarkFailed(job *models.ImportJob, message string) error {
	job.Status = models.ImportJobStatusFailed
	job.ErrorMessage = &message
	return r.Save(job)
}

type notifiedEvent struct {
	EventType string
	Payload   map[string]interface{}
	IDs       []uint
}

type fakeNotifier struct {
	events      []notifiedEvent
	probeResult webhook.ProbeResult
	probeErr    error
}

func (n *fakeNotifier) Notify(_ context.Context, eventType string, payload map[string]interface{}, webhookIDs ...uint) {
	n.events = append(n.events, notifiedEvent{EventType: eventType, Payload: payload, IDs: webhookIDs})
}

func (n *fakeNotifier) Probe(_ context.Context, _ string) (webhook.ProbeResult, error) {
	return n.probeResult, n.probeErr
}

type enqueuedJob struct {
	Type    jobqueue.JobType
	Payload map[string]interface{}
}

type fakeEnqueuer struct {
	jobs []enqueuedJob
	err  error
}

func (e *fakeEnqueuer) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.jobs = append(e.jobs, enqueuedJob{Type: jobType, Payload: payload})
	return &jobqueue.Job{ID: uuid.New().String(), Type: jobType, Payload: payload}, nil
}

type fakeProgressReader struct {
	snapshots map[string]progress.Snapshot
}

func (r *fakeProgressReader) Read(_ context.Context, jobID string) (progress.Snapshot, bool, error) {
	snap, ok := r.snapshots[jobID]
	return snap, ok, nil
}

type testHarness struct {
	app      *fiber.App
	server   *APIServer
	products *fakeProductRepo
	webhooks *fakeWebhookRepo
	jobs     *fakeImportJobRepo
	notifier *fakeNotifier
	enqueuer *fakeEnqueuer
	reader   *fakeProgressReader
	store    uploadstore.Store
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := uploadstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h := &testHarness{
		products: newFakeProductRepo(),
		webhooks: newFakeWebhookRepo(),
		jobs:     newFakeImportJobRepo(),
		notifier: &fakeNotifier{},
		enqueuer: &fakeEnqueuer{},
		reader:   &fakeProgressReader{snapshots: make(map[string]progress.Snapshot)},
		store:    store,
	}
	repos := &repository.Repositories{
		Product:   h.products,
		Webhook:   h.webhooks,
		ImportJob: h.jobs,
	}
	h.server = NewAPIServer(repos, h.notifier, h.reader, h.enqueuer, store)
	h.server.pollInterval = 10 * time.Millisecond

	h.app = fiber.New()
	RegisterHandlers(h.app.Group("/api/v1"), h.server)
	return h
}
