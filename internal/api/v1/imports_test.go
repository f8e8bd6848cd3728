package apiv1

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
)

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadProducts(t *testing.T) {
	h := newTestHarness(t)

	resp, err := h.app.Test(uploadRequest(t, "catalog.csv", "name,sku\nWidget,WID-001\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var job models.ImportJob
	decodeBody(t, resp, &job)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ImportJobStatusPending, job.Status)
	require.NotNil(t, job.OriginalFilename)
	assert.Equal(t, "catalog.csv", *job.OriginalFilename)

	stored, err := h.jobs.GetByID(job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FilePath)

	require.Len(t, h.enqueuer.jobs, 1)
	assert.Equal(t, jobqueue.JobTypeCSVImport, h.enqueuer.jobs[0].Type)
	assert.Equal(t, job.ID, h.enqueuer.jobs[0].Payload["import_job_id"])
}

func TestUploadProductsRejectsNonCSV(t *testing.T) {
	h := newTestHarness(t)

	resp, err := h.app.Test(uploadRequest(t, "catalog.xlsx", "not a csv"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Only CSV files are supported.", body["message"])
	assert.Empty(t, h.enqueuer.jobs)
}

func TestUploadProductsAcceptsUppercaseExtension(t *testing.T) {
	h := newTestHarness(t)

	resp, err := h.app.Test(uploadRequest(t, "CATALOG.CSV", "name,sku\nWidget,WID-001\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUploadProductsRejectsEmptyFile(t *testing.T) {
	h := newTestHarness(t)

	resp, err := h.app.Test(uploadRequest(t, "catalog.csv", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Uploaded file is empty.", body["message"])
	assert.Empty(t, h.enqueuer.jobs)
}

func TestUploadProductsMissingFile(t *testing.T) {
	h := newTestHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/upload", nil)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadKeyIsUniquePerUpload(t *testing.T) {
	first := uploadKey("catalog.csv")
	second := uploadKey("catalog.csv")
	assert.NotEqual(t, first, second)
	assert.Contains(t, first, "_catalog.csv")
}

func TestUploadKeyStripsDirectories(t *testing.T) {
	key := uploadKey("../../etc/passwd.csv")
	assert.Contains(t, key, "_passwd.csv")
	assert.NotContains(t, key, "..")
}
