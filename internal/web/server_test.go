package web_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/catalogsync/internal/config"
	"github.com/JonMunkholm/catalogsync/internal/core"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/registry"
	"github.com/JonMunkholm/catalogsync/internal/store"
	"github.com/JonMunkholm/catalogsync/internal/store/storetest"
	"github.com/JonMunkholm/catalogsync/internal/web"
	"github.com/JonMunkholm/catalogsync/internal/web/middleware"
)

const secret = "test-secret"

type harness struct {
	t      *testing.T
	svc    *core.Service
	pool   *jobs.Pool
	store  *store.Store
	server *web.Server
	token  string
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20, Timeout: 10 * time.Second},
		Security: config.SecurityConfig{JWTSecret: secret, RequireAuth: true},
	}
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	s, clock := storetest.New(t)
	q := s.Queue(false)
	svc := core.NewService(core.Deps{Catalog: s, Queue: q, Records: s, Registry: registry.Default()})
	svc.SetClock(clock.Now)

	token, err := middleware.IssueToken([]byte(secret), core.Principal{
		UserID:       "u1",
		Restaurants:  []string{"r1"},
		Capabilities: []core.Capability{core.CapImport, core.CapSync, core.CapConfigure, core.CapView},
	}, time.Hour)
	require.NoError(t, err)

	return &harness{
		t:      t,
		svc:    svc,
		pool:   jobs.NewPool(q, svc, jobs.PoolConfig{OnFailure: svc.OnJobFailed, DescribeError: core.DescribeError}),
		store:  s,
		server: web.NewServer(svc, cfg),
		token:  token,
	}
}

func (h *harness) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	return rec
}

func (h *harness) postJSON(path, body string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, path, []byte(body), "application/json")
}

func (h *harness) run() {
	h.t.Helper()
	for {
		ran, err := h.pool.RunOnce(context.Background(), "w1")
		require.NoError(h.t, err)
		if !ran {
			return
		}
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const importBody = `{"rows": [
	{"name": "Burger", "price": "9.99", "status": "active", "available": true,
	 "categories": [{"name": "Mains"}],
	 "visibility": {"DineIn": "active"}, "priceOptions": {"DineIn": "9.99"}},
	{"name": "Fries", "price": "3.50", "status": "active", "available": true,
	 "categories": [{"name": "Sides"}],
	 "visibility": {"DineIn": "active"}, "priceOptions": {"DineIn": "3.50"}}
]}`

func TestHealth(t *testing.T) {
	h := newHarness(t, testConfig())
	h.token = ""

	rec := h.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	type health struct {
		Status  string                   `json:"status"`
		Uploads core.UploadLimiterStatus `json:"uploads"`
	}
	body := decode[health](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, core.DefaultMaxConcurrentUploads, body.Uploads.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newHarness(t, testConfig())

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{"missing", "", "AUTH_MISSING_TOKEN"},
		{"garbage", "not-a-jwt", "AUTH_INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.token = tt.token
			rec := h.postJSON("/api/restaurants/r1/imports", importBody)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, decode[web.ErrorResponse](t, rec).Code)
		})
	}
}

func TestImportThenJobStatus(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.postJSON("/api/restaurants/r1/imports", importBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decode[map[string]string](t, rec)["jobId"]
	require.NotEmpty(t, jobID)

	h.run()

	rec = h.do(http.MethodGet, "/api/jobs/"+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[web.JobResponse](t, rec)
	assert.Equal(t, jobs.StatusCommitted, job.Status)
	assert.Equal(t, jobs.TypeSaveCsvData, job.Type)
	assert.Contains(t, string(job.Summary), `"rows":2`)
}

func TestImportErrors(t *testing.T) {
	h := newHarness(t, testConfig())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"other restaurant", "/api/restaurants/r2/imports", importBody, http.StatusForbidden, "AUTH001"},
		{"malformed body", "/api/restaurants/r1/imports", `{"rows": [`, http.StatusBadRequest, "REQ001"},
		{"unknown field", "/api/restaurants/r1/imports", `{"items": []}`, http.StatusBadRequest, "REQ001"},
		{"no rows", "/api/restaurants/r1/imports", `{"rows": []}`, http.StatusUnprocessableEntity, "VAL003"},
		{"unknown menu", "/api/restaurants/r1/menus/m-404/created", `{"menuType": "Catering"}`, http.StatusNotFound, "NF001"},
		{"unknown tax rate", "/api/restaurants/r1/tax-rates/t-404/changed", `{"isNew": true}`, http.StatusNotFound, "NF001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.postJSON(tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[web.ErrorResponse](t, rec).Code)
		})
	}

	rec := h.do(http.MethodGet, "/api/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportRejectsInvalidRowWithIssues(t *testing.T) {
	h := newHarness(t, testConfig())

	body := strings.Replace(importBody, `"price": "9.99"`, `"price": "-1"`, 1)
	rec := h.postJSON("/api/restaurants/r1/imports", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	resp := decode[web.ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Issues)
	assert.Equal(t, 1, resp.Issues[0].Row)
}

func multipartBody(t *testing.T, field, name string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadSpreadsheet(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.do(http.MethodGet, "/api/restaurants/r1/template", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "r1-catalog-template.csv")
	header, err := csv.NewReader(rec.Body).Read()
	require.NoError(t, err)
	assert.Equal(t, ingest.ColItemPrice, header[6])

	var file bytes.Buffer
	w := csv.NewWriter(&file)
	require.NoError(t, w.Write(header))
	row := make([]string, len(header))
	copy(row, []string{"Mains", "", "", "", "Burger", "", "9.99", "active", "yes"})
	require.NoError(t, w.Write(row))
	w.Flush()

	body, contentType := multipartBody(t, "file", "menu.csv", file.Bytes())
	rec = h.do(http.MethodPost, "/api/restaurants/r1/uploads", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	receipt := decode[core.ImportReceipt](t, rec)
	assert.Equal(t, 1, receipt.Rows)

	rec = h.do(http.MethodGet, "/api/restaurants/r1/uploads?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	uploads := decode[[]web.UploadResponse](t, rec)
	require.Len(t, uploads, 1)
	assert.Equal(t, "menu.csv", uploads[0].FileName)
	assert.Equal(t, receipt.JobID, uploads[0].JobID)
}

func TestUploadErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	h := newHarness(t, cfg)

	body, contentType := multipartBody(t, "", "", nil)
	rec := h.do(http.MethodPost, "/api/restaurants/r1/uploads", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decode[web.ErrorResponse](t, rec).Code)

	body, contentType = multipartBody(t, "file", "big.csv", bytes.Repeat([]byte("a,b,c\n"), 100))
	rec = h.do(http.MethodPost, "/api/restaurants/r1/uploads", body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decode[web.ErrorResponse](t, rec).Code)

	body, contentType = multipartBody(t, "file", "menu.csv", []byte("Name,Price\n"))
	rec = h.do(http.MethodPost, "/api/restaurants/r1/uploads", body, contentType)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "FILE005", decode[web.ErrorResponse](t, rec).Code)
}

func TestAuthDisabledRunsAsSystem(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAuth = false
	h := newHarness(t, cfg)
	h.token = ""

	rec := h.postJSON("/api/restaurants/any-restaurant/imports", importBody)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestFailedJobCarriesSupportCode(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.postJSON("/api/restaurants/r1/pos-sync", `{"credentialsId": "cred-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decode[map[string]string](t, rec)["jobId"]

	h.run()

	rec = h.do(http.MethodGet, "/api/jobs/"+jobID, nil, "")
	job := decode[web.JobResponse](t, rec)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "(Code: EXT001)")
}
