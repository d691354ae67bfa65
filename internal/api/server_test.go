package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/config"
	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/job"
	"github.com/rodforge/supplier-import/internal/metrics"
	"github.com/rodforge/supplier-import/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

const productPage = `<script type="application/ld+json">
{"@type":"Product","name":"Vanguard Casting Rod","sku":"VG-70","brand":{"name":"Rodforge"},
 "offers":{"price":"129.99","priceCurrency":"USD"}}
</script>`

type stubFetcher struct {
	mu      sync.Mutex
	results map[string]importer.FetchResult
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{results: make(map[string]importer.FetchResult)}
}

func (f *stubFetcher) page(url, body string) {
	f.results[url] = importer.FetchResult{URL: url, StatusCode: 200, Body: []byte(body)}
}

func (f *stubFetcher) Fetch(_ context.Context, req importer.FetchRequest) (importer.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[req.URL]
	if !ok {
		return importer.FetchResult{}, fmt.Errorf("no stub for %s", req.URL)
	}
	return result, nil
}

type stubSink struct {
	mu    sync.Mutex
	items []importer.NormalizedItem
}

func (s *stubSink) CreateItem(_ context.Context, item importer.NormalizedItem) (importer.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return importer.CreateResult{Status: importer.CreateStatusCreated, ID: fmt.Sprintf("item-%d", len(s.items))}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n atomic.Int32 }

func (g *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("job-%d", g.n.Add(1)), nil
}

func rodTemplate() importer.Template {
	return importer.Template{
		ID:   "rods-v1",
		Name: "Rods",
		Fields: []importer.TemplateField{
			{Key: "rods_length", Label: "Length", Type: importer.FieldTypeFeetInches},
			{Key: "rods_power", Label: "Power", Type: importer.FieldTypeText},
		},
	}
}

type fixture struct {
	server  *Server
	jobs    *memory.JobStore
	aliases *memory.AliasStore
}

func newFixture(t *testing.T, fetcher importer.Fetcher, cfg config.Config) fixture {
	t.Helper()
	jobs := memory.NewJobStore()
	aliases := memory.NewAliasStore()
	orch, err := job.New(job.Deps{
		Jobs:      jobs,
		Aliases:   aliases,
		Templates: memory.NewTemplateStore(rodTemplate()),
		Sink:      &stubSink{},
		Fetcher:   fetcher,
		Clock:     fixedClock{t: time.Unix(1700000000, 0).UTC()},
		IDs:       &seqIDs{},
		Logger:    zap.NewNop(),
	}, job.Config{})
	require.NoError(t, err)
	return fixture{
		server:  NewServer(orch, zap.NewNop(), cfg),
		jobs:    jobs,
		aliases: aliases,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestSubmitImportAccepted(t *testing.T) {
	t.Parallel()
	fetcher := newStubFetcher()
	fetcher.page("https://supplier.example.com/p/vg70", productPage)
	fx := newFixture(t, fetcher, config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports", importRequest{
		TemplateID: "rods-v1",
		URLs:       []string{"https://supplier.example.com/p/vg70"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	payload := decodeBody(t, rec)
	jobID, _ := payload["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", payload["status"])

	require.Eventually(t, func() bool {
		status := doJSON(t, fx.server.Handler(), http.MethodGet, "/v1/imports/"+jobID+"/status", nil)
		if status.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Job importer.ImportJob `json:"job"`
		}
		if err := json.Unmarshal(status.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Job.Status == importer.JobStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitImportValidation(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, newStubFetcher(), config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports", importRequest{URLs: []string{"https://x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports", importRequest{TemplateID: "rods-v1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/imports", bytes.NewBufferString("{not json"))
	badRec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(badRec, req)
	assert.Equal(t, http.StatusBadRequest, badRec.Code)
}

func TestGetStatusUnknownJob(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, newStubFetcher(), config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodGet, "/v1/imports/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelImport(t *testing.T) {
	t.Parallel()
	fetcher := newStubFetcher()
	fetcher.page("https://supplier.example.com/p/vg70", productPage)
	fx := newFixture(t, fetcher, config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports", importRequest{
		TemplateID: "rods-v1",
		URLs:       []string{"https://supplier.example.com/p/vg70"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)

	require.Eventually(t, func() bool {
		j, err := fx.jobs.GetJob(context.Background(), jobID)
		return err == nil && j.Status.Terminal()
	}, 3*time.Second, 10*time.Millisecond)

	cancelRec := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, cancelRec.Code)
	payload := decodeBody(t, cancelRec)
	assert.Equal(t, true, payload["already_finished"])

	missing := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/imports/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestPreview(t *testing.T) {
	t.Parallel()
	fetcher := newStubFetcher()
	fetcher.page("https://supplier.example.com/p/vg70", productPage)
	fx := newFixture(t, fetcher, config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/preview", previewRequest{
		TemplateID: "rods-v1",
		URL:        "https://supplier.example.com/p/vg70",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result job.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Vanguard Casting Rod", result.Records[0].Item.Title)
	assert.Equal(t, "VG-70", result.Records[0].Item.SKU)

	missing := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/preview", previewRequest{
		TemplateID: "nope",
		URL:        "https://supplier.example.com/p/vg70",
	})
	assert.Equal(t, http.StatusNotFound, missing.Code)

	invalid := doJSON(t, fx.server.Handler(), http.MethodPost, "/v1/preview", previewRequest{URL: "https://x"})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestPutAlias(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, newStubFetcher(), config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodPut, "/v1/templates/rods-v1/aliases", aliasRequest{
		Label:    "Blank Length:",
		FieldKey: "rods_length",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The label arrives raw from the operator; the store keeps the
	// normalized form the mapper looks up.
	entry, err := fx.aliases.GetAlias(context.Background(), "rods-v1", "blank length")
	require.NoError(t, err)
	assert.Equal(t, "rods_length", entry.FieldKey)
	assert.Equal(t, importer.AliasSourceManual, entry.Source)

	invalid := doJSON(t, fx.server.Handler(), http.MethodPut, "/v1/templates/rods-v1/aliases", aliasRequest{Label: "x"})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, newStubFetcher(), config.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, fx.server.Handler(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := doJSON(t, fx.server.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	fx := newFixture(t, newStubFetcher(), cfg)

	rec := doJSON(t, fx.server.Handler(), http.MethodGet, "/v1/imports/any/status", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/imports/any/status", nil)
	req.Header.Set("X-API-Key", "secret")
	authed := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(authed, req)
	assert.Equal(t, http.StatusNotFound, authed.Code)

	// Health endpoints stay open.
	health := doJSON(t, fx.server.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, newStubFetcher(), config.Config{})

	rec := doJSON(t, fx.server.Handler(), http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
