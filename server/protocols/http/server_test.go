package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/convert"
	"github.com/danyguancha/soft-eps-v2-sub000/server/dataset"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
	"github.com/danyguancha/soft-eps-v2-sub000/server/indicators"
	"github.com/danyguancha/soft-eps-v2-sub000/server/join"
	"github.com/danyguancha/soft-eps-v2-sub000/server/paths"
	"github.com/danyguancha/soft-eps-v2-sub000/server/query"
	"github.com/danyguancha/soft-eps-v2-sub000/server/registry"
)

type stubEngine struct{}

func (stubEngine) Execute(ctx context.Context, sql string) (*engine.Result, error) {
	if strings.HasPrefix(sql, "SELECT COUNT(*)") {
		return &engine.Result{Columns: []string{"count"}, Rows: [][]interface{}{{int64(1)}}}, nil
	}
	return &engine.Result{Columns: []string{"id", "name"}, Rows: [][]interface{}{{"1", "ana"}}, RowCount: 1}, nil
}

func (stubEngine) Describe(ctx context.Context, sql string) ([]engine.Column, error) {
	return []engine.Column{{Name: "id", Type: "VARCHAR"}, {Name: "name", Type: "VARCHAR"}}, nil
}

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	pm := paths.NewManager(t.TempDir())
	require.NoError(t, pm.EnsureDirectoryStructure())

	logger := zerolog.Nop()
	eng := stubEngine{}

	cc := cache.New(pm, logger)
	pipeline := convert.New(cc, eng, &config.ConvertConfig{
		SpreadsheetDirectMB: 15,
		TimeoutMinMinutes:   2,
		TimeoutMaxMinutes:   20,
		MBPerMinute:         8,
	}, logger)
	reg := registry.New(eng, nil, logger)
	executor := query.NewExecutor(eng, reg, pipeline, logger)
	joiner := join.New(eng, reg, logger)
	svc := dataset.NewService(cc, pipeline, reg, executor, joiner, logger)
	profiler := indicators.New(eng, reg, logger)

	srv := NewServer(&config.HTTPConfig{Enabled: true}, svc, profiler, nil, pm, logger)
	return srv.routes()
}

func uploadRequest(t *testing.T, logicalID, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	if logicalID != "" {
		require.NoError(t, mw.WriteField("logical_id", logicalID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadThenQuery(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "upload-1", "people.csv", "id,name\n1,ana\n"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "upload-1", body["logical_id"])
	assert.Equal(t, false, body["from_cache"])

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/datasets/upload-1/query", strings.NewReader(`{"page":1,"page_size":10}`))
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decodeBody(t, rec)
	assert.Equal(t, float64(1), page["total_rows"])
	assert.Equal(t, float64(10), page["page_size"])
}

func TestUploadTwiceHitsCache(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "upload-1", "people.csv", "id,name\n1,ana\n"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "upload-2", "people.csv", "id,name\n1,ana\n"))
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, true, decodeBody(t, rec)["from_cache"])
}

func TestQueryUnknownDatasetIs404(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/datasets/ghost/query", strings.NewReader(`{}`))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "registry.miss", errObj["code"])
	assert.NotEmpty(t, errObj["message"])
}

func TestJoinInvalidSpecIs400(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/joins", strings.NewReader(`{"left_id":"a","right_id":"b"}`))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "join.invalid_spec", errObj["code"])
}

func TestUploadWithoutFileIs400(t *testing.T) {
	mux := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("logical_id", "upload-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/datasets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheStatsAndList(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "upload-1", "people.csv", "id,name\n1,ana\n"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["entries"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	datasets := decodeBody(t, rec)["datasets"].([]interface{})
	assert.Len(t, datasets, 1)
}

func TestEvictEndpoint(t *testing.T) {
	mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "upload-1", "people.csv", "id,name\n1,ana\n"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/datasets/upload-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/datasets/upload-1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
