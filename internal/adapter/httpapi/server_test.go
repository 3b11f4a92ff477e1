package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dyncron/internal/adapter/store/sqlitestore"
	"dyncron/internal/cronjob"
	"dyncron/internal/platform/sqlite"
)

const schema = `CREATE TABLE cron_jobs (
	name        TEXT PRIMARY KEY,
	spec        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	handler     TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL
)`

type stubRegistry struct {
	refreshed int
	status    map[string]bool
}

func (s *stubRegistry) Refresh(ctx context.Context) { s.refreshed++ }
func (s *stubRegistry) Status() map[string]bool     { return s.status }

func newTestServer(t *testing.T) (*gin.Engine, cronjob.Store, *stubRegistry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tdb := sqlite.NewTestDBInMemory(t)
	tdb.MustSeedData(t, schema)
	store := sqlitestore.New(tdb.TxRunner)

	reg := &stubRegistry{status: map[string]bool{}}
	srv := New(store, reg, slog.Default())
	return srv.Router(), store, reg
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedJob(t *testing.T, store cronjob.Store, name string, active bool) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), cronjob.Definition{
		Name:      name,
		Spec:      "0 */5 * * * *",
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListJobs(t *testing.T) {
	router, store, _ := newTestServer(t)
	seedJob(t, store, "alpha", true)
	seedJob(t, store, "bravo", false)

	rec := doJSON(t, router, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var defs []cronjob.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.Len(t, defs, 2)

	rec = doJSON(t, router, http.MethodGet, "/api/jobs/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "alpha", defs[0].Name)
}

func TestGetJob_NotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateJob(t *testing.T) {
	router, store, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs", gin.H{
		"name": "nightly", "spec": "0 0 2 * * *", "handler": "jobs.backup",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	def, err := store.Get(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, "0 0 2 * * *", def.Spec)
	assert.True(t, def.Active, "active defaults to true")
}

func TestCreateJob_InvalidSpec(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs", gin.H{
		"name": "bad", "spec": "not-a-cron",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_MissingFields(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs", gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_DuplicateConflict(t *testing.T) {
	router, store, _ := newTestServer(t)
	seedJob(t, store, "dup", true)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs", gin.H{
		"name": "dup", "spec": "0 * * * * *",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateJob_PartialPatch(t *testing.T) {
	router, store, _ := newTestServer(t)
	seedJob(t, store, "patchme", true)

	rec := doJSON(t, router, http.MethodPatch, "/api/jobs/patchme", gin.H{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	def, err := store.Get(context.Background(), "patchme")
	require.NoError(t, err)
	assert.False(t, def.Active)
	assert.Equal(t, "0 */5 * * * *", def.Spec, "unpatched fields keep their value")
}

func TestUpdateJob_InvalidSpecRejected(t *testing.T) {
	router, store, _ := newTestServer(t)
	seedJob(t, store, "patchme", true)

	rec := doJSON(t, router, http.MethodPatch, "/api/jobs/patchme", gin.H{
		"spec": "banana",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	def, err := store.Get(context.Background(), "patchme")
	require.NoError(t, err)
	assert.Equal(t, "0 */5 * * * *", def.Spec)
}

func TestUpdateJob_NotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPatch, "/api/jobs/missing", gin.H{"active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteJob(t *testing.T) {
	router, store, _ := newTestServer(t)
	seedJob(t, store, "gone", true)

	rec := doJSON(t, router, http.MethodDelete, "/api/jobs/gone", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/jobs/gone", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchedules(t *testing.T) {
	router, _, reg := newTestServer(t)
	reg.status = map[string]bool{"alpha": true, "beta": false}

	rec := doJSON(t, router, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, reg.status, status)
}

func TestRefresh(t *testing.T) {
	router, _, reg := newTestServer(t)
	reg.status = map[string]bool{"alpha": true}

	rec := doJSON(t, router, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reg.refreshed)

	var status map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status["alpha"])
}
