package apiv1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalogsync"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/provider"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

type stubClient struct {
	name string
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) FetchCatalogPage(_ context.Context, _ provider.PageRequest) (*provider.CatalogPage, error) {
	return &provider.CatalogPage{}, nil
}

func (s *stubClient) CheckHealth(_ context.Context) bool { return true }

type apiFixture struct {
	app   *fiber.App
	repos *repository.Repositories
	redis *redis.Client
	db    *gorm.DB
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CatalogProvider{},
		&models.CatalogBundle{},
		&models.CatalogBundleCountry{},
		&models.SyncJob{},
		&models.CatalogMetadata{},
	))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repos := repository.NewRepositories(db)
	repos.Queue = repository.NewQueueRepositoryWithClient(client)
	clients := []provider.Client{
		&stubClient{name: provider.NameESIMGo},
		&stubClient{name: provider.NameMaya},
	}
	service := catalogsync.NewService(clients, catalog.NewTransformer(), repos, client, nil, catalogsync.Config{
		LockTTL:        time.Minute,
		DueThreshold:   time.Hour,
		StuckThreshold: 30 * time.Minute,
		Retention:      7 * 24 * time.Hour,
	})

	registry := syncqueue.NewRegistry()
	queue := syncqueue.NewQueue(client, repos.SyncJob, registry, syncqueue.Config{})
	manager := syncqueue.NewManager(queue, repos.SyncJob, service)

	app := fiber.New()
	api := NewSyncAPI(manager, service, repos)
	api.RegisterRoutes(app.Group("/api/v1"))
	app.Get("/health", HealthHandler(db, client, queue))

	return &apiFixture{app: app, repos: repos, redis: client, db: db}
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestPostFullSyncAccepted(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, string(models.SyncJobTypeFull), body["job_type"])

	// The manual job landed in the queue.
	n, err := f.redis.LLen(context.Background(), syncqueue.JobQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// Two triggers in quick succession must conflict even though no worker
// has picked up the first job yet.
func TestPostFullSyncTriggerTwiceConflicts(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Only the first trigger reached the queue.
	n, err := f.redis.LLen(context.Background(), syncqueue.JobQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostFullSyncConflictsWithActiveJob(t *testing.T) {
	f := newAPIFixture(t)

	running := &models.SyncJob{
		JobType:  models.SyncJobTypeFull,
		Status:   models.SyncJobStatusRunning,
		Provider: provider.NameESIMGo,
	}
	require.NoError(t, f.repos.SyncJob.Create(context.Background(), running))

	resp := postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// A different provider is unaffected.
	resp = postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameMaya})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}

func TestPostFullSyncValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/full", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: "nope"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo, Priority: "urgent"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPostGroupSyncRequiresGroup(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/group", GroupSyncRequest{Provider: provider.NameESIMGo})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.app, "/api/v1/sync/group", GroupSyncRequest{Provider: provider.NameESIMGo, BundleGroup: "Standard Fixed"})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}

func TestPostCountrySyncValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/country", CountrySyncRequest{Provider: provider.NameESIMGo, Country: "F1"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, f.app, "/api/v1/sync/country", CountrySyncRequest{Provider: provider.NameESIMGo, Country: "FR"})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}

func TestGetStatus(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body, "queue")
	assert.Contains(t, body, "active_jobs")
	assert.Contains(t, body, "job_stats")
	assert.Contains(t, body, "providers")
}

func TestGetHistoryFiltersByStatus(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	done := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusCompleted, Provider: provider.NameESIMGo}
	require.NoError(t, f.repos.SyncJob.Create(ctx, done))
	failed := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusFailed, Provider: provider.NameESIMGo}
	require.NoError(t, f.repos.SyncJob.Create(ctx, failed))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/history?status=failed", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
}

func TestPauseAndResume(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/pause", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["paused"])

	resp = postJSON(t, f.app, "/api/v1/sync/resume", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody(t, resp)["paused"])
}

func TestPostCleanupStuck(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	stuck := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusRunning, Provider: provider.NameESIMGo}
	require.NoError(t, f.repos.SyncJob.Create(ctx, stuck))
	past := time.Now().Add(-2 * time.Hour)
	stuck.StartedAt = &past
	require.NoError(t, f.repos.SyncJob.Update(ctx, stuck))

	resp := postJSON(t, f.app, "/api/v1/sync/cleanup-stuck", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decodeBody(t, resp)["cancelled"])
}

func TestQueueStateInspectionAndPurge(t *testing.T) {
	f := newAPIFixture(t)

	resp := postJSON(t, f.app, "/api/v1/sync/full", FullSyncRequest{Provider: provider.NameESIMGo})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/queue", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["waiting"])
	assert.Equal(t, float64(1), body["job_keys"])

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sync/queue", nil)
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	n, err := f.redis.LLen(context.Background(), syncqueue.JobQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}
