package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedforge/harvester/internal/config"
	"github.com/feedforge/harvester/internal/engine/scripted"
	"github.com/feedforge/harvester/internal/generate"
	"github.com/feedforge/harvester/internal/harvest"
	"github.com/feedforge/harvester/internal/metrics"
	"github.com/feedforge/harvester/internal/otp"
	publisherMemory "github.com/feedforge/harvester/internal/publisher/memory"
	"github.com/feedforge/harvester/internal/scrape"
	"github.com/feedforge/harvester/internal/sessions"
	"github.com/feedforge/harvester/internal/status"
	storageMemory "github.com/feedforge/harvester/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type stubGenerator struct {
	output string
}

func (g *stubGenerator) Generate(context.Context, string, []byte) (string, error) {
	return g.output, nil
}

type seqIDs struct {
	n int
}

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("entry-%d", s.n), nil
}

type fixture struct {
	server     *Server
	controller *scrape.Controller
	registry   *storageMemory.Store
}

func newFixture(t *testing.T, engine harvest.Engine) *fixture {
	t.Helper()

	clk := &tickingClock{now: time.Unix(1700000000, 0).UTC()}
	registry := storageMemory.NewStore(clk)
	tracker := status.NewTracker(50)
	otpHandler := otp.NewHandler(clk)
	pub := publisherMemory.New()

	controller := scrape.NewController(
		engine, registry, tracker, otpHandler, pub, clk,
		scrape.Config{PublishTopic: "sessions.completed"}, nil,
	)

	catalog := sessions.NewCatalog(registry)
	generator := generate.NewService(
		catalog, registry, storageMemory.NewBlobStore(),
		&stubGenerator{output: "[POST]\nGenerated text.\n[IMAGE]\nGenerated visual."},
		&seqIDs{}, clk, nil,
	)

	cfg := config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
	}
	server := NewServer(controller, catalog, registry, registry, generator, nil, cfg, nil)
	return &fixture{server: server, controller: controller, registry: registry}
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitForState(t *testing.T, state harvest.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.controller.Status().State == state
	}, 2*time.Second, 5*time.Millisecond)
}

func demoEngine(posts int) *scripted.Engine {
	batch := make([]harvest.Post, 0, posts)
	for i := 0; i < posts; i++ {
		batch = append(batch, harvest.Post{
			Author:  fmt.Sprintf("Author %d", i+1),
			Content: fmt.Sprintf("post %d", i+1),
			Likes:   10 * (i + 1),
		})
	}
	return &scripted.Engine{
		Steps:  []scripted.Step{{Progress: "Loading feed..."}},
		Result: harvest.HarvestResult{Posts: batch},
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartScrapeAcceptedThenConflict(t *testing.T) {
	t.Parallel()

	engine := &scripted.Engine{
		Steps:  []scripted.Step{{Challenge: true}},
		Result: harvest.HarvestResult{},
	}
	f := newFixture(t, engine)

	rec := f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	f.waitForState(t, harvest.StateWaitingOTP)

	rec = f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/v1/scrape/otp", []byte(`{"code":"482913"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForState(t, harvest.StateCompleted)
}

func TestScrapeStatusReflectsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(3))

	rec := f.do(http.MethodGet, "/v1/scrape/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap harvest.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, harvest.StateIdle, snap.State)

	rec = f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForState(t, harvest.StateCompleted)

	rec = f.do(http.MethodGet, "/v1/scrape/status", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, harvest.StateCompleted, snap.State)
	require.NotEmpty(t, snap.Logs)
}

func TestSubmitOTPWithoutChallengeConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodPost, "/v1/scrape/otp", []byte(`{"code":"123456"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitOTPRequiresCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodPost, "/v1/scrape/otp", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelWithoutJobConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodPost, "/v1/scrape/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListSessionsIncludesGeneralEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(2))
	rec := f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForState(t, harvest.StateCompleted)

	rec = f.do(http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Sessions []harvest.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Sessions, 2)
	require.Equal(t, int64(0), payload.Sessions[0].Timestamp)
	require.Equal(t, "General (All Data)", payload.Sessions[0].Label)
}

func TestListSessionPosts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(3))
	rec := f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForState(t, harvest.StateCompleted)

	sessionsList, err := f.registry.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessionsList, 1)
	ts := sessionsList[0].Timestamp

	rec = f.do(http.MethodGet, fmt.Sprintf("/v1/sessions/%d/posts", ts), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Posts []harvest.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Posts, 3)
	require.GreaterOrEqual(t, payload.Posts[0].Likes, payload.Posts[1].Likes)

	// Timestamp zero selects all posts.
	rec = f.do(http.MethodGet, "/v1/sessions/0/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/sessions/12345/posts", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v1/sessions/abc/posts", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateTrendAndHistoryLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(2))

	body := []byte(`{"mode":"trend","session_timestamp":0,"topic":"shipping"}`)
	rec := f.do(http.MethodPost, "/v1/generate", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result harvest.GenerationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "Generated text.", result.Content)
	require.Equal(t, "Generated visual.", result.ImagePrompt)

	rec = f.do(http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		History []harvest.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.History, 1)

	rec = f.do(http.MethodDelete, "/v1/history/"+payload.History[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/history/"+payload.History[0].ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateRejectsBadMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodPost, "/v1/generate", []byte(`{"mode":"freestyle"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateUnknownSessionNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodPost, "/v1/generate", []byte(`{"mode":"trend","session_timestamp":4242}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsRollup(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(4))
	rec := f.do(http.MethodPost, "/v1/scrape/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitForState(t, harvest.StateCompleted)

	rec = f.do(http.MethodPost, "/v1/generate", []byte(`{"mode":"trend","session_timestamp":0,"topic":"growth"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats harvest.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(4), stats.TotalScraped)
	require.Equal(t, int64(1), stats.TotalGenerated)
	require.NotEmpty(t, stats.RecentActivity)
	require.Equal(t, "generated", stats.RecentActivity[0].Action)
}

func TestAnalyzeUnconfiguredUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	rec := f.do(http.MethodGet, "/v1/analyze?topic=remote", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t, demoEngine(1))
	cfg := config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Auth:   config.AuthConfig{Enabled: true, APIKey: "sekrit"},
	}
	secured := NewServer(f.controller, sessions.NewCatalog(f.registry), f.registry, f.registry, nil, nil, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/scrape/status", nil)
	rec := httptest.NewRecorder()
	secured.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/scrape/status", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	secured.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
