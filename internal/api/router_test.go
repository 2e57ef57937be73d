package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockcarpool/carpool/internal/api"
	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/auth"
	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
	"github.com/mockcarpool/carpool/internal/routing"
	"github.com/mockcarpool/carpool/internal/session"
	"github.com/mockcarpool/carpool/internal/suggest"
)

var places = map[string]geocoding.Place{
	"eiffel tower": {DisplayName: "Eiffel Tower, Paris", Coordinate: geo.Coordinate{Lat: 48.8584, Lon: 2.2945}},
	"louvre":       {DisplayName: "Louvre Museum, Paris", Coordinate: geo.Coordinate{Lat: 48.8606, Lon: 2.3376}},
}

type fakeSuggester struct{}

func (fakeSuggester) Stream(_ context.Context, text string, onUpdate func([]suggest.Suggestion)) error {
	onUpdate([]suggest.Suggestion{{Title: text + " Tower", Subtitle: "Paris"}})
	return nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, text string) (*geocoding.Place, error) {
	p, ok := places[strings.ToLower(geocoding.NormalizeQuery(text))]
	if !ok {
		return nil, &geocoding.Error{Provider: "fake", Code: "NOT_FOUND", Message: "no candidates", Err: geocoding.ErrNotFound}
	}
	return &p, nil
}

func (r fakeResolver) ResolveSuggestion(ctx context.Context, sg suggest.Suggestion) (*geocoding.Place, error) {
	return r.Resolve(ctx, sg.Title)
}

type fakeCalculator struct{}

func (fakeCalculator) ComputeRoute(_ context.Context, from, to geo.Coordinate) (*routing.Result, error) {
	return &routing.Result{
		Polyline:        []geo.Coordinate{from, {Lat: 48.8610, Lon: 2.3100}, to},
		DistanceMeters:  4712.3,
		DurationSeconds: 815.4,
		Provider:        "fake",
	}, nil
}

func testTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "carpool",
		Audience:   "carpool-sessions",
	})
}

type testEnv struct {
	router   http.Handler
	sessions *session.Manager
}

func newTestEnv(t *testing.T, maxSessions int) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	sessions := session.NewManager(session.ManagerConfig{
		Session: session.Config{
			Suggester:  fakeSuggester{},
			Resolver:   fakeResolver{},
			Calculator: fakeCalculator{},
			Debounce:   20 * time.Millisecond,
			Logger:     logger,
		},
		MaxSessions: maxSessions,
		Logger:      logger,
	})
	t.Cleanup(sessions.Shutdown)

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Sessions:  sessions,
		Tokens:    testTokenService(),
		Registry:  resilience.NewRegistry(),
	})
	return &testEnv{router: router, sessions: sessions}
}

func newTestRouter(t *testing.T) http.Handler {
	return newTestEnv(t, 0).router
}

// createSession opens a session through the API and returns its ID and token.
func createSession(t *testing.T, router http.Handler) (string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.SessionID, created.Token
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap), rec.Body.String())
	return snap
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/ops/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t, 0)
	createSession(t, env.router)

	rec := do(t, env.router, http.MethodGet, "/v1/ops/status", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "sessions", status.Subsystems[0].Name)
	require.NotNil(t, status.Subsystems[0].Detail)
	assert.Equal(t, "1 active", *status.Subsystems[0].Detail)
	assert.Empty(t, status.Providers)
}

func TestRouter_CreateSession(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/v1/sessions", "", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var created models.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.SessionID)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "/v1/sessions/"+created.SessionID, rec.Header().Get("Location"))
	require.NotNil(t, created.Snapshot)
	assert.Equal(t, session.PhaseIdle, created.Snapshot.Phase)
	assert.True(t, created.ExpiresAt.Time().After(time.Now()))
}

func TestRouter_CreateSession_LimitReached(t *testing.T) {
	env := newTestEnv(t, 1)
	createSession(t, env.router)

	rec := do(t, env.router, http.MethodPost, "/v1/sessions", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouter_SessionRequiresToken(t *testing.T) {
	router := newTestRouter(t)
	id, _ := createSession(t, router)
	otherID, otherToken := createSession(t, router)
	require.NotEqual(t, id, otherID)

	rec := do(t, router, http.MethodGet, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/sessions/"+id, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_GetSession(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	rec := do(t, router, http.MethodGet, "/v1/sessions/"+id, token, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, session.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Start.Query)
	assert.NotNil(t, snap.Start.Suggestions)
}

func TestRouter_SetText(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	rec := do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel"})

	assert.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "Eiffel", snap.Start.Query)
	assert.True(t, snap.Start.Active)
	assert.False(t, snap.End.Active)

	// Suggestions arrive after the debounce.
	require.Eventually(t, func() bool {
		snap := decodeSnapshot(t, do(t, router, http.MethodGet, "/v1/sessions/"+id, token, nil))
		return len(snap.Start.Suggestions) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_SetText_Validation(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	rec := do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/middle", token, map[string]string{"text": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be start or end")

	rec = do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/end", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "text is required")

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/fields/end", strings.NewReader("text=Louvre"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_FocusAndBlur(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+id+"/fields/end/focus", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.True(t, snap.End.Active)
	assert.False(t, snap.Start.Active)

	rec = do(t, router, http.MethodPost, "/v1/sessions/"+id+"/fields/end/blur", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSnapshot(t, rec).End.Active)
}

func TestRouter_SelectSuggestion(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+id+"/fields/start/selection", token, map[string]int{"index": 0})
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing is shown yet")

	do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel"})
	require.Eventually(t, func() bool {
		snap := decodeSnapshot(t, do(t, router, http.MethodGet, "/v1/sessions/"+id, token, nil))
		return len(snap.Start.Suggestions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, router, http.MethodPost, "/v1/sessions/"+id+"/fields/start/selection", token, map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "Eiffel Tower", snap.Start.Query)
	assert.Empty(t, snap.Start.Suggestions)

	require.Eventually(t, func() bool {
		snap := decodeSnapshot(t, do(t, router, http.MethodGet, "/v1/sessions/"+id, token, nil))
		return snap.Start.Place != nil
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, router, http.MethodPost, "/v1/sessions/"+id+"/fields/start/selection", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_RequestRoute(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel Tower"})
	do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/end", token, map[string]string{"text": "Louvre"})

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+id+"/route", token, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/v1/sessions/"+id, rec.Header().Get("Location"))

	var snap session.Snapshot
	require.Eventually(t, func() bool {
		snap = decodeSnapshot(t, do(t, router, http.MethodGet, "/v1/sessions/"+id, token, nil))
		return snap.Phase == session.PhaseRouteReady
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, snap.Route)
	assert.Equal(t, "4.71 km", snap.Route.Distance)
	assert.Equal(t, "13 min", snap.Route.TravelTime)
	assert.False(t, snap.Busy)
	assert.Len(t, snap.Map.Overlay, 3)
	assert.Len(t, snap.Map.Annotations, 2)

	rec = do(t, router, http.MethodGet, "/v1/sessions/"+id+"/map.geojson", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
		BBox     []float64         `json:"bbox"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3)
	assert.Len(t, fc.BBox, 4)
}

func TestRouter_RequestRoute_MissingLocation(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel Tower"})

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+id+"/route", token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := decodeSnapshot(t, rec)
	assert.Equal(t, session.PhaseResolutionFailed, snap.Phase)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, session.FieldEnd, snap.LastError.Field)
}

func TestRouter_Reset(t *testing.T) {
	router := newTestRouter(t)
	id, token := createSession(t, router)

	do(t, router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel"})

	rec := do(t, router, http.MethodPost, "/v1/sessions/"+id+"/reset", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Empty(t, snap.Start.Query)
	assert.Equal(t, session.PhaseIdle, snap.Phase)
}

func TestRouter_DeleteSession(t *testing.T) {
	env := newTestEnv(t, 0)
	id, token := createSession(t, env.router)

	rec := do(t, env.router, http.MethodDelete, "/v1/sessions/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.sessions.Len())

	rec = do(t, env.router, http.MethodGet, "/v1/sessions/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// readEvent reads one server-sent event and returns its name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestRouter_Events(t *testing.T) {
	env := newTestEnv(t, 0)
	server := httptest.NewServer(env.router)
	defer server.Close()

	id, token := createSession(t, env.router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/sessions/"+id+"/events", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, data := readEvent(t, reader)
	assert.Equal(t, "snapshot", name)
	var first models.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(data), &first))
	assert.Equal(t, session.PhaseIdle, first.Snapshot.Phase)

	rec := do(t, env.router, http.MethodPut, "/v1/sessions/"+id+"/fields/start", token, map[string]string{"text": "Eiffel"})
	require.Equal(t, http.StatusOK, rec.Code)

	name, data = readEvent(t, reader)
	assert.Equal(t, "text", name)
	var ev models.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, session.ReasonText, ev.Reason)
	assert.Equal(t, "Eiffel", ev.Snapshot.Start.Query)

	name, _ = readEvent(t, reader)
	assert.Equal(t, "suggestions", name)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/ops/health", "", nil)

	requestID := rec.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom-request-id-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "custom-request-id-123", rec.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/nonexistent", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
