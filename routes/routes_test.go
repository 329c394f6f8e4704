package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Dosada05/track-bracket/handlers"
	"github.com/Dosada05/track-bracket/metrics"
	"github.com/Dosada05/track-bracket/middleware"
	"github.com/Dosada05/track-bracket/models"
	"github.com/Dosada05/track-bracket/repositories"
	"github.com/Dosada05/track-bracket/services"
)

type fakeCatalog struct{}

func (fakeCatalog) ListPlaylists(_ context.Context, _ string) ([]models.Playlist, error) {
	return []models.Playlist{{ID: "p1", Name: "Mix"}}, nil
}

func (fakeCatalog) ListTracks(_ context.Context, _, _ string) ([]models.Track, error) {
	return []models.Track{{ID: "a"}, {ID: "b"}}, nil
}

func newTestServer(t *testing.T, voteLimiter *middleware.IPRateLimiter) *httptest.Server {
	t.Helper()
	return newTestServerWithOptions(t, Options{VoteLimiter: voteLimiter})
}

func newTestServerWithOptions(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repositories.NewMemoryStore(nil)

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(registry)
	require.NoError(t, err)

	gameService := services.NewGameService(services.GameServiceDeps{
		Games:         store,
		Votes:         store,
		Participants:  store,
		Catalog:       fakeCatalog{},
		Metrics:       recorder,
		Logger:        logger,
		RetryInterval: time.Millisecond,
	})

	opts.AllowedOrigins = []string{"*"}
	opts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	opts.Logger = logger

	router := chi.NewRouter()
	SetupRoutes(router, opts, handlers.NewGameHandler(gameService), handlers.NewCatalogHandler(services.NewCatalogService(fakeCatalog{}, logger)))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGameFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	var created struct {
		GameID string `json:"game_id"`
		Code   string `json:"code"`
	}
	status := doJSON(t, http.MethodPost, srv.URL+"/api/game/create",
		`{"host_id": "host", "tracks": [{"id": "a", "name": "A"}, {"id": "b", "name": "B"}]}`, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.Code)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/game/join",
		fmt.Sprintf(`{"game_id_or_code": %q, "user_id": "u1", "user_name": "Ann"}`, strings.ToLower(created.Code)), nil)
	require.Equal(t, http.StatusOK, status)

	var view struct {
		Game  models.Game          `json:"game"`
		Users []models.Participant `json:"users"`
	}
	status = doJSON(t, http.MethodGet, srv.URL+"/api/game?game_id="+created.GameID, "", &view)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, view.Users, 2)
	match := view.Game.Bracket.Rounds[0].Matches[0]

	status = doJSON(t, http.MethodPost, srv.URL+"/api/game/vote",
		fmt.Sprintf(`{"game_id": %q, "round": 0, "matchup_idx": 0, "user_id": "u1", "track_id": %q}`, created.GameID, *match.TrackBID), nil)
	require.Equal(t, http.StatusOK, status)

	var votes struct {
		Counts map[string]int `json:"counts"`
	}
	status = doJSON(t, http.MethodGet, srv.URL+"/api/game/votes?game_id="+created.GameID+"&round=0&matchup_idx=0", "", &votes)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]int{*match.TrackBID: 1}, votes.Counts)

	var advanced struct {
		Outcome string        `json:"outcome"`
		Winner  *models.Track `json:"winner"`
	}
	status = doJSON(t, http.MethodPost, srv.URL+"/api/game/by_code",
		fmt.Sprintf(`{"code": %q, "action": "advance"}`, created.Code), &advanced)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "decided", advanced.Outcome)
	require.NotNil(t, advanced.Winner)
	assert.Equal(t, *match.TrackBID, advanced.Winner.ID)

	status = doJSON(t, http.MethodGet, srv.URL+"/api/game/by_code?code="+created.Code, "", &view)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, view.Game.Winner)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bracket_games_created_total 1")
	assert.Contains(t, string(body), `bracket_advances_total{outcome="decided"} 1`)
}

func TestCreateFromPlaylistOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	var created map[string]string
	status := doJSON(t, http.MethodPost, srv.URL+"/api/game/create", `{"host_id": "h", "playlist_id": "p1", "tracks": []}`, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created["game_id"])

	var playlists map[string][]models.Playlist
	status = doJSON(t, http.MethodGet, srv.URL+"/api/catalog/playlists", "", &playlists)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, playlists["playlists"], 1)
}

func TestVoteRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, middleware.NewIPRateLimiter(rate.Every(time.Hour), 1))

	body := `{"game_id_or_code": "NOPE00", "user_id": "u"}`
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/api/game/join", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, http.MethodPost, srv.URL+"/api/game/join", body, nil))

	// Polling is not limited.
	for range 3 {
		assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/api/game/by_code?code=NOPE00", "", nil))
	}
}

func joinFrom(t *testing.T, srv *httptest.Server, forwardedFor string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/game/join",
		strings.NewReader(`{"game_id_or_code": "NOPE00", "user_id": "u"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestForwardedForIsIgnoredByDefault(t *testing.T) {
	srv := newTestServer(t, middleware.NewIPRateLimiter(rate.Every(time.Hour), 1))

	assert.Equal(t, http.StatusNotFound, joinFrom(t, srv, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, joinFrom(t, srv, "10.0.0.2"))
}

func TestForwardedForIsUsedBehindTrustedProxy(t *testing.T) {
	srv := newTestServerWithOptions(t, Options{
		VoteLimiter:       middleware.NewIPRateLimiter(rate.Every(time.Hour), 1),
		TrustProxyHeaders: true,
	})

	assert.Equal(t, http.StatusNotFound, joinFrom(t, srv, "10.0.0.1"))
	assert.Equal(t, http.StatusNotFound, joinFrom(t, srv, "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, joinFrom(t, srv, "10.0.0.1"))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	var out map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/healthz", "", &out))
	assert.Equal(t, "ok", out["status"])
}
