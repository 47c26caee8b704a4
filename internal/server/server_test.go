package server

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/webmirror/internal/cloner"
	"github.com/lvillar/webmirror/internal/config"
	"github.com/lvillar/webmirror/internal/models"
	"github.com/lvillar/webmirror/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:   "https://example.com",
		OutputDir: filepath.Join(dir, "site"),
		AdminUser: "admin",
		AdminPass: "secret",
		JWTSecret: "test-jwt-secret",
		APIToken:  "hook-token",
	}
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	return New(cfg, st), st, cfg.OutputDir
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(t, s.Engine(), http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestLogin(t *testing.T) {
	s, _, _ := newTestServer(t)
	engine := s.Engine()

	w := doJSON(t, engine, http.MethodPost, "/api/login", "",
		map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/login", "",
		map[string]string{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.Type)
	assert.NotEmpty(t, resp.Token)

	claims, err := s.parseJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "webmirror", claims.Issuer)
}

func TestJWTRequired(t *testing.T) {
	s, _, _ := newTestServer(t)
	engine := s.Engine()

	w := doJSON(t, engine, http.MethodGet, "/api/snapshot", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/snapshot", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)
	engine := s.Engine()
	token, err := s.GenerateJWT("admin")
	require.NoError(t, err)

	// No run recorded yet.
	w := doJSON(t, engine, http.MethodGet, "/api/snapshot", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	snap, err := st.CreateSnapshot("https://example.com", "/tmp/site")
	require.NoError(t, err)
	require.NoError(t, st.FinishSnapshot(snap.ID, models.SnapshotComplete, 5, 12, 0, 0))

	w = doJSON(t, engine, http.MethodGet, "/api/snapshot", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pages":5`)
	assert.Contains(t, w.Body.String(), `"assets":12`)
}

func TestVerifyEndpointPersistsFindings(t *testing.T) {
	s, st, root := newTestServer(t)
	engine := s.Engine()
	token, err := s.GenerateJWT("admin")
	require.NoError(t, err)

	snap, err := st.CreateSnapshot("https://example.com", root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte(`<html><body><img src="img/gone.png"></body></html>`), 0o644))

	w := doJSON(t, engine, http.MethodPost, "/api/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "img/gone.png")

	links, err := st.BrokenLinks(snap.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "index.html", links[0].SourcePath)
}

func TestHookTokenMiddleware(t *testing.T) {
	s, _, _ := newTestServer(t)
	engine := s.Engine()

	w := doJSON(t, engine, http.MethodPost, "/api/hooks/reverify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A dashboard JWT must not pass the hook gate.
	jwt, err := s.GenerateJWT("admin")
	require.NoError(t, err)
	w = doJSON(t, engine, http.MethodPost, "/api/hooks/reverify", jwt, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/hooks/reverify", "hook-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMirrorServing(t *testing.T) {
	s, _, root := newTestServer(t)
	engine := s.Engine()

	png := make([]byte, 64)
	_, err := rand.Read(png)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte("<html><body>home</body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "logo.png"), png, 0o644))

	// Files come back byte for byte.
	w := doJSON(t, engine, http.MethodGet, "/img/logo.png", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, png, w.Body.Bytes())

	// Root and directory requests fall back to index.html.
	w = doJSON(t, engine, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "home")

	// Unknown paths get a JSON 404.
	w = doJSON(t, engine, http.MethodGet, "/nope.html", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")

	// Traversal and dotfiles never resolve.
	for _, p := range []string{"/../manifest.db", "/.git/config"} {
		req := httptest.NewRequest(http.MethodGet, "http://mirror.test", nil)
		req.URL.Path = p // bypass path cleaning in NewRequest
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}

	// Writes are rejected on the mirror tree.
	w = doJSON(t, engine, http.MethodPost, "/index.html", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDashboardMount(t *testing.T) {
	s, _, _ := newTestServer(t)
	engine := s.Engine()

	w := doJSON(t, engine, http.MethodGet, "/_webmirror/index.html", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webmirror")
}

func TestWebsocketBroadcast(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Engine())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub time to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	s.Hub().Broadcast(cloner.Event{Type: cloner.EventPage, URL: "https://example.com/", Pages: 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev cloner.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, cloner.EventPage, ev.Type)
	assert.Equal(t, 1, ev.Pages)
}
