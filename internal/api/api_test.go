package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/georacer/internal/catalog"
	"github.com/kiliankoe/georacer/internal/game"
)

func newTestAPI(t *testing.T, accounts gin.Accounts) (*gin.Engine, *game.Manager, *catalog.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat := catalog.NewMemory()
	m := game.NewManager(game.Deps{Catalog: cat, Clock: clockwork.NewFakeClock(), Timings: game.DefaultTimings()})
	t.Cleanup(m.Shutdown)
	r := gin.New()
	New(m, cat, "https://georacer.example/").Mount(r, accounts)
	return r, m, cat
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetLobby(t *testing.T) {
	r, m, _ := newTestAPI(t, nil)

	w := do(r, http.MethodPost, "/api/lobbies", game.Settings{PointsToWin: 10, ScorersPerTarget: 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct{ ID string }
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("should be able to decode create response: %v", err)
	}
	if _, err := m.Get(created.ID); err != nil {
		t.Fatalf("lobby %q should exist: %v", created.ID, err)
	}

	w = do(r, http.MethodGet, "/api/lobbies/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("should be able to decode snapshot: %v", err)
	}
	if snap.ID != created.ID || snap.Phase.Kind != game.PhaseWaitingForStart || snap.Settings.ScorersPerTarget != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestCreateLobbyRejectsBadSettings(t *testing.T) {
	r, m, _ := newTestAPI(t, nil)
	if w := do(r, http.MethodPost, "/api/lobbies", game.Settings{PointsToWin: 0, ScorersPerTarget: 1}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero points, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/lobbies", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}
	if m.Len() != 0 {
		t.Fatalf("no lobby should have been created, have %d", m.Len())
	}
}

func TestUnknownLobby(t *testing.T) {
	r, _, _ := newTestAPI(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/lobbies/NOPE"},
		{http.MethodGet, "/api/lobbies/NOPE/qr"},
		{http.MethodDelete, "/api/lobbies/NOPE"},
	} {
		if w := do(r, tc.method, tc.path, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestEndLobby(t *testing.T) {
	r, m, _ := newTestAPI(t, nil)
	id, _ := m.Create(game.Settings{PointsToWin: 3, ScorersPerTarget: 1})

	if w := do(r, http.MethodDelete, "/api/lobbies/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, err := m.Get(id); err == nil {
		t.Fatal("lobby should be gone after DELETE")
	}
}

func TestLobbyQR(t *testing.T) {
	r, m, _ := newTestAPI(t, nil)
	id, _ := m.Create(game.Settings{PointsToWin: 3, ScorersPerTarget: 1})

	w := do(r, http.MethodGet, "/api/lobbies/"+id+"/qr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body should be a PNG")
	}
}

func TestJoinURL(t *testing.T) {
	a := New(nil, nil, "https://georacer.example/")
	if got := a.JoinURL("AB3CD"); got != "https://georacer.example/?lobby=AB3CD" {
		t.Fatalf("unexpected join url %s", got)
	}
}

func TestObjects(t *testing.T) {
	r, _, cat := newTestAPI(t, nil)

	w := do(r, http.MethodPost, "/api/objects", objectRequest{Name: "Statue", Image: "c3RhdHVl"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/objects", objectRequest{Name: "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty object, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/objects/count", nil)
	var out struct{ Count int }
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("should be able to decode count: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("expected 1 object, got %d", out.Count)
	}
	if obj, err := cat.Sample(t.Context()); err != nil || obj.Name != "Statue" {
		t.Fatalf("catalog should hand out the new object, got %+v, %v", obj, err)
	}
}

func TestAdminRoutesNeedAuth(t *testing.T) {
	r, m, _ := newTestAPI(t, gin.Accounts{"admin": "secret"})
	id, _ := m.Create(game.Settings{PointsToWin: 3, ScorersPerTarget: 1})

	if w := do(r, http.MethodPost, "/api/objects", objectRequest{Name: "Statue", Image: "c3RhdHVl"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/lobbies/"+id, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/lobbies/"+id, nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with credentials, got %d", w.Code)
	}

	// public routes stay open
	if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", w.Code)
	}
}
