package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"supportchat/internal/config"
	"supportchat/internal/presence"
	"supportchat/internal/session"
	"supportchat/internal/ws"

	"github.com/gin-gonic/gin"
)

func testEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Env: "dev", JWTSecret: "test-secret", AccessTokenTTLMinutes: 15}
	wsRouter := ws.NewRouter(cfg, nil, nil, presence.NewMemoryStore(), session.NewRegistry(), ws.NewHub())
	return SetupRouter(cfg, nil, nil, wsRouter)
}

func TestHealthz(t *testing.T) {
	r := testEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsExposed(t *testing.T) {
	r := testEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	r := testEngine(t)

	for _, path := range []string{"/api/v1/rooms", "/api/v1/rooms/1/messages"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, w.Code)
		}
	}
}
