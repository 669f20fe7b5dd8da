package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type stubBus struct {
	err error
}

func (s *stubBus) Ping(ctx context.Context) error { return s.err }

type stubListeners struct {
	ready bool
}

func (s *stubListeners) Ready() bool { return s.ready }

func doRequest(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := NewServer(":0", &stubBus{}, &stubListeners{ready: true}, zap.NewNop())

	w := doRequest(s, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadyz_AllOK(t *testing.T) {
	s := NewServer(":0", &stubBus{}, &stubListeners{ready: true}, zap.NewNop())

	w := doRequest(s, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected status ready, got %v", body["status"])
	}
}

func TestReadyz_KafkaDown(t *testing.T) {
	s := NewServer(":0", &stubBus{err: errors.New("unreachable")}, &stubListeners{ready: true}, zap.NewNop())

	w := doRequest(s, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	checks := body["checks"].(map[string]any)
	if checks["kafka"] != "error" {
		t.Errorf("expected kafka check error, got %v", checks)
	}
}

func TestReadyz_ListenersNotBound(t *testing.T) {
	s := NewServer(":0", &stubBus{}, &stubListeners{ready: false}, zap.NewNop())

	w := doRequest(s, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	checks := body["checks"].(map[string]any)
	if checks["listeners"] != "not_bound" {
		t.Errorf("expected listeners not_bound, got %v", checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(":0", &stubBus{}, &stubListeners{ready: true}, zap.NewNop())

	w := doRequest(s, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
