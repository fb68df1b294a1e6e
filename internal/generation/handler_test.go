package generation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupHandlerRouter(t *testing.T, fixture *serviceFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(fixture.svc, fixture.apps)
	handler.RegisterRoutes(r.Group("/v1"))
	return r
}

func TestStartGenerationAccepted(t *testing.T) {
	fixture := setupService(t, &stubPlanner{unitCount: 2}, nil)
	fixture.createApp(t)
	r := setupHandlerRouter(t, fixture)

	body := strings.NewReader(`{"description":"plant care tracker"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/apps/app-1/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.JobID == "" || resp.Status != StatusPending {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStartGenerationRejectsAmbiguousInput(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	fixture.createApp(t)
	r := setupHandlerRouter(t, fixture)

	body := strings.NewReader(`{"description":"x","useExistingConcept":true}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/apps/app-1/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartGenerationUnknownApp(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	r := setupHandlerRouter(t, fixture)

	body := strings.NewReader(`{"description":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/apps/missing/generate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	r := setupHandlerRouter(t, fixture)

	req := httptest.NewRequest(http.MethodGet, "/v1/generations/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListGenerationsRequiresAppID(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	r := setupHandlerRouter(t, fixture)

	req := httptest.NewRequest(http.MethodGet, "/v1/generations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
