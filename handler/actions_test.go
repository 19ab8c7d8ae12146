package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/config"
	"github.com/AlfredDev/kontext/server/ledger"
	"github.com/AlfredDev/kontext/server/middleware"
	"github.com/AlfredDev/kontext/server/store"
)

func newActionsHandler(plans map[string]config.PlanAssignment) (*ActionsHandler, *store.Store, *ledger.Ledger) {
	log := zerolog.New(io.Discard)
	s := store.New()
	l := ledger.New(plans, nil)
	return NewActionsHandler(log, s, l, "http://localhost:3000", nil), s, l
}

func withAuth(req *httptest.ResponseRecorder, r *http.Request, apiKey, projectID string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("X-Project-Id", projectID)
	am := middleware.NewAuthMiddleware(zerolog.New(io.Discard), map[string]bool{apiKey: true})
	var captured *http.Request
	am.Handler(http.HandlerFunc(func(w http.ResponseWriter, rr *http.Request) {
		captured = rr
	})).ServeHTTP(req, r)
	return captured
}

func TestIngestRejectsInvalidJSON(t *testing.T) {
	h, _, _ := newActionsHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString("not json"))
	req.Header.Set("Authorization", "Bearer test-key")
	req.Header.Set("X-Project-Id", "proj_1")
	req = withAuth(httptest.NewRecorder(), req, "test-key", "proj_1")

	rw := httptest.NewRecorder()
	h.Ingest(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestIngestRejectsActionMissingFields(t *testing.T) {
	h, _, _ := newActionsHandler(nil)
	body := `{"actions":[{"id":"a1","type":"transaction"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString(body))
	req = withAuth(httptest.NewRecorder(), req, "test-key", "proj_1")

	rw := httptest.NewRecorder()
	h.Ingest(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing agentId, got %d", rw.Code)
	}
}

func TestIngestSuccessSetsUsageHeaders(t *testing.T) {
	h, s, _ := newActionsHandler(map[string]config.PlanAssignment{
		"test-key": {Plan: "starter", Seats: 1},
	})
	body := `{"actions":[{"id":"a1","type":"transaction","agentId":"agent_1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString(body))
	req = withAuth(httptest.NewRecorder(), req, "test-key", "proj_1")

	rw := httptest.NewRecorder()
	h.Ingest(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Header().Get("X-Kontext-Usage") == "" {
		t.Fatal("expected X-Kontext-Usage header to be set")
	}

	actions := s.GetActions("proj_1", store.ActionFilter{})
	if len(actions) != 1 {
		t.Fatalf("expected 1 stored action, got %d", len(actions))
	}
}

func TestIngestReportsLimitExceeded(t *testing.T) {
	h, _, l := newActionsHandler(map[string]config.PlanAssignment{
		"test-key": {Plan: "free", Seats: 1},
	})

	// Push the key to the edge of the free-tier monthly cap so one more
	// ingested action tips it over, without looping thousands of requests.
	l.Track("test-key", 20_000, time.Now().UTC())

	body := `{"actions":[{"id":"a","type":"transaction","agentId":"agent_1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", bytes.NewBufferString(body))
	req = withAuth(httptest.NewRecorder(), req, "test-key", "proj_1")
	rw := httptest.NewRecorder()
	h.Ingest(rw, req)

	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["limitExceeded"] != true {
		t.Fatal("expected limitExceeded true in body")
	}
}
