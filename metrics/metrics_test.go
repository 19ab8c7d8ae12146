package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestTrackHelpersIncrementRegistry(t *testing.T) {
	r := New(zerolog.New(io.Discard))

	r.TrackActionsIngested("proj_1", 5, false)
	r.TrackActionsIngested("proj_1", 3, true)
	r.TrackTaskOutcome("proj_1", "confirmed")
	r.TrackAnomalyDetected("proj_1", "unusualAmount", "high")
	r.TrackWebhookEvent("checkout.session.completed", true)
	r.TrackPlan("proj_1", "pro")

	if v := r.getCounter("kontext_actions_ingested_total", map[string]string{"project": "proj_1"}).Value(); v != 2 {
		t.Fatalf("expected 2 ingestion events tracked, got %d", v)
	}
	if v := r.getCounter("kontext_usage_limit_exceeded_total", map[string]string{"project": "proj_1"}).Value(); v != 1 {
		t.Fatalf("expected 1 limit-exceeded event, got %d", v)
	}
}

func TestHandlerExposesPrometheusFormat(t *testing.T) {
	r := New(zerolog.New(io.Discard))
	r.TrackTaskOutcome("proj_1", "confirmed")
	r.TrackPlan("proj_1", "free")
	r.TrackActionsIngested("proj_1", 10, false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rw := httptest.NewRecorder()
	r.Handler()(rw, req)

	if rw.Code != 200 {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	body := rw.Body.String()
	if !strings.Contains(body, "# TYPE kontext_tasks_total counter") {
		t.Fatal("expected tasks counter TYPE line")
	}
	if !strings.Contains(body, "# TYPE kontext_plan gauge") {
		t.Fatal("expected plan gauge TYPE line")
	}
	if !strings.Contains(body, "# TYPE kontext_ingest_batch_size histogram") {
		t.Fatal("expected ingest batch size histogram TYPE line")
	}
	if !strings.Contains(body, "_bucket{le=") {
		t.Fatal("expected histogram bucket lines")
	}
}
