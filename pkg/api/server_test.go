package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

type fakeProgress struct{ p simulation.Progress }

func (f fakeProgress) Progress() simulation.Progress { return f.p }

type fakeRecords []telemetry.Record

func (f fakeRecords) Records() []telemetry.Record { return f }

func testServer() http.Handler {
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	recs := fakeRecords{
		{AgentID: "hr-001", Role: "hr", Seq: 1, Timestamp: base.Add(2 * time.Minute), Success: true},
		{AgentID: "analyst-001", Role: "analyst", Seq: 1, Timestamp: base, Success: true},
		{AgentID: "analyst-001", Role: "analyst", Seq: 2, Timestamp: base.Add(time.Minute), Success: false, Scenario: "slow_drip_export"},
	}
	prog := fakeProgress{simulation.Progress{Agents: 2, Actions: 3, Done: true}}
	return NewServer(prog, recs, "", logging.NewNop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSecureHeaders(t *testing.T) {
	w := get(t, testServer(), "/v1/health")

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
	if w.Header().Get("X-Trace-ID") == "" {
		t.Error("Expected a generated trace id")
	}
}

func TestHealthAndProgress(t *testing.T) {
	h := testServer()

	w := get(t, h, "/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || !health.Done {
		t.Errorf("unexpected health %+v", health)
	}

	w = get(t, h, "/v1/progress")
	var p simulation.Progress
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Agents != 2 || p.Actions != 3 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestRecords(t *testing.T) {
	h := testServer()

	tests := []struct {
		path    string
		total   int
		firstID string
	}{
		{"/v1/records", 3, "analyst-001"},
		{"/v1/records?agent=hr-001", 1, "hr-001"},
		{"/v1/records?role=analyst&success=false", 1, "analyst-001"},
		{"/v1/records?scenario=slow_drip_export", 1, "analyst-001"},
		{"/v1/records?agent=nobody", 0, ""},
	}
	for _, tt := range tests {
		w := get(t, h, tt.path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.path, w.Code)
		}
		var resp RecordsResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if resp.Total != tt.total || len(resp.Records) != tt.total {
			t.Errorf("%s: expected %d records, got total=%d len=%d", tt.path, tt.total, resp.Total, len(resp.Records))
			continue
		}
		if tt.total > 0 && resp.Records[0].AgentID != tt.firstID {
			t.Errorf("%s: expected first record from %s, got %s", tt.path, tt.firstID, resp.Records[0].AgentID)
		}
	}

	w := get(t, h, "/v1/records?limit=1")
	var resp RecordsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Records) != 1 {
		t.Errorf("limit not applied: total=%d len=%d", resp.Total, len(resp.Records))
	}

	for _, bad := range []string{"/v1/records?limit=0", "/v1/records?limit=x", "/v1/records?success=maybe"} {
		if w := get(t, h, bad); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestRoles(t *testing.T) {
	w := get(t, testServer(), "/v1/roles")
	var roles []RoleSummary
	if err := json.NewDecoder(w.Body).Decode(&roles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("Expected 2 roles, got %d", len(roles))
	}
	if roles[0].Role != "analyst" || roles[0].Actions != 2 {
		t.Errorf("unexpected first role %+v", roles[0])
	}
	if roles[1].LastSeen != "2024-03-04T09:02:00Z" {
		t.Errorf("unexpected last seen %q", roles[1].LastSeen)
	}
}

func TestRecordsNotRoutedWithoutSource(t *testing.T) {
	h := NewServer(fakeProgress{}, nil, "", logging.NewNop()).Handler()
	if w := get(t, h, "/v1/records"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
