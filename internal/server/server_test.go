package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/groblegark/footfall/internal/ledger"
	"github.com/groblegark/footfall/internal/pipeline"
)

type fakeSource struct {
	status pipeline.Status
	roster []ledger.Entry
}

func (f *fakeSource) Status() pipeline.Status { return f.status }
func (f *fakeSource) Roster() []ledger.Entry  { return f.roster }

func newTestServer(t *testing.T, src *fakeSource) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(src).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})

	var body map[string]string
	resp := get(t, ts.URL+"/v1/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	src := &fakeSource{status: pipeline.Status{
		RunID:        "run-xyz",
		CyclesRun:    12,
		CyclesLogged: 9,
		Devices:      3,
	}}
	ts := newTestServer(t, src)

	var got pipeline.Status
	resp := get(t, ts.URL+"/v1/status", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got.RunID != "run-xyz" || got.CyclesRun != 12 || got.Devices != 3 {
		t.Errorf("status = %+v", got)
	}
}

func TestRoster(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{roster: []ledger.Entry{
		{Token: "deadbeef", Classification: "transient", LastSeen: now, AvgRSSI: -63.5},
	}}
	ts := newTestServer(t, src)

	var body struct {
		Devices []ledger.Entry `json:"devices"`
	}
	resp := get(t, ts.URL+"/v1/roster", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Devices) != 1 || body.Devices[0].Token != "deadbeef" {
		t.Errorf("roster = %+v", body.Devices)
	}
}

func TestRoster_EmptyIsAListNotNull(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})

	var body map[string]json.RawMessage
	get(t, ts.URL+"/v1/roster", &body)
	if string(body["devices"]) != "[]" {
		t.Errorf("devices = %s, want []", body["devices"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeSource{})

	resp, err := http.Post(ts.URL+"/v1/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
