package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/api"
	"github.com/DiOS-Analysis/Backend/engine"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/store/memory"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := backend.New(backend.WithStore(memory.New()), backend.WithLogger(logger))
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	eng, err := engine.Build(d)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	srv := httptest.NewServer(api.New(eng, api.WithLogger(logger)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, b)
	}
}

// seed registers a worker, an account and a device bound to it.
func seed(t *testing.T, srv *httptest.Server) (workerID, udid string) {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/workers", map[string]any{"name": "agent-1"})
	expectStatus(t, resp, http.StatusOK)
	workerID = decode[map[string]string](t, resp)["workerId"]

	resp = do(t, http.MethodPost, srv.URL+"/accounts", map[string]any{
		"uniqueIdentifier": 1001,
		"appleId":          "a@example.com",
		"storeCountry":     "de",
	})
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string]string](t, resp)["accountId"]; got != "1001" {
		t.Fatalf("accountId = %q, want 1001", got)
	}

	resp = do(t, http.MethodPost, srv.URL+"/devices", map[string]any{
		"udid":       "dev-1",
		"deviceInfo": map[string]any{"model": "iPhone"},
		"accounts":   []any{"1001"},
	})
	expectStatus(t, resp, http.StatusOK)
	return workerID, "dev-1"
}

func createJob(t *testing.T, srv *httptest.Server, info map[string]any) string {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/jobs", map[string]any{
		"type":    "run_app",
		"jobInfo": info,
	})
	expectStatus(t, resp, http.StatusOK)
	return decode[map[string]string](t, resp)["jobId"]
}

func claimURL(srv *httptest.Server, workerID, udid string) string {
	return srv.URL + "/jobs/getandsetworker/" + workerID + "/device/" + udid
}

func TestClaimRoute(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	workerID, udid := seed(t, srv)

	resp := do(t, http.MethodGet, claimURL(srv, workerID, udid), nil)
	expectStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get(api.HeaderClaimOutcome); got != "no_job_available" {
		t.Errorf("outcome header = %q", got)
	}

	// The newest job is claimed first, rejected and rolled back.
	compatible := createJob(t, srv, map[string]any{"accountId": 1001})
	incompatible := createJob(t, srv, map[string]any{"accountId": "2002"})

	resp = do(t, http.MethodGet, claimURL(srv, workerID, udid), nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[job.Job](t, resp)
	if got.ID.String() != compatible {
		t.Fatalf("claimed %s, want %s", got.ID, compatible)
	}
	if got.WorkerID.String() != workerID || got.DeviceUDID != udid {
		t.Errorf("assignment = (%s, %s)", got.WorkerID, got.DeviceUDID)
	}
	if got.State != job.StatePending {
		t.Errorf("state = %s, claim must not change state", got.State)
	}
	if h := resp.Header.Get(api.HeaderClaimOutcome); h != "claimed" {
		t.Errorf("outcome header = %q", h)
	}
	if h := resp.Header.Get(api.HeaderClaimAttempts); h != "2" {
		t.Errorf("attempts header = %q, want 2", h)
	}

	// Second claim resumes the same job.
	resp = do(t, http.MethodGet, claimURL(srv, workerID, udid), nil)
	expectStatus(t, resp, http.StatusOK)
	if h := resp.Header.Get(api.HeaderClaimOutcome); h != "resumed" {
		t.Errorf("outcome header = %q, want resumed", h)
	}

	// The rejected job was rolled back.
	resp = do(t, http.MethodGet, srv.URL+"/jobs/"+incompatible, nil)
	expectStatus(t, resp, http.StatusOK)
	if j := decode[job.Job](t, resp); j.Assigned() {
		t.Errorf("incompatible job still assigned to (%s, %s)", j.WorkerID, j.DeviceUDID)
	}
}

func TestClaimRouteErrors(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	workerID, udid := seed(t, srv)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"malformed worker", claimURL(srv, "not-an-id", udid), http.StatusBadRequest},
		{"unknown worker", claimURL(srv, id.NewWorkerID().String(), udid), http.StatusNotFound},
		{"unknown device", claimURL(srv, workerID, "missing"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, tt.url, nil)
			expectStatus(t, resp, tt.want)
			msg := decode[map[string]string](t, resp)["message"]
			if msg == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestJobRoutes(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/jobs", nil)
	expectStatus(t, resp, http.StatusNotFound)

	first := createJob(t, srv, nil)
	second := createJob(t, srv, nil)

	resp = do(t, http.MethodPost, srv.URL+"/jobs/"+first+"/state", map[string]any{"state": "finished"})
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, http.MethodGet, srv.URL+"/jobs?finished=false&failed=false", nil)
	expectStatus(t, resp, http.StatusOK)
	open := decode[map[string]job.Job](t, resp)
	if _, ok := open[second]; !ok || len(open) != 1 {
		t.Fatalf("open jobs = %v, want only %s", open, second)
	}

	resp = do(t, http.MethodGet, srv.URL+"/jobs?pending=false&undefined=false&running=false", nil)
	expectStatus(t, resp, http.StatusOK)
	done := decode[map[string]job.Job](t, resp)
	if _, ok := done[first]; !ok || len(done) != 1 {
		t.Fatalf("terminal jobs = %v, want only %s", done, first)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown type", http.MethodPost, "/jobs", map[string]any{"type": "nope"}, http.StatusBadRequest},
		{"unknown state", http.MethodPost, "/jobs/" + first + "/state", map[string]any{"state": "done"}, http.StatusBadRequest},
		{"missing job", http.MethodGet, "/jobs/" + id.NewJobID().String(), nil, http.StatusNotFound},
		{"malformed job id", http.MethodGet, "/jobs/xyz", nil, http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/jobs?pending=maybe", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/jobs?limit=-1", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestRegistryRoutes(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	for _, path := range []string{"/workers", "/devices", "/accounts"} {
		resp := do(t, http.MethodGet, srv.URL+path, nil)
		expectStatus(t, resp, http.StatusNotFound)
	}

	workerID, udid := seed(t, srv)

	resp := do(t, http.MethodGet, srv.URL+"/workers/"+workerID, nil)
	expectStatus(t, resp, http.StatusOK)
	if name := decode[map[string]any](t, resp)["name"]; name != "agent-1" {
		t.Errorf("worker name = %v", name)
	}

	resp = do(t, http.MethodGet, srv.URL+"/workers?name=agent-1", nil)
	expectStatus(t, resp, http.StatusOK)
	if n := len(decode[map[string]any](t, resp)); n != 1 {
		t.Errorf("workers = %d, want 1", n)
	}

	resp = do(t, http.MethodGet, srv.URL+"/devices?accountId=1001", nil)
	expectStatus(t, resp, http.StatusOK)
	if _, ok := decode[map[string]any](t, resp)[udid]; !ok {
		t.Errorf("device %s missing from account filter", udid)
	}

	resp = do(t, http.MethodGet, srv.URL+"/devices?accountId=9999", nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, http.MethodGet, srv.URL+"/accounts/1001", nil)
	expectStatus(t, resp, http.StatusOK)
	if c := decode[map[string]any](t, resp)["storeCountry"]; c != "de" {
		t.Errorf("storeCountry = %v", c)
	}

	resp = do(t, http.MethodPost, srv.URL+"/devices", map[string]any{"udid": " "})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, http.MethodPost, srv.URL+"/accounts", map[string]any{"uniqueIdentifier": true})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	workerID, udid := seed(t, srv)
	do(t, http.MethodGet, claimURL(srv, workerID, udid), nil)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	expectStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`dios_claims_total{result="no_job_available"} 1`,
		`dios_http_requests_total{method="POST",route="/workers`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestJobInfoRoundTrip(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	jobID := createJob(t, srv, map[string]any{"bundleId": "com.example.app"})

	resp := do(t, http.MethodGet, srv.URL+"/jobs/"+jobID, nil)
	expectStatus(t, resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	info, ok := body["jobInfo"].(map[string]any)
	if !ok {
		t.Fatalf("jobInfo missing from response: %v", body)
	}
	if info["bundleId"] != "com.example.app" {
		t.Errorf("jobInfo = %v", info)
	}
	if _, ok := body["job_info"]; ok {
		t.Error("response carries job_info as well as jobInfo")
	}
}
