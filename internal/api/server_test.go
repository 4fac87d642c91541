package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStatus struct {
	status Status
}

func (f *fakeStatus) Status() Status { return f.status }

func TestStatusEndpoint(t *testing.T) {
	provider := &fakeStatus{status: Status{
		Device:        "/dev/video2",
		HostConnected: true,
		Streaming:     true,
		Format:        "YUYV",
		Width:         1280,
		Height:        720,
		FPS:           30,
		FramesDropped: 7,
	}}
	server := NewServer(&Options{Status: provider})

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got != provider.status {
		t.Errorf("status = %+v, want %+v", got, provider.status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&Options{Status: &fakeStatus{}})

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("health = %q, want ok", body.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	server := NewServer(&Options{Status: &fakeStatus{}})

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Version == "" || body.GoVersion == "" {
		t.Errorf("version info incomplete: %+v", body)
	}
}

func TestMetricsMount(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	server := NewServer(&Options{Status: &fakeStatus{}, PrometheusHandler: handler})

	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Errorf("metrics mount = (%d, %q), want (200, \"# metrics\")", rec.Code, rec.Body.String())
	}
}
