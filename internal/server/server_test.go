package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/hub"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

type stubStats struct {
	snap *domain.StatsSnapshot
}

func (s *stubStats) Latest() *domain.StatsSnapshot { return s.snap }

func newTestServer(t *testing.T, stats StatsProvider) (*Server, *hub.Hub) {
	t.Helper()
	hubCfg := infra.HubConfig{ReplaySize: 50, QueueDepth: 64, SendTimeout: time.Second}
	h := hub.NewHub(hubCfg, zap.NewNop(), pipeline.NewMetrics(nil))
	t.Cleanup(h.Close)

	srv := NewServer(infra.ServerConfig{}, hubCfg, h, stats, zap.NewNop())
	return srv, h
}

func TestServer_Health(t *testing.T) {
	srv, h := newTestServer(t, &stubStats{})

	sub := h.Subscribe()
	defer h.Unsubscribe(sub.ID)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status           string `json:"status"`
		ConnectedClients int    `json:"connected_clients"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "healthy" || body.ConnectedClients != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestServer_Stats(t *testing.T) {
	tests := []struct {
		name       string
		snap       *domain.StatsSnapshot
		wantStatus int
	}{
		{"no snapshot yet", nil, http.StatusServiceUnavailable},
		{"snapshot available", &domain.StatsSnapshot{TotalIncidents: 42, WindowMinutes: 60}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubStats{snap: tt.snap})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.snap == nil {
				return
			}

			var snap domain.StatsSnapshot
			if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if snap.TotalIncidents != 42 {
				t.Errorf("TotalIncidents = %d, want 42", snap.TotalIncidents)
			}
		})
	}
}

func TestServer_RecentIncidents(t *testing.T) {
	srv, h := newTestServer(t, &stubStats{})

	h.Publish(domain.StreamEvent{
		Kind:     domain.KindIncident,
		Incident: &domain.Incident{Sequence: 1, ID: "inc-1"},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/incidents/recent", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Count     int               `json:"count"`
		Incidents []domain.Incident `json:"incidents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Count != 1 || len(body.Incidents) != 1 || body.Incidents[0].ID != "inc-1" {
		t.Errorf("body = %+v", body)
	}
}
