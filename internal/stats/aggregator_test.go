package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

type stubSource struct {
	total  int64
	high   int64
	recent int64
	agents map[string]int64

	err error

	gotWindowStart time.Time
	gotThreshold   float64
	gotDeadline    bool
}

func (s *stubSource) CountIncidents(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	_, s.gotDeadline = ctx.Deadline()
	return s.total, nil
}

func (s *stubSource) CountHighPriority(_ context.Context, threshold float64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.gotThreshold = threshold
	return s.high, nil
}

func (s *stubSource) CountIncidentsSince(_ context.Context, windowStart time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.gotWindowStart = windowStart
	return s.recent, nil
}

func (s *stubSource) ActivityCountsSince(_ context.Context, _ time.Time) (map[string]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.agents, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.StreamEvent) {}

func TestAggregator_Snapshot(t *testing.T) {
	source := &stubSource{
		total:  500,
		high:   12,
		recent: 120,
		agents: map[string]int64{"notification_agent": 30, "trend_analysis_agent": 7},
	}
	cfg := infra.StatsConfig{Interval: time.Second, WindowMinutes: 60}
	a := NewAggregator(source, nopPublisher{}, zap.NewNop(), pipeline.NewMetrics(nil), cfg, 8.0)

	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.TotalIncidents != 500 {
		t.Errorf("TotalIncidents = %d, want 500", snap.TotalIncidents)
	}
	if snap.HighPriorityCount != 12 {
		t.Errorf("HighPriorityCount = %d, want 12", snap.HighPriorityCount)
	}
	// 120 строк за 60 минут = 2.0 в минуту
	if snap.ProcessingRate != 2.0 {
		t.Errorf("ProcessingRate = %v, want 2.0", snap.ProcessingRate)
	}
	if snap.AgentActivityCounts["notification_agent"] != 30 {
		t.Errorf("agent counts = %v", snap.AgentActivityCounts)
	}
	if snap.WindowMinutes != 60 {
		t.Errorf("WindowMinutes = %d, want 60", snap.WindowMinutes)
	}
	if !snap.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want %v", snap.GeneratedAt, fixed)
	}

	// Порог высокого приоритета и начало окна уходят в хранилище как есть
	if source.gotThreshold != 8.0 {
		t.Errorf("threshold passed to store = %v, want 8.0", source.gotThreshold)
	}
	wantWindow := fixed.Add(-60 * time.Minute)
	if !source.gotWindowStart.Equal(wantWindow) {
		t.Errorf("windowStart = %v, want %v", source.gotWindowStart, wantWindow)
	}
}

func TestAggregator_SnapshotZeroWindow(t *testing.T) {
	source := &stubSource{recent: 0, agents: map[string]int64{}}
	cfg := infra.StatsConfig{Interval: time.Second, WindowMinutes: 15}
	a := NewAggregator(source, nopPublisher{}, zap.NewNop(), pipeline.NewMetrics(nil), cfg, 8.0)

	snap, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.ProcessingRate != 0 {
		t.Errorf("ProcessingRate = %v, want 0 for empty window", snap.ProcessingRate)
	}
}

func TestAggregator_SnapshotQueriesHaveDeadline(t *testing.T) {
	source := &stubSource{agents: map[string]int64{}}
	cfg := infra.StatsConfig{Interval: time.Second, WindowMinutes: 60, QueryTimeout: 5 * time.Second}
	a := NewAggregator(source, nopPublisher{}, zap.NewNop(), pipeline.NewMetrics(nil), cfg, 8.0)

	// Цикл получает голый контекст процесса — дедлайн обязан поставить
	// сам агрегатор, иначе зависшее соединение держит его вечно
	if _, err := a.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !source.gotDeadline {
		t.Fatal("store query from stats aggregator carries no deadline")
	}
}

func TestAggregator_SnapshotStoreError(t *testing.T) {
	source := &stubSource{err: errors.New("down")}
	cfg := infra.StatsConfig{Interval: time.Second, WindowMinutes: 60}
	a := NewAggregator(source, nopPublisher{}, zap.NewNop(), pipeline.NewMetrics(nil), cfg, 8.0)

	if _, err := a.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error when store is unavailable")
	}
	// Последний снимок не затирается сбойным циклом
	if a.Latest() != nil {
		t.Error("Latest() should stay nil after failed snapshot")
	}
}

func TestAggregator_LatestIsNilBeforeFirstCycle(t *testing.T) {
	a := NewAggregator(&stubSource{}, nopPublisher{}, zap.NewNop(), pipeline.NewMetrics(nil),
		infra.StatsConfig{Interval: time.Second, WindowMinutes: 60}, 8.0)
	if a.Latest() != nil {
		t.Error("Latest() before first cycle should be nil")
	}
}
