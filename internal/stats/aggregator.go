package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

// Source — запросы агрегатора к хранилищу.
type Source interface {
	CountIncidents(ctx context.Context) (int64, error)
	CountHighPriority(ctx context.Context, threshold float64) (int64, error)
	CountIncidentsSince(ctx context.Context, windowStart time.Time) (int64, error)
	ActivityCountsSince(ctx context.Context, windowStart time.Time) (map[string]int64, error)
}

// Publisher — выход агрегатора (Broadcast Hub).
type Publisher interface {
	Publish(ev domain.StreamEvent)
}

// Aggregator на своем интервале пересобирает StatsSnapshot с нуля.
// Никакого инкрементального состояния: после рестарта первый же цикл
// дает корректный снимок.
type Aggregator struct {
	source        Source
	out           Publisher
	logger        *zap.Logger
	m             *pipeline.Metrics
	cfg           infra.StatsConfig
	highThreshold float64

	now func() time.Time // подменяется в тестах

	mu     sync.RWMutex
	latest *domain.StatsSnapshot
}

func NewAggregator(source Source, out Publisher, logger *zap.Logger, m *pipeline.Metrics, cfg infra.StatsConfig, highThreshold float64) *Aggregator {
	return &Aggregator{
		source:        source,
		out:           out,
		logger:        logger.Named("stats"),
		m:             m,
		cfg:           cfg,
		highThreshold: highThreshold,
		now:           time.Now,
	}
}

// Run крутит цикл агрегации до отмены контекста. Сбой цикла пропускает
// тик, не трогая последний удачный снимок.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("stats aggregator started",
		zap.Duration("interval", a.cfg.Interval),
		zap.Int("window_minutes", a.cfg.WindowMinutes))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("stats aggregator stopping by context")
			return
		case <-ticker.C:
			started := time.Now()
			snap, err := a.Snapshot(ctx)
			if err != nil {
				a.logger.Warn("stats cycle skipped", zap.Error(err))
				continue
			}
			a.m.SnapshotDuration.Observe(time.Since(started).Seconds())

			a.mu.Lock()
			a.latest = snap
			a.mu.Unlock()

			a.out.Publish(domain.StreamEvent{Kind: domain.KindStats, Stats: snap})
		}
	}
}

// Snapshot выполняет полный пересчет. Окно считается по processed_at:
// event time источника для rate непригоден (бэкдейт, кривые часы).
// Все запросы цикла идут под общим дедлайном: зависшее (не ошибающееся)
// соединение не должно останавливать агрегатор навсегда.
func (a *Aggregator) Snapshot(ctx context.Context) (*domain.StatsSnapshot, error) {
	if a.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
	}

	windowStart := a.now().Add(-time.Duration(a.cfg.WindowMinutes) * time.Minute)

	total, err := a.source.CountIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: total count failed: %w", err)
	}

	high, err := a.source.CountHighPriority(ctx, a.highThreshold)
	if err != nil {
		return nil, fmt.Errorf("stats: high priority count failed: %w", err)
	}

	recent, err := a.source.CountIncidentsSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("stats: window count failed: %w", err)
	}

	agentCounts, err := a.source.ActivityCountsSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("stats: agent activity count failed: %w", err)
	}

	return &domain.StatsSnapshot{
		TotalIncidents:      total,
		HighPriorityCount:   high,
		ProcessingRate:      float64(recent) / float64(a.cfg.WindowMinutes),
		AgentActivityCounts: agentCounts,
		WindowMinutes:       a.cfg.WindowMinutes,
		GeneratedAt:         a.now().UTC(),
	}, nil
}

// Latest — последний удачный снимок для HTTP-дашборда (может быть nil).
func (a *Aggregator) Latest() *domain.StatsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}
