package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

// ActivitySource описывает доступ к append-only журналу действий агентов.
type ActivitySource interface {
	FetchActivitiesAfter(ctx context.Context, cursor int64, limit int) ([]domain.AgentActivity, error)
	MaxActivitySequence(ctx context.Context) (int64, error)
}

// ActivitySink — куда монитор отдает записи журнала (dispatch-таблица агентов).
type ActivitySink interface {
	HandleActivity(act domain.AgentActivity)
}

// ActivityMonitor — та же курсорная дисциплина, что и у IncidentMonitor,
// но над журналом агентов и со своим независимым курсором.
type ActivityMonitor struct {
	source ActivitySource
	sink   ActivitySink
	logger *zap.Logger
	m      *pipeline.Metrics
	cfg    infra.MonitorConfig

	cursor      *Cursor
	failedTicks int
	regressed   bool
	initialized bool
}

func NewActivityMonitor(source ActivitySource, sink ActivitySink, logger *zap.Logger, m *pipeline.Metrics, cfg infra.MonitorConfig) *ActivityMonitor {
	return &ActivityMonitor{
		source: source,
		sink:   sink,
		logger: logger.Named("activity-monitor"),
		m:      m,
		cfg:    cfg,
	}
}

const activityMonitorName = "agent_activities"

func (mon *ActivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.cfg.ActivityInterval)
	defer ticker.Stop()

	mon.logger.Info("activity monitor started",
		zap.Duration("interval", mon.cfg.ActivityInterval),
		zap.Int("page_size", mon.cfg.PageSize))

	for {
		select {
		case <-ctx.Done():
			mon.logger.Info("activity monitor stopping by context")
			return
		case <-ticker.C:
			mon.tick(ctx)
		}
	}
}

func (mon *ActivityMonitor) tick(ctx context.Context) {
	mon.m.TicksTotal.WithLabelValues(activityMonitorName).Inc()

	qctx, cancel := context.WithTimeout(ctx, mon.cfg.QueryTimeout)
	defer cancel()

	if !mon.initialized {
		start := int64(0)
		if !mon.cfg.BackfillOnStart {
			maxSeq, err := mon.source.MaxActivitySequence(qctx)
			if err != nil {
				mon.recordFailure(err)
				return
			}
			start = maxSeq
		}
		mon.cursor = NewCursor(start)
		mon.initialized = true
		mon.logger.Info("cursor initialized", zap.Int64("start", start))
	}

	maxSeq, err := mon.source.MaxActivitySequence(qctx)
	if err != nil {
		mon.recordFailure(err)
		return
	}

	if maxSeq < mon.cursor.Value() {
		if !mon.regressed {
			mon.logger.Error("activity log sequence regressed below cursor: manual intervention required",
				zap.Int64("cursor", mon.cursor.Value()),
				zap.Int64("store_max", maxSeq))
			mon.regressed = true
		}
		mon.m.MonitorStale.WithLabelValues(activityMonitorName).Set(1)
		return
	}
	mon.regressed = false
	mon.m.CursorLag.WithLabelValues(activityMonitorName).Set(float64(maxSeq - mon.cursor.Value()))

	activities, err := mon.source.FetchActivitiesAfter(qctx, mon.cursor.Value(), mon.cfg.PageSize)
	if err != nil {
		mon.recordFailure(err)
		return
	}

	if len(activities) == 0 && maxSeq > mon.cursor.Value() {
		mon.failedTicks++
		mon.m.TickErrors.WithLabelValues(activityMonitorName, "empty_while_behind").Inc()
		mon.logger.Warn("empty fetch while behind store max",
			zap.Int64("cursor", mon.cursor.Value()),
			zap.Int64("store_max", maxSeq),
			zap.Int("consecutive_failures", mon.failedTicks))
		if mon.failedTicks >= mon.cfg.StaleAfterTicks {
			mon.m.MonitorStale.WithLabelValues(activityMonitorName).Set(1)
		}
		return
	}

	mon.failedTicks = 0
	mon.m.MonitorStale.WithLabelValues(activityMonitorName).Set(0)

	for _, act := range activities {
		mon.sink.HandleActivity(act)
		mon.cursor.Advance(act.Sequence)
		mon.m.EventsEmitted.WithLabelValues(activityMonitorName, string(domain.KindNotification)).Inc()
	}

	if len(activities) > 0 {
		mon.logger.Debug("activities emitted",
			zap.Int("count", len(activities)),
			zap.Int64("cursor", mon.cursor.Value()))
	}
}

func (mon *ActivityMonitor) recordFailure(err error) {
	mon.failedTicks++
	mon.m.TickErrors.WithLabelValues(activityMonitorName, "store_unavailable").Inc()
	mon.logger.Warn("tick skipped: activity log unavailable",
		zap.Int("consecutive_failures", mon.failedTicks),
		zap.Error(err))

	if mon.failedTicks >= mon.cfg.StaleAfterTicks {
		mon.m.MonitorStale.WithLabelValues(activityMonitorName).Set(1)
	}
}
