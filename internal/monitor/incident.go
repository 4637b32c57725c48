package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

// IncidentSource описывает, что монитору нужно от хранилища инцидентов.
type IncidentSource interface {
	FetchIncidentsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Incident, error)
	MaxIncidentSequence(ctx context.Context) (int64, error)
}

// IncidentSink — куда монитор отдает вычитанные инциденты (классификатор).
type IncidentSink interface {
	HandleIncident(inc domain.Incident)
}

// IncidentMonitor вычитывает новые строки из хранилища по курсору.
//
// Контракт доставки: emit → потом advance. Между ними нет атомарности,
// поэтому после падения возможна повторная доставка уже отданных строк —
// at-least-once, потребители дедуплицируют по sequence.
type IncidentMonitor struct {
	source IncidentSource
	sink   IncidentSink
	logger *zap.Logger
	m      *pipeline.Metrics
	cfg    infra.MonitorConfig

	cursor      *Cursor
	failedTicks int
	regressed   bool
	initialized bool
}

func NewIncidentMonitor(source IncidentSource, sink IncidentSink, logger *zap.Logger, m *pipeline.Metrics, cfg infra.MonitorConfig) *IncidentMonitor {
	return &IncidentMonitor{
		source: source,
		sink:   sink,
		logger: logger.Named("incident-monitor"),
		m:      m,
		cfg:    cfg,
	}
}

const incidentMonitorName = "incidents"

// Run крутит цикл опроса до отмены контекста. Из цикла не выходит
// ни одна ошибка: неудачный тик пропускается и повторяется на следующем.
func (mon *IncidentMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.cfg.IncidentInterval)
	defer ticker.Stop()

	mon.logger.Info("incident monitor started",
		zap.Duration("interval", mon.cfg.IncidentInterval),
		zap.Int("page_size", mon.cfg.PageSize),
		zap.Bool("backfill", mon.cfg.BackfillOnStart))

	for {
		select {
		case <-ctx.Done():
			mon.logger.Info("incident monitor stopping by context",
				zap.Int64("cursor", mon.cursorValue()))
			return
		case <-ticker.C:
			mon.tick(ctx)
		}
	}
}

func (mon *IncidentMonitor) cursorValue() int64 {
	if mon.cursor == nil {
		return 0
	}
	return mon.cursor.Value()
}

func (mon *IncidentMonitor) tick(ctx context.Context) {
	mon.m.TicksTotal.WithLabelValues(incidentMonitorName).Inc()

	qctx, cancel := context.WithTimeout(ctx, mon.cfg.QueryTimeout)
	defer cancel()

	// Ленивая инициализация курсора: без backfill стартуем с текущего
	// максимума, иначе с нуля. Откладываем до первого живого тика,
	// чтобы недоступная на старте база не роняла процесс.
	if !mon.initialized {
		start := int64(0)
		if !mon.cfg.BackfillOnStart {
			maxSeq, err := mon.source.MaxIncidentSequence(qctx)
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

	maxSeq, err := mon.source.MaxIncidentSequence(qctx)
	if err != nil {
		mon.recordFailure(err)
		return
	}

	// Откат счетчика sequence ниже курсора: ни одна строка больше не
	// сматчится, тихо "висеть" нельзя. Сбрасывать курсор тоже нельзя —
	// это массовая ре-доставка. Только операционный алерт.
	if maxSeq < mon.cursor.Value() {
		if !mon.regressed {
			mon.logger.Error("store sequence regressed below cursor: manual intervention required",
				zap.Int64("cursor", mon.cursor.Value()),
				zap.Int64("store_max", maxSeq))
			mon.regressed = true
		}
		mon.m.MonitorStale.WithLabelValues(incidentMonitorName).Set(1)
		return
	}
	mon.regressed = false
	mon.m.CursorLag.WithLabelValues(incidentMonitorName).Set(float64(maxSeq - mon.cursor.Value()))

	incidents, err := mon.source.FetchIncidentsAfter(qctx, mon.cursor.Value(), mon.cfg.PageSize)
	if err != nil {
		mon.recordFailure(err)
		return
	}

	// Хранилище отстает от собственного максимума: строки есть, а выборка
	// пустая. Считаем такой тик неудачным — несколько подряд значат,
	// что монитор протух.
	if len(incidents) == 0 && maxSeq > mon.cursor.Value() {
		mon.failedTicks++
		mon.m.TickErrors.WithLabelValues(incidentMonitorName, "empty_while_behind").Inc()
		mon.logger.Warn("empty fetch while behind store max",
			zap.Int64("cursor", mon.cursor.Value()),
			zap.Int64("store_max", maxSeq),
			zap.Int("consecutive_failures", mon.failedTicks))
		if mon.failedTicks >= mon.cfg.StaleAfterTicks {
			mon.m.MonitorStale.WithLabelValues(incidentMonitorName).Set(1)
		}
		return
	}

	mon.failedTicks = 0
	mon.m.MonitorStale.WithLabelValues(incidentMonitorName).Set(0)

	// Порядок строго по sequence: сначала отдаем событие вниз,
	// потом двигаем курсор. Упадем между ними — строка придет еще раз.
	for _, inc := range incidents {
		mon.sink.HandleIncident(inc)
		mon.cursor.Advance(inc.Sequence)
		mon.m.EventsEmitted.WithLabelValues(incidentMonitorName, string(domain.KindIncident)).Inc()
	}

	if len(incidents) > 0 {
		mon.logger.Debug("incidents emitted",
			zap.Int("count", len(incidents)),
			zap.Int64("cursor", mon.cursor.Value()))
	}
}

func (mon *IncidentMonitor) recordFailure(err error) {
	mon.failedTicks++
	mon.m.TickErrors.WithLabelValues(incidentMonitorName, "store_unavailable").Inc()
	mon.logger.Warn("tick skipped: store unavailable",
		zap.Int("consecutive_failures", mon.failedTicks),
		zap.Error(err))

	if mon.failedTicks >= mon.cfg.StaleAfterTicks {
		mon.m.MonitorStale.WithLabelValues(incidentMonitorName).Set(1)
	}
}
