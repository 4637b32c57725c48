package insight

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
)

// Source — выборка инцидентов окна для суммаризации.
type Source interface {
	FetchIncidentsSince(ctx context.Context, windowStart time.Time, limit int) ([]domain.Incident, error)
}

// Publisher — выход генератора (Broadcast Hub).
type Publisher interface {
	Publish(ev domain.StreamEvent)
}

// Generator периодически собирает сводку по инцидентам скользящего окна
// и рассылает ее как INFO-уведомление. Сводка — чистая производная,
// никуда не персистится.
type Generator struct {
	source     Source
	summarizer Summarizer
	out        Publisher
	logger     *zap.Logger
	cfg        infra.InsightConfig
	windowMin  int
}

func NewGenerator(source Source, summarizer Summarizer, out Publisher, logger *zap.Logger, cfg infra.InsightConfig, windowMinutes int) *Generator {
	return &Generator{
		source:     source,
		summarizer: summarizer,
		out:        out,
		logger:     logger.Named("insight"),
		cfg:        cfg,
		windowMin:  windowMinutes,
	}
}

const summarizeLimit = 500 // Хватает любому окну; защищает суммаризатор от взрыва

func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	g.logger.Info("insight generator started", zap.Duration("interval", g.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("insight generator stopping by context")
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Generator) tick(ctx context.Context) {
	windowStart := time.Now().Add(-time.Duration(g.windowMin) * time.Minute)

	// Выборка окна под дедлайном; сам вызов суммаризатора ограничен
	// отдельно (call_timeout внутри ReliableSummarizer)
	qctx := ctx
	if g.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, g.cfg.QueryTimeout)
		defer cancel()
	}

	incidents, err := g.source.FetchIncidentsSince(qctx, windowStart, summarizeLimit)
	if err != nil {
		g.logger.Warn("insight cycle skipped: store unavailable", zap.Error(err))
		return
	}

	ins, err := g.summarizer.Summarize(ctx, incidents)
	if err != nil {
		// ReliableSummarizer сюда не попадает (fallback), но контракт
		// интерфейса ошибку допускает
		g.logger.Warn("summarize failed", zap.Error(err))
		return
	}

	var maxSeq int64
	for _, inc := range incidents {
		if inc.Sequence > maxSeq {
			maxSeq = inc.Sequence
		}
	}

	g.out.Publish(domain.StreamEvent{
		Kind: domain.KindNotification,
		Notification: &domain.Notification{
			Kind:           domain.TierInfo,
			Message:        ins.Summary + " | " + ins.RiskAssessment,
			SourceSequence: maxSeq,
			Timestamp:      time.Now().UTC(),
		},
	})

	g.logger.Debug("insight published",
		zap.String("source", ins.Source),
		zap.Int("incidents", len(incidents)))
}
