package simulator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
)

// Sink — куда симулятор вставляет пачки (Postgres Store).
type Sink interface {
	InsertIncidents(ctx context.Context, incidents []domain.Incident) error
}

// Simulator нарезает датасет на пачки и вставляет их в хранилище с заданной
// частотой, имитируя живой поток репортов. Sequence и processed_at назначает
// база — симулятор их не трогает.
type Simulator struct {
	sink    Sink
	logger  *zap.Logger
	cfg     infra.SimulatorConfig
	dataset []domain.Incident
	idx     int
	passes  int
}

func NewSimulator(sink Sink, dataset []domain.Incident, logger *zap.Logger, cfg infra.SimulatorConfig) *Simulator {
	ds := make([]domain.Incident, len(dataset))
	copy(ds, dataset)

	if cfg.Policy == "shuffle" {
		rand.Shuffle(len(ds), func(i, j int) { ds[i], ds[j] = ds[j], ds[i] })
	}

	return &Simulator{
		sink:    sink,
		logger:  logger.Named("simulator"),
		cfg:     cfg,
		dataset: ds,
	}
}

// Run гонит пачки до исчерпания датасета (policy stop) или до отмены контекста.
func (s *Simulator) Run(ctx context.Context) {
	if len(s.dataset) == 0 {
		s.logger.Warn("dataset is empty, nothing to simulate")
		return
	}

	s.logger.Info("simulator started",
		zap.Int("records", len(s.dataset)),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Duration("interval", s.cfg.Interval),
		zap.String("policy", s.cfg.Policy),
		zap.String("on_exhausted", s.cfg.OnExhausted))

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopping by context", zap.Int("position", s.idx))
			return
		case <-timer.C:
			if done := s.tick(ctx); done {
				s.logger.Info("dataset exhausted, simulator finished",
					zap.Int("records", len(s.dataset)),
					zap.Int("passes", s.passes+1))
				return
			}
			timer.Reset(s.nextInterval())
		}
	}
}

// tick вставляет одну пачку. При ошибке вставки позиция не двигается:
// та же пачка уйдет на следующем тике. Возвращает true, когда датасет
// исчерпан и политика велит остановиться.
func (s *Simulator) tick(ctx context.Context) bool {
	if s.idx >= len(s.dataset) {
		if s.cfg.OnExhausted == "stop" {
			return true
		}
		// Новый проход: перемешиваем заново, таймстемпы перепишутся на вставке
		s.idx = 0
		s.passes++
		if s.cfg.Policy == "shuffle" {
			rand.Shuffle(len(s.dataset), func(i, j int) {
				s.dataset[i], s.dataset[j] = s.dataset[j], s.dataset[i]
			})
		}
		s.logger.Info("dataset exhausted, looping", zap.Int("pass", s.passes+1))
	}

	size := s.nextBatchSize()
	end := s.idx + size
	if end > len(s.dataset) {
		end = len(s.dataset)
	}

	batch := make([]domain.Incident, end-s.idx)
	copy(batch, s.dataset[s.idx:end])

	now := time.Now().UTC()
	for i := range batch {
		// На повторных проходах датасета таймстемпы переписываются на
		// текущее время, иначе записи уходят событиями из прошлого.
		// Первый проход сохраняет исходное event time: processed_at
		// в любом случае проставит база при вставке.
		if s.passes > 0 {
			batch[i].Timestamp = now
		}
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}

	if err := s.sink.InsertIncidents(ctx, batch); err != nil {
		s.logger.Warn("batch insert failed, will retry same batch",
			zap.Int("size", len(batch)),
			zap.Error(err))
		return false
	}

	s.idx = end
	s.logger.Info("batch inserted",
		zap.Int("size", len(batch)),
		zap.Int("position", s.idx),
		zap.Int("total", len(s.dataset)))
	return false
}

// nextBatchSize — размер следующей пачки: base-2..base+3 при включенном
// jitter, минимум 1.
func (s *Simulator) nextBatchSize() int {
	size := s.cfg.BatchSize
	if s.cfg.Jitter {
		size += rand.IntN(6) - 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// nextInterval — пауза до следующей пачки: ±5s при включенном jitter,
// минимум 1s.
func (s *Simulator) nextInterval() time.Duration {
	interval := s.cfg.Interval
	if s.cfg.Jitter {
		interval += time.Duration(rand.IntN(10001)-5000) * time.Millisecond
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
