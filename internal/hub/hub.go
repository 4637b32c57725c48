package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
	"github.com/xela07ax/citypulse-stream/internal/pipeline"
)

// Subscriber — одно живое подключение. У каждого своя ограниченная
// исходящая очередь: медленный потребитель теряет свои события,
// не задерживая остальных.
type Subscriber struct {
	ID string
	ch chan domain.StreamEvent
}

// Events — канал доставки. Закрывается хабом при отписке или остановке.
func (s *Subscriber) Events() <-chan domain.StreamEvent {
	return s.ch
}

// Hub — реестр подписчиков плюс ограниченный replay-буфер последних
// инцидентов для подключившихся позже.
//
// Вся мутация реестра и публикация сериализованы одним мьютексом;
// это безопасно, потому что отправка в очередь подписчика неблокирующая.
// Состояние подписчика между переподключениями не хранится.
type Hub struct {
	logger *zap.Logger
	m      *pipeline.Metrics
	cfg    infra.HubConfig

	mu     sync.Mutex
	subs   map[string]*Subscriber
	replay []domain.Incident // Кольцо последних K инцидентов
	closed bool
}

func NewHub(cfg infra.HubConfig, logger *zap.Logger, m *pipeline.Metrics) *Hub {
	return &Hub{
		logger: logger.Named("hub"),
		m:      m,
		cfg:    cfg,
		subs:   make(map[string]*Subscriber),
		replay: make([]domain.Incident, 0, cfg.ReplaySize),
	}
}

// Publish рассылает событие всем текущим подписчикам. Инциденты попадают
// и в replay-буфер. Переполненная очередь подписчика — отказ доставки
// только этому подписчику и только для этого события (drop-newest).
func (h *Hub) Publish(ev domain.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if ev.Kind == domain.KindIncident && ev.Incident != nil {
		h.appendReplay(*ev.Incident)
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.m.DroppedEvents.WithLabelValues(string(ev.Kind)).Inc()
			h.logger.Debug("event dropped for slow subscriber",
				zap.String("subscriber", sub.ID),
				zap.String("kind", string(ev.Kind)))
		}
	}
}

func (h *Hub) appendReplay(inc domain.Incident) {
	if h.cfg.ReplaySize <= 0 {
		return
	}
	h.replay = append(h.replay, inc)
	if len(h.replay) > h.cfg.ReplaySize {
		h.replay = h.replay[len(h.replay)-h.cfg.ReplaySize:]
	}
}

// Subscribe регистрирует новое подключение. До живого стрима подписчик
// получает бэкфилл: до K последних инцидентов из replay-буфера.
// Регистрация и заливка бэкфилла атомарны относительно Publish, поэтому
// между replay и live нет ни дыры, ни дубля.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.NewString(),
		// Запас под бэкфилл плюс рабочая глубина очереди
		ch: make(chan domain.StreamEvent, h.cfg.ReplaySize+h.cfg.QueueDepth),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}

	for i := range h.replay {
		inc := h.replay[i]
		sub.ch <- domain.StreamEvent{Kind: domain.KindIncident, Incident: &inc}
	}

	h.subs[sub.ID] = sub
	h.m.Subscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber connected",
		zap.String("subscriber", sub.ID),
		zap.Int("replayed", len(h.replay)),
		zap.Int("connected", len(h.subs)))
	return sub
}

// Unsubscribe снимает подключение с рассылки и закрывает его канал.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	h.m.Subscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber disconnected",
		zap.String("subscriber", id),
		zap.Int("connected", len(h.subs)))
}

// ConnectedClients — количество живых подписчиков (наблюдаемость, не логика).
func (h *Hub) ConnectedClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// RecentIncidents — копия replay-буфера для HTTP-выдачи.
func (h *Hub) RecentIncidents() []domain.Incident {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Incident, len(h.replay))
	copy(out, h.replay)
	return out
}

// Close останавливает рассылку и закрывает каналы всех подписчиков.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.m.Subscribers.Set(0)
	h.logger.Info("hub closed")
}
