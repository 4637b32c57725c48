package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

// relayEnvelope — событие в Redis-канале. Origin отсекает собственные
// сообщения: каждый инстанс и публикует, и слушает один канал.
type relayEnvelope struct {
	Origin string             `json:"origin"`
	Event  domain.StreamEvent `json:"event"`
}

// Relay зеркалирует события хаба через Redis Pub/Sub, чтобы подписчики
// соседних инстансов видели тот же поток. Relay оборачивает локальный хаб:
// пайплайн публикует в Relay, Relay — в хаб и в канал.
type Relay struct {
	hub        *Hub
	rdb        *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

func NewRelay(h *Hub, rdb *redis.Client, channel string, logger *zap.Logger) *Relay {
	return &Relay{
		hub:        h,
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger.Named("relay"),
	}
}

// Publish отдает событие локальным подписчикам и в Redis-канал.
// Недоступный Redis деградирует relay до локальной рассылки: это
// fire-and-forget поток, ретраев здесь нет.
func (r *Relay) Publish(ev domain.StreamEvent) {
	r.hub.Publish(ev)

	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Event: ev})
	if err != nil {
		r.logger.Warn("relay marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("relay publish failed", zap.Error(err))
	}
}

// Run — живучая подписка на канал relay: переподключение с паузой,
// разбор конверта, отбрасывание собственных сообщений.
func (r *Relay) Run(ctx context.Context) {
	for {
		pubsub := r.rdb.Subscribe(ctx, r.channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			r.logger.Error("failed to subscribe", zap.String("chan", r.channel), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		r.logger.Info("relay listener started", zap.String("chan", r.channel))
		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Error("invalid relay payload", zap.Error(err))
					continue
				}
				if env.Origin == r.instanceID {
					continue // Свое же сообщение
				}

				r.hub.Publish(env.Event)
			}
		}

		pubsub.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}
