package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "citypulse"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanStreamEvents — канал зеркалирования событий пайплайна
	// между инстансами (hub relay).
	RedisChanStreamEvents = RedisNamespace + ":stream:events"
)

// RelayChannelKey Генератор имени канала для нестандартных потоков
// (например, отдельный канал на каждый город в multi-tenant инсталляции).
func RelayChannelKey(stream string) string {
	return fmt.Sprintf("%s:stream:%s", RedisNamespace, stream)
}
