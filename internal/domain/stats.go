package domain

import "time"

// StatsSnapshot — полный пересчет статистики за один цикл агрегатора.
// Снимок каждый раз строится с нуля запросами к хранилищу: инкрементальному
// состоянию в памяти после рестарта доверять нельзя.
type StatsSnapshot struct {
	TotalIncidents    int64 `json:"total_incidents"`
	HighPriorityCount int64 `json:"high_priority_count"`

	// ProcessingRate — событий в минуту за скользящее окно.
	// Считается по processed_at (времени приёма), не по timestamp источника.
	ProcessingRate float64 `json:"processing_rate"`

	AgentActivityCounts map[string]int64 `json:"agent_activity_counts"`

	WindowMinutes int       `json:"window_minutes"`
	GeneratedAt   time.Time `json:"generated_at"`
}
