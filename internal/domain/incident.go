package domain

import "time"

// Incident — запись о городском инциденте. После вставки в хранилище
// запись неизменяема (immutable), ядро читает её только для обработки.
type Incident struct {
	ID       string `json:"id"` // Глобально уникальный ID (UUID или ID источника)
	Sequence int64  `json:"sequence"`

	EventType    string  `json:"event_type"`
	SubCategory  string  `json:"sub_category,omitempty"`
	Description  string  `json:"description,omitempty"`
	LocationName string  `json:"location_name"`
	AreaCategory string  `json:"area_category,omitempty"`
	WardNumber   int     `json:"ward_number,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`

	SeverityLevel      string  `json:"severity_level,omitempty"`
	PriorityScore      float64 `json:"priority_score"` // Диапазон 0-10
	EventStatus        string  `json:"event_status"`
	AssignedDepartment string  `json:"assigned_department"`

	// Timestamp — время события, присылает источник. Может отставать или врать.
	// ProcessedAt — время приёма хранилищем. Все оконные запросы идут по нему.
	Timestamp   time.Time `json:"timestamp"`
	ProcessedAt time.Time `json:"processed_at"`
}

// AgentActivity — запись из append-only журнала действий интеллектуальных агентов.
// Журнал пишут внешние процессы-агенты, ядро его только вычитывает по курсору.
type AgentActivity struct {
	Sequence   int64     `json:"sequence"`
	AgentName  string    `json:"agent_name"`
	IncidentID string    `json:"incident_id"`
	Action     string    `json:"action,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Details — сырой JSON из журнала. Схему владеет агент-писатель,
	// ядро разбирает его через dispatch-таблицу (см. classify.ParseDetails).
	Details []byte `json:"details,omitempty"`
}
