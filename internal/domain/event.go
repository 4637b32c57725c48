package domain

import "time"

// EventKind — тип сообщения в канале подписчика.
type EventKind string

const (
	KindIncident     EventKind = "incident"
	KindNotification EventKind = "notification"
	KindStats        EventKind = "stats"
)

// Tier — уровень срочности инцидента, производная от priority_score.
type Tier string

const (
	TierEmergency Tier = "EMERGENCY"
	TierAlert     Tier = "ALERT"
	TierInfo      Tier = "INFO"
	TierNone      Tier = "NONE"
)

// Notification — производное, транзиентное сообщение. Ядро его не персистит:
// после рассылки оно живет только у подписчиков. SourceSequence позволяет
// потребителю дедуплицировать, если он решит сохранять уведомления у себя.
type Notification struct {
	Kind           Tier      `json:"kind"`
	Message        string    `json:"message"`
	IncidentID     string    `json:"incident_id,omitempty"`
	SourceSequence int64     `json:"source_sequence"`
	Timestamp      time.Time `json:"timestamp"`
}

// StreamEvent — конверт для отправки в Broadcast Hub. Заполнено ровно
// одно из трех полей, в соответствии с Kind.
type StreamEvent struct {
	Kind         EventKind      `json:"kind"`
	Incident     *Incident      `json:"incident,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Stats        *StatsSnapshot `json:"stats,omitempty"`
}
