package classify

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
)

// Publisher — выход классификатора (Broadcast Hub).
type Publisher interface {
	Publish(ev domain.StreamEvent)
}

// Classifier назначает инцидентам уровень срочности и порождает уведомления.
// Стадия не имеет состояния ретраев: единственный сбой здесь — кривой вход,
// он логируется, инцидент идет дальше без уведомления.
type Classifier struct {
	emergency float64
	alert     float64
	out       Publisher
	logger    *zap.Logger
}

func NewClassifier(cfg infra.ClassifyConfig, out Publisher, logger *zap.Logger) *Classifier {
	return &Classifier{
		emergency: cfg.EmergencyThreshold,
		alert:     cfg.AlertThreshold,
		out:       out,
		logger:    logger.Named("classifier"),
	}
}

// Classify — чистая функция от priority_score. Повторный вызов с тем же
// значением всегда дает тот же tier.
func (c *Classifier) Classify(score float64) domain.Tier {
	switch {
	case score >= c.emergency:
		return domain.TierEmergency
	case score >= c.alert:
		return domain.TierAlert
	default:
		return domain.TierNone
	}
}

// HandleIncident — вход со стороны монитора. Инцидент уходит в рассылку
// всегда (дашборды и статистика видят всё), уведомление — только для
// EMERGENCY и ALERT.
func (c *Classifier) HandleIncident(inc domain.Incident) {
	c.out.Publish(domain.StreamEvent{Kind: domain.KindIncident, Incident: &inc})

	if math.IsNaN(inc.PriorityScore) || inc.PriorityScore < 0 || inc.PriorityScore > 10 {
		c.logger.Warn("malformed priority score, incident excluded from notification",
			zap.String("incident_id", inc.ID),
			zap.Int64("sequence", inc.Sequence),
			zap.Float64("priority_score", inc.PriorityScore))
		return
	}

	tier := c.Classify(inc.PriorityScore)
	if tier == domain.TierNone {
		return
	}

	var message string
	switch tier {
	case domain.TierEmergency:
		message = fmt.Sprintf("EMERGENCY: %s in %s (priority %.1f)", inc.EventType, inc.LocationName, inc.PriorityScore)
	case domain.TierAlert:
		message = fmt.Sprintf("HIGH PRIORITY: %s in %s, attention required by %s", inc.EventType, inc.LocationName, inc.AssignedDepartment)
	}

	c.out.Publish(domain.StreamEvent{
		Kind: domain.KindNotification,
		Notification: &domain.Notification{
			Kind:           tier,
			Message:        message,
			IncidentID:     inc.ID,
			SourceSequence: inc.Sequence,
			Timestamp:      time.Now().UTC(),
		},
	})
}
