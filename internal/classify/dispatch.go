package classify

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

// Известные агенты. Записи от других имен попадают в общий подсчет
// активности, но уведомлений не порождают.
const (
	AgentNotification       = "notification_agent"
	AgentTrendAnalysis      = "trend_analysis_agent"
	AgentResourceAllocation = "resource_allocation_agent"
	AgentNewsInsights       = "news_insights_agent"
)

// AgentDetails — типизированный вариант поля details.
// Схемой владеет агент-писатель, поэтому payload недоверенный: ошибка разбора
// деградирует до UnknownDetails, а не роняет обработку записи.
type AgentDetails interface {
	agentDetails()
}

// NotificationDetails — отчет notification_agent о разосланных уведомлениях.
type NotificationDetails struct {
	NotificationsSent int     `json:"notifications_sent"`
	PriorityScore     float64 `json:"priority_score"`
}

// TrendDetails — вывод trend_analysis_agent.
type TrendDetails struct {
	Insight   string `json:"insight"`
	EventType string `json:"event_type"`
}

// ResourceDetails — план resource_allocation_agent.
type ResourceDetails struct {
	Allocation struct {
		Personnel    int    `json:"personnel"`
		Vehicles     int    `json:"vehicles"`
		ResponseTime string `json:"response_time"`
	} `json:"allocation"`
	Department string `json:"department"`
}

// NewsDetails — оценка news_insights_agent.
type NewsDetails struct {
	NewsImpact string  `json:"news_impact"`
	Priority   float64 `json:"priority"`
}

// UnknownDetails — fallback для неизвестного агента или нечитаемого payload.
type UnknownDetails struct{}

func (NotificationDetails) agentDetails() {}
func (TrendDetails) agentDetails()        {}
func (ResourceDetails) agentDetails()     {}
func (NewsDetails) agentDetails()         {}
func (UnknownDetails) agentDetails()      {}

// ParseDetails разбирает payload по имени агента. Никогда не возвращает
// ошибку: sequence должен продвинуться в любом случае.
func ParseDetails(agentName string, raw []byte) AgentDetails {
	if len(raw) == 0 {
		return UnknownDetails{}
	}

	switch agentName {
	case AgentNotification:
		var d NotificationDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return UnknownDetails{}
		}
		return d
	case AgentTrendAnalysis:
		var d TrendDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return UnknownDetails{}
		}
		return d
	case AgentResourceAllocation:
		var d ResourceDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return UnknownDetails{}
		}
		return d
	case AgentNewsInsights:
		var d NewsDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return UnknownDetails{}
		}
		return d
	default:
		return UnknownDetails{}
	}
}

// Dispatcher превращает записи журнала агентов в уведомления для рассылки.
type Dispatcher struct {
	out    Publisher
	logger *zap.Logger
}

func NewDispatcher(out Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		out:    out,
		logger: logger.Named("agent-dispatch"),
	}
}

// HandleActivity — вход со стороны монитора журнала агентов.
func (d *Dispatcher) HandleActivity(act domain.AgentActivity) {
	message, ok := d.render(act)
	if !ok {
		// Неизвестный агент или пустой payload: в тали активности запись
		// попадет через оконный запрос агрегатора, уведомления не будет.
		d.logger.Debug("activity without notification",
			zap.String("agent", act.AgentName),
			zap.Int64("sequence", act.Sequence))
		return
	}

	d.out.Publish(domain.StreamEvent{
		Kind: domain.KindNotification,
		Notification: &domain.Notification{
			Kind:           domain.TierInfo,
			Message:        message,
			IncidentID:     act.IncidentID,
			SourceSequence: act.Sequence,
			Timestamp:      time.Now().UTC(),
		},
	})
}

func (d *Dispatcher) render(act domain.AgentActivity) (string, bool) {
	details := ParseDetails(act.AgentName, act.Details)

	switch v := details.(type) {
	case NotificationDetails:
		return fmt.Sprintf("notification agent delivered %d notification(s) for incident %s",
			v.NotificationsSent, act.IncidentID), true
	case TrendDetails:
		if v.Insight == "" {
			return fmt.Sprintf("trend analysis completed for incident %s", act.IncidentID), true
		}
		return fmt.Sprintf("trend analysis: %s", v.Insight), true
	case ResourceDetails:
		return fmt.Sprintf("resources allocated for incident %s: %d personnel, %d vehicle(s), ETA %s",
			act.IncidentID, v.Allocation.Personnel, v.Allocation.Vehicles, v.Allocation.ResponseTime), true
	case NewsDetails:
		return fmt.Sprintf("news impact for incident %s: %s", act.IncidentID, v.NewsImpact), true
	default:
		// Известный агент с нечитаемым payload все равно дает notice:
		// запись журнала была, потерять ее молча нельзя.
		switch act.AgentName {
		case AgentNotification, AgentTrendAnalysis, AgentResourceAllocation, AgentNewsInsights:
			return fmt.Sprintf("agent %s processed incident %s", act.AgentName, act.IncidentID), true
		}
		return "", false
	}
}
