package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

// Insight — фиксированный JSON-контракт ответа суммаризатора.
// Генерация текста — внешний сервис; для ядра это непрозрачный вызов
// summarize(incidents) -> Insight с детерминированным fallback.
type Insight struct {
	Summary         string   `json:"summary"`
	RiskAssessment  string   `json:"risk_assessment"`
	Recommendations []string `json:"recommendations"`
	Source          string   `json:"source"` // "model" или "fallback"
}

// Summarizer — контракт внешнего сервиса суммаризации.
type Summarizer interface {
	Summarize(ctx context.Context, incidents []domain.Incident) (*Insight, error)
}

// HTTPSummarizer шлет пачку инцидентов на endpoint и ждет Insight в ответ.
type HTTPSummarizer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSummarizer(endpoint string, timeout time.Duration) *HTTPSummarizer {
	return &HTTPSummarizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, incidents []domain.Incident) (*Insight, error) {
	body, err := json.Marshal(map[string]any{"incidents": incidents})
	if err != nil {
		return nil, fmt.Errorf("summarizer: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("summarizer: bad request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarizer: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("summarizer: unexpected status %d", resp.StatusCode)
	}

	var result Insight
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("summarizer: decode failed: %w", err)
	}
	result.Source = "model"
	return &result, nil
}

// ReliableSummarizer оборачивает внешний вызов в rate limiter,
// circuit breaker и ретраи. Любой итоговый отказ закрывается
// детерминированным rule-based fallback: стадия не умеет фейлиться.
type ReliableSummarizer struct {
	next    Summarizer
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewReliableSummarizer(next Summarizer, rps float64, timeout time.Duration) *ReliableSummarizer {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "insight-summarizer",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	if rps <= 0 {
		rps = 1
	}

	return &ReliableSummarizer{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		timeout: timeout,
	}
}

// Summarize никогда не возвращает ошибку наружу: отказ модели — это fallback.
func (r *ReliableSummarizer) Summarize(ctx context.Context, incidents []domain.Incident) (*Insight, error) {
	if r.next == nil {
		return Fallback(incidents), nil
	}

	// 1. Rate Limiter
	if err := r.limiter.Wait(ctx); err != nil {
		return Fallback(incidents), nil
	}

	// 2. Circuit Breaker + ретраи
	result, err := r.cb.Execute(func() (interface{}, error) {
		var ins *Insight
		retryErr := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		).Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			var callErr error
			ins, callErr = r.next.Summarize(tCtx, incidents)
			return callErr
		})
		return ins, retryErr
	})
	if err != nil {
		return Fallback(incidents), nil
	}

	return result.(*Insight), nil
}

// Fallback — детерминированная rule-based сводка, когда модель недоступна.
// Одна и та же пачка инцидентов всегда дает один и тот же текст.
func Fallback(incidents []domain.Incident) *Insight {
	if len(incidents) == 0 {
		return &Insight{
			Summary:        "No incidents recorded in the trailing window.",
			RiskAssessment: "LOW - Routine monitoring",
			Source:         "fallback",
		}
	}

	byType := make(map[string]int)
	var high int
	for _, inc := range incidents {
		byType[inc.EventType]++
		if inc.PriorityScore >= 8.0 {
			high++
		}
	}

	dominant := ""
	for t, n := range byType {
		if dominant == "" || n > byType[dominant] || (n == byType[dominant] && t < dominant) {
			dominant = t
		}
	}

	risk := "LOW - Routine incident logging"
	switch {
	case high >= 5:
		risk = "HIGH - Requires immediate public communication"
	case high >= 1:
		risk = "MEDIUM - Monitor for public interest"
	}

	recommendations := map[string]string{
		"traffic_accident": "Review traffic signal timing and deploy wardens near repeat accident sites",
		"pothole":          "Schedule road maintenance crews; pothole reports correlate with recent rainfall",
		"power_outage":     "Coordinate with BESCOM on evening-peak load shedding",
		"water_supply":     "Escalate to BWSSB for infrastructure inspection",
		"construction":     "Verify permits and enforce dust control at active sites",
	}

	rec, ok := recommendations[dominant]
	if !ok {
		rec = fmt.Sprintf("Continue monitoring %s patterns", dominant)
	}

	return &Insight{
		Summary: fmt.Sprintf("%d incidents in window, dominated by %s (%d); %d high priority",
			len(incidents), dominant, byType[dominant], high),
		RiskAssessment:  risk,
		Recommendations: []string{rec},
		Source:          "fallback",
	}
}
