package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

// FetchActivitiesAfter — курсорная выборка из журнала агентов, та же
// дисциплина, что и у инцидентов: sequence > cursor, по возрастанию, с лимитом.
func (s *Store) FetchActivitiesAfter(ctx context.Context, cursor int64, limit int) ([]domain.AgentActivity, error) {
	query := `SELECT sequence, agent_name, incident_id, action, details, timestamp
	          FROM agent_activities WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agent activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AgentActivity, 0)
	for rows.Next() {
		var act domain.AgentActivity
		var incidentID, action sql.NullString
		var details []byte

		err := rows.Scan(&act.Sequence, &act.AgentName, &incidentID, &action, &details, &act.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent activity: %w", err)
		}

		act.IncidentID = incidentID.String
		act.Action = action.String
		act.Details = details
		results = append(results, act)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// MaxActivitySequence — текущий максимум sequence журнала агентов.
func (s *Store) MaxActivitySequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM agent_activities`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to fetch max activity sequence: %w", err)
	}
	return maxSeq, nil
}

// ActivityCountsSince — количество записей по каждому агенту за окно.
// Окно по timestamp записи журнала: его проставляет база при вставке.
func (s *Store) ActivityCountsSince(ctx context.Context, windowStart time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, COUNT(*) FROM agent_activities WHERE timestamp > $1 GROUP BY agent_name`,
		windowStart)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count agent activities: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan activity count: %w", err)
		}
		counts[name] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return counts, nil
}
