package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

const incidentColumns = `sequence, id, event_type, sub_category, description, location_name,
	area_category, ward_number, latitude, longitude, severity_level, priority_score,
	event_status, assigned_department, timestamp, processed_at`

// FetchIncidentsAfter возвращает строки с sequence > cursor по возрастанию.
// Лимит обязателен: после долгого простоя курсор может отставать на тысячи
// строк, и вычитывать их нужно страницами, а не одним взрывом.
func (s *Store) FetchIncidentsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Incident, error) {
	query := fmt.Sprintf(`SELECT %s FROM incidents WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`, incidentColumns)

	rows, err := s.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query incidents: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, inc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// MaxIncidentSequence — текущий максимум sequence. Нужен для инициализации
// курсора без backfill и для детекции отката счетчика.
func (s *Store) MaxIncidentSequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM incidents`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to fetch max sequence: %w", err)
	}
	return maxSeq, nil
}

// InsertIncidents — пакетная вставка от симулятора. sequence и processed_at
// назначает база; присланные значения этих полей игнорируются.
func (s *Store) InsertIncidents(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	// Количество вставляемых колонок (без sequence и processed_at)
	numFields := 14
	placeholderStr := ""
	vals := make([]interface{}, 0, len(incidents)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, inc := range incidents {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13, p+14)

		vals = append(vals,
			inc.ID, inc.EventType, inc.SubCategory, inc.Description,
			inc.LocationName, inc.AreaCategory, inc.WardNumber,
			inc.Latitude, inc.Longitude, inc.SeverityLevel,
			inc.PriorityScore, inc.EventStatus, inc.AssignedDepartment, inc.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		`INSERT INTO incidents (id, event_type, sub_category, description, location_name,
			area_category, ward_number, latitude, longitude, severity_level,
			priority_score, event_status, assigned_department, timestamp) VALUES %s`,
		strings.TrimSuffix(placeholderStr, ","),
	)

	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to insert incidents: %w", err)
	}
	return nil
}

// CountIncidents — полное количество строк в хранилище.
func (s *Store) CountIncidents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count incidents: %w", err)
	}
	return count, nil
}

// CountHighPriority — строки с priority_score не ниже порога.
func (s *Store) CountHighPriority(ctx context.Context, threshold float64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE priority_score >= $1`, threshold).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count high priority incidents: %w", err)
	}
	return count, nil
}

// CountIncidentsSince считает строки скользящего окна строго по processed_at.
// timestamp источника сюда брать нельзя: он под контролем отправителя и
// искажает rate при бэкдейте или рассинхроне часов.
func (s *Store) CountIncidentsSince(ctx context.Context, windowStart time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE processed_at > $1`, windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count recent incidents: %w", err)
	}
	return count, nil
}

// FetchIncidentsSince — свежие инциденты окна для суммаризатора.
func (s *Store) FetchIncidentsSince(ctx context.Context, windowStart time.Time, limit int) ([]domain.Incident, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM incidents WHERE processed_at > $1 ORDER BY processed_at DESC LIMIT $2`,
		incidentColumns)

	rows, err := s.db.QueryContext(ctx, query, windowStart, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query recent incidents: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, inc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func scanIncident(rows *sql.Rows) (domain.Incident, error) {
	var inc domain.Incident
	var subCategory, description, areaCategory, severity, department sql.NullString
	var ward sql.NullInt64
	var lat, lon sql.NullFloat64

	err := rows.Scan(
		&inc.Sequence, &inc.ID, &inc.EventType, &subCategory, &description,
		&inc.LocationName, &areaCategory, &ward, &lat, &lon,
		&severity, &inc.PriorityScore, &inc.EventStatus, &department,
		&inc.Timestamp, &inc.ProcessedAt,
	)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("postgres: failed to scan incident: %w", err)
	}

	// Маппим NULL значения
	inc.SubCategory = subCategory.String
	inc.Description = description.String
	inc.AreaCategory = areaCategory.String
	inc.SeverityLevel = severity.String
	inc.AssignedDepartment = department.String
	inc.WardNumber = int(ward.Int64)
	inc.Latitude = lat.Float64
	inc.Longitude = lon.Float64

	return inc, nil
}
