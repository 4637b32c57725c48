package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// Store — общая точка доступа к хранилищу инцидентов и журналу агентов.
// Само хранилище отвечает за read-after-write: запрос после коммита видит коммит.
type Store struct {
	db *sql.DB
}

func NewStore(connString string, maxConns int) (*Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open failed: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 15
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStoreWithDB оборачивает готовое соединение (тесты, sqlmock).
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping проверяет доступность базы при старте.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema создает таблицы при первом запуске. sequence назначает само
// хранилище (BIGSERIAL) — это единственное поле, пригодное для курсора.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			sequence BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			sub_category TEXT,
			description TEXT,
			location_name TEXT,
			area_category TEXT,
			ward_number INTEGER,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			severity_level TEXT,
			priority_score DOUBLE PRECISION NOT NULL,
			event_status TEXT NOT NULL,
			assigned_department TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_processed_at ON incidents(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_priority ON incidents(priority_score)`,
		`CREATE TABLE IF NOT EXISTS agent_activities (
			sequence BIGSERIAL PRIMARY KEY,
			agent_name TEXT NOT NULL,
			incident_id TEXT,
			action TEXT,
			details JSONB,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_activities_timestamp ON agent_activities(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_activities_agent ON agent_activities(agent_name)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema init failed: %w", err)
		}
	}
	return nil
}
