package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStore_FetchActivitiesAfter(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"sequence", "agent_name", "incident_id", "action", "details", "timestamp"}).
		AddRow(int64(3), "notification_agent", "inc-1", "notify", []byte(`{"notifications_sent": 2}`), now).
		AddRow(int64(4), "trend_analysis_agent", nil, nil, nil, now)

	mock.ExpectQuery("SELECT (.+) FROM agent_activities WHERE sequence >").
		WithArgs(int64(2), 100).
		WillReturnRows(rows)

	got, err := store.FetchActivitiesAfter(context.Background(), 2, 100)
	if err != nil {
		t.Fatalf("FetchActivitiesAfter() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].AgentName != "notification_agent" || string(got[0].Details) != `{"notifications_sent": 2}` {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	// NULL details остаются пустым срезом — ParseDetails даст UnknownDetails
	if got[1].IncidentID != "" || len(got[1].Details) != 0 {
		t.Errorf("NULL mapping failed: %+v", got[1])
	}
}

func TestStore_FetchActivitiesAfter_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM agent_activities WHERE sequence >").
		WillReturnError(sql.ErrConnDone)

	if _, err := store.FetchActivitiesAfter(context.Background(), 0, 100); err == nil {
		t.Fatal("expected error from failed query")
	}
}

func TestStore_MaxActivitySequence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(sequence\), 0\) FROM agent_activities`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(9)))

	got, err := store.MaxActivitySequence(context.Background())
	if err != nil {
		t.Fatalf("MaxActivitySequence() error = %v", err)
	}
	if got != 9 {
		t.Errorf("max = %d, want 9", got)
	}
}

func TestStore_ActivityCountsSince(t *testing.T) {
	store, mock := newMockStore(t)
	windowStart := time.Now().Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"agent_name", "count"}).
		AddRow("notification_agent", int64(30)).
		AddRow("resource_allocation_agent", int64(5))

	mock.ExpectQuery(`SELECT agent_name, COUNT\(\*\) FROM agent_activities WHERE timestamp >`).
		WithArgs(windowStart).
		WillReturnRows(rows)

	got, err := store.ActivityCountsSince(context.Background(), windowStart)
	if err != nil {
		t.Fatalf("ActivityCountsSince() error = %v", err)
	}
	if got["notification_agent"] != 30 || got["resource_allocation_agent"] != 5 {
		t.Errorf("counts = %v", got)
	}
	if len(got) != 2 {
		t.Errorf("unexpected extra agents: %v", got)
	}
}
