package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
	"github.com/xela07ax/citypulse-stream/internal/infra"
)

type captureSink struct {
	batches [][]domain.Incident
	err     error
}

func (c *captureSink) InsertIncidents(_ context.Context, incidents []domain.Incident) error {
	if c.err != nil {
		return c.err
	}
	batch := make([]domain.Incident, len(incidents))
	copy(batch, incidents)
	c.batches = append(c.batches, batch)
	return nil
}

func testSimulatorConfig() infra.SimulatorConfig {
	return infra.SimulatorConfig{
		BatchSize:   3,
		Interval:    time.Second,
		Policy:      "round_robin",
		OnExhausted: "stop",
	}
}

func dataset(n int) []domain.Incident {
	out := make([]domain.Incident, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Incident{
			ID:        "rec",
			EventType: "pothole",
			Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return out
}

func TestSimulator_ConsumesDatasetInBatches(t *testing.T) {
	sink := &captureSink{}
	sim := NewSimulator(sink, dataset(7), zap.NewNop(), testSimulatorConfig())

	// 3 + 3 + 1, потом stop
	for i := 0; i < 3; i++ {
		if done := sim.tick(context.Background()); done {
			t.Fatalf("tick %d: premature stop", i)
		}
	}
	if done := sim.tick(context.Background()); !done {
		t.Fatal("expected stop after dataset exhausted")
	}

	if len(sink.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(sink.batches))
	}
	sizes := []int{len(sink.batches[0]), len(sink.batches[1]), len(sink.batches[2])}
	if sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [3 3 1]", sizes)
	}
}

func TestSimulator_FirstPassKeepsDatasetTimestamps(t *testing.T) {
	sink := &captureSink{}
	sim := NewSimulator(sink, dataset(2), zap.NewNop(), testSimulatorConfig())

	sim.tick(context.Background())

	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, inc := range sink.batches[0] {
		if !inc.Timestamp.Equal(want) {
			t.Errorf("first pass timestamp = %v, want dataset value %v", inc.Timestamp, want)
		}
	}
}

func TestSimulator_LoopPassRewritesTimestamps(t *testing.T) {
	cfg := testSimulatorConfig()
	cfg.BatchSize = 2
	cfg.OnExhausted = "loop"
	sink := &captureSink{}
	sim := NewSimulator(sink, dataset(2), zap.NewNop(), cfg)

	sim.tick(context.Background()) // первый проход

	before := time.Now().UTC()
	sim.tick(context.Background()) // повторный проход после исчерпания

	for _, inc := range sink.batches[1] {
		if inc.Timestamp.Before(before) {
			t.Errorf("loop pass timestamp %v not rewritten to insert time", inc.Timestamp)
		}
	}
}

func TestSimulator_AssignsMissingIDs(t *testing.T) {
	ds := dataset(2)
	ds[0].ID = ""
	sink := &captureSink{}
	sim := NewSimulator(sink, ds, zap.NewNop(), testSimulatorConfig())

	sim.tick(context.Background())

	if sink.batches[0][0].ID == "" {
		t.Error("expected generated ID for record without one")
	}
	if sink.batches[0][1].ID != "rec" {
		t.Errorf("existing ID overwritten: %q", sink.batches[0][1].ID)
	}
}

func TestSimulator_RetriesSameBatchOnInsertError(t *testing.T) {
	sink := &captureSink{err: errors.New("down")}
	sim := NewSimulator(sink, dataset(5), zap.NewNop(), testSimulatorConfig())

	sim.tick(context.Background())
	if sim.idx != 0 {
		t.Fatalf("position advanced to %d on failed insert", sim.idx)
	}

	sink.err = nil
	sim.tick(context.Background())
	if sim.idx != 3 {
		t.Fatalf("position = %d after recovery, want 3", sim.idx)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3 after recovery, got %+v", sink.batches)
	}
}

func TestSimulator_LoopRestartsDataset(t *testing.T) {
	cfg := testSimulatorConfig()
	cfg.BatchSize = 2
	cfg.OnExhausted = "loop"
	sink := &captureSink{}
	sim := NewSimulator(sink, dataset(2), zap.NewNop(), cfg)

	if done := sim.tick(context.Background()); done {
		t.Fatal("unexpected stop on first pass")
	}
	// Датасет исчерпан: loop начинает заново вместо остановки
	if done := sim.tick(context.Background()); done {
		t.Fatal("loop policy must not stop")
	}

	if len(sink.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(sink.batches))
	}
	if sim.passes != 1 {
		t.Errorf("passes = %d, want 1", sim.passes)
	}
}

func TestSimulator_JitterBounds(t *testing.T) {
	cfg := testSimulatorConfig()
	cfg.Jitter = true
	cfg.BatchSize = 7
	cfg.Interval = 20 * time.Second
	sim := NewSimulator(&captureSink{}, dataset(1), zap.NewNop(), cfg)

	for i := 0; i < 200; i++ {
		size := sim.nextBatchSize()
		if size < 5 || size > 10 {
			t.Fatalf("batch size %d out of [base-2, base+3]", size)
		}
		interval := sim.nextInterval()
		if interval < 15*time.Second || interval > 25*time.Second {
			t.Fatalf("interval %v out of ±5s band", interval)
		}
	}
}

func TestSimulator_JitterNeverBelowMinimums(t *testing.T) {
	cfg := testSimulatorConfig()
	cfg.Jitter = true
	cfg.BatchSize = 1
	cfg.Interval = time.Second
	sim := NewSimulator(&captureSink{}, dataset(1), zap.NewNop(), cfg)

	for i := 0; i < 200; i++ {
		if size := sim.nextBatchSize(); size < 1 {
			t.Fatalf("batch size %d below 1", size)
		}
		if interval := sim.nextInterval(); interval < time.Second {
			t.Fatalf("interval %v below 1s", interval)
		}
	}
}

func TestSimulator_ShufflePreservesRecords(t *testing.T) {
	ds := make([]domain.Incident, 0, 10)
	for i := 0; i < 10; i++ {
		ds = append(ds, domain.Incident{ID: string(rune('a' + i))})
	}
	cfg := testSimulatorConfig()
	cfg.Policy = "shuffle"
	cfg.BatchSize = 10
	sink := &captureSink{}
	sim := NewSimulator(sink, ds, zap.NewNop(), cfg)

	sim.tick(context.Background())

	seen := make(map[string]bool)
	for _, inc := range sink.batches[0] {
		seen[inc.ID] = true
	}
	if len(seen) != 10 {
		t.Errorf("shuffle lost records: %d unique of 10", len(seen))
	}
}
