package simulator

import (
	"encoding/json"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/citypulse-stream/internal/domain"
)

// LoadDataset читает датасет кандидатов из JSON-файла. Если файла нет,
// генерирует и сохраняет образцовый датасет, чтобы пайплайн можно было
// прогнать без внешнего канала репортов.
func LoadDataset(path string, logger *zap.Logger) ([]domain.Incident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("simulator: failed to read dataset: %w", err)
		}
		logger.Warn("dataset file not found, generating sample dataset", zap.String("path", path))
		return generateSampleDataset(path, sampleDatasetSize, logger)
	}

	var incidents []domain.Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, fmt.Errorf("simulator: failed to parse dataset: %w", err)
	}

	logger.Info("dataset loaded", zap.String("path", path), zap.Int("records", len(incidents)))
	return incidents, nil
}

const sampleDatasetSize = 1000

type sampleLocation struct {
	name string
	lat  float64
	lon  float64
	ward int
}

var (
	sampleEventTypes = []string{"traffic_accident", "pothole", "power_outage", "water_supply", "construction"}

	sampleLocations = []sampleLocation{
		{"Koramangala", 12.9352, 77.6245, 150},
		{"Indiranagar", 12.9784, 77.6408, 86},
		{"Whitefield", 12.9698, 77.7500, 84},
		{"Jayanagar", 12.9279, 77.5937, 167},
		{"Marathahalli", 12.9591, 77.6974, 84},
	}

	sampleDepartments = []string{"BBMP", "Traffic Police", "BESCOM", "BWSSB", "Fire Department"}

	sampleSeverities = []string{"low", "medium", "high"}
)

func generateSampleDataset(path string, n int, logger *zap.Logger) ([]domain.Incident, error) {
	incidents := make([]domain.Incident, 0, n)

	for i := 0; i < n; i++ {
		eventType := sampleEventTypes[rand.IntN(len(sampleEventTypes))]
		loc := sampleLocations[rand.IntN(len(sampleLocations))]

		incidents = append(incidents, domain.Incident{
			ID:                 fmt.Sprintf("LOCAL_SIM_%06d", i+1),
			EventType:          eventType,
			SubCategory:        eventType + "_sub",
			Description:        fmt.Sprintf("Simulated %s incident at %s", eventType, loc.name),
			LocationName:       loc.name,
			AreaCategory:       "urban",
			WardNumber:         loc.ward,
			Latitude:           loc.lat + (rand.Float64()-0.5)*0.02,
			Longitude:          loc.lon + (rand.Float64()-0.5)*0.02,
			SeverityLevel:      sampleSeverities[rand.IntN(len(sampleSeverities))],
			PriorityScore:      1 + rand.Float64()*9,
			EventStatus:        "reported",
			AssignedDepartment: sampleDepartments[rand.IntN(len(sampleDepartments))],
			Timestamp:          time.Now().UTC().Add(-time.Duration(rand.IntN(30*24)) * time.Hour),
		})
	}

	data, err := json.MarshalIndent(incidents, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("simulator: failed to marshal sample dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("simulator: failed to save sample dataset: %w", err)
	}

	logger.Info("sample dataset generated", zap.String("path", path), zap.Int("records", n))
	return incidents, nil
}
