package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sentivox/go-emotion/tensor"
)

// MetricsLog appends scalar records for one simulation to
// {LogsRoot}/{sim}_logs/scalars.jsonl, one JSON object per line.
type MetricsLog struct {
	path string
	mu   sync.Mutex
}

// EpochRecord is one training epoch's scalars.
type EpochRecord struct {
	Epoch       int     `json:"epoch"`
	TrainLoss   float64 `json:"train_loss"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// TestRecord is the final test evaluation scalar.
type TestRecord struct {
	Epoch        int     `json:"epoch"`
	TestAccuracy float64 `json:"test_accuracy"`
}

// NewMetricsLog creates the per-simulation log directory.
func NewMetricsLog(logsRoot, simulationName string) (*MetricsLog, error) {
	dir := filepath.Join(logsRoot, simulationName+"_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating metrics directory: %w", err)
	}
	return &MetricsLog{path: filepath.Join(dir, "scalars.jsonl")}, nil
}

// Path returns the scalars file location.
func (m *MetricsLog) Path() string {
	return m.path
}

// LogEpoch appends one epoch record.
func (m *MetricsLog) LogEpoch(rec EpochRecord) error {
	return m.append(rec)
}

// LogTest appends the test accuracy, indexed by the run's epoch count.
func (m *MetricsLog) LogTest(rec TestRecord) error {
	return m.append(rec)
}

func (m *MetricsLog) append(rec interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening metrics log: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("writing metrics record: %w", err)
	}
	return nil
}

// countCorrect compares argmax predictions against labels. Labels may
// be [B] or [B, 1].
func countCorrect(logits, labels *tensor.Tensor) (int, error) {
	predicted, err := tensor.ArgMaxRows(logits)
	if err != nil {
		return 0, err
	}
	pd, err := predicted.GetInt32Data()
	if err != nil {
		return 0, err
	}
	ld, err := labels.GetInt32Data()
	if err != nil {
		return 0, err
	}
	if len(pd) != len(ld) {
		return 0, fmt.Errorf("prediction count %d does not match label count %d", len(pd), len(ld))
	}
	correct := 0
	for i := range pd {
		if pd[i] == ld[i] {
			correct++
		}
	}
	return correct, nil
}
