package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sentivox/go-emotion/tensor"
)

// ErrCheckpoint marks failures loading or applying a checkpoint: a
// missing file, malformed JSON, or parameters that do not match the
// model being restored.
var ErrCheckpoint = errors.New("checkpoint error")

// Checkpoint holds a full snapshot of model parameters plus the
// training state that produced it.
type Checkpoint struct {
	Params      []ParamTensor `json:"params"`
	Epoch       int           `json:"epoch"`
	ValLoss     float64       `json:"val_loss"`
	ValAccuracy float64       `json:"val_accuracy"`
	Metadata    Metadata      `json:"metadata"`
}

// ParamTensor is one serialized parameter. Names follow the model's
// deterministic parameter order, so restoring requires an identical
// architecture.
type ParamTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Metadata describes where a checkpoint came from.
type Metadata struct {
	CreatedAt      time.Time `json:"created_at"`
	Framework      string    `json:"framework"`
	SimulationName string    `json:"simulation_name,omitempty"`
}

// Capture snapshots the current values of a model's parameters. The
// copies are deep, so later training steps do not disturb the snapshot.
func Capture(params []*tensor.Tensor) ([]ParamTensor, error) {
	out := make([]ParamTensor, 0, len(params))
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		pt := ParamTensor{
			Name:  fmt.Sprintf("param_%03d", i),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), data...),
		}
		out = append(out, pt)
	}
	return out, nil
}

// Apply writes a checkpoint's parameter values into a model's parameter
// tensors, matching by position with a shape check on every tensor.
func Apply(params []*tensor.Tensor, saved []ParamTensor) error {
	if len(params) != len(saved) {
		return fmt.Errorf("%w: model has %d parameters, checkpoint has %d", ErrCheckpoint, len(params), len(saved))
	}
	for i, pt := range saved {
		p := params[i]
		if !shapesMatch(p.Shape, pt.Shape) {
			return fmt.Errorf("%w: %s shape %v does not match model shape %v", ErrCheckpoint, pt.Name, pt.Shape, p.Shape)
		}
		dst, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCheckpoint, pt.Name, err)
		}
		if len(dst) != len(pt.Data) {
			return fmt.Errorf("%w: %s has %d values, model expects %d", ErrCheckpoint, pt.Name, len(pt.Data), len(dst))
		}
		copy(dst, pt.Data)
	}
	return nil
}

// Save writes the checkpoint as JSON. The file is written wholesale to
// a temp file in the target directory and renamed into place.
func Save(cp *Checkpoint, path string) error {
	blob, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming checkpoint into place: %w", err)
	}
	return nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Checkpoint, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrCheckpoint, path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, fmt.Errorf("%w: decoding %q: %v", ErrCheckpoint, path, err)
	}
	return &cp, nil
}

// BestPath names the best-validation-loss artifact for a simulation.
func BestPath(modelRoot, simulationName string) string {
	return filepath.Join(modelRoot, fmt.Sprintf("%s_best_model.json", simulationName))
}

// LastPath names the final-epoch artifact for a simulation.
func LastPath(modelRoot, simulationName string, numEpochs int) string {
	return filepath.Join(modelRoot, fmt.Sprintf("%s_last_model_%depochs.json", simulationName, numEpochs))
}

func shapesMatch(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
