package encoder

import (
	"fmt"
	"time"

	"github.com/sentivox/go-emotion/checkpoints"
)

// LoadPretrained restores encoder weights from a checkpoint file
// written by SaveWeights (or by a training run over the same
// architecture). An empty path leaves the random initialization in
// place.
func (e *SpeechEncoder) LoadPretrained(path string) error {
	if path == "" {
		return nil
	}
	cp, err := checkpoints.Load(path)
	if err != nil {
		return fmt.Errorf("loading pretrained encoder: %w", err)
	}
	if err := checkpoints.Apply(e.Parameters(), cp.Params); err != nil {
		return fmt.Errorf("pretrained weights do not fit this encoder: %w", err)
	}
	return nil
}

// SaveWeights writes the current encoder weights in checkpoint format.
func (e *SpeechEncoder) SaveWeights(path string) error {
	params, err := checkpoints.Capture(e.Parameters())
	if err != nil {
		return err
	}
	cp := &checkpoints.Checkpoint{
		Params: params,
		Metadata: checkpoints.Metadata{
			CreatedAt: time.Now().UTC(),
			Framework: "go-emotion",
		},
	}
	return checkpoints.Save(cp, path)
}
