package checkpoints

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentivox/go-emotion/tensor"
)

func params(t *testing.T, shapes ...[]int) []*tensor.Tensor {
	t.Helper()
	out := make([]*tensor.Tensor, 0, len(shapes))
	for i, shape := range shapes {
		p, err := tensor.Full(shape, float32(i+1), tensor.CPU)
		if err != nil {
			t.Fatalf("building parameter: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	model := params(t, []int{2, 3}, []int{3})
	captured, err := Capture(model)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	cp := &Checkpoint{
		Params:      captured,
		Epoch:       4,
		ValLoss:     0.321,
		ValAccuracy: 0.9,
		Metadata: Metadata{
			CreatedAt:      time.Now().UTC(),
			Framework:      "go-emotion",
			SimulationName: "test_run",
		},
	}

	path := filepath.Join(t.TempDir(), "test_run_best_model.json")
	if err := Save(cp, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Epoch != 4 || loaded.ValLoss != 0.321 {
		t.Errorf("training state lost: epoch %d, val loss %v", loaded.Epoch, loaded.ValLoss)
	}

	restored := params(t, []int{2, 3}, []int{3})
	for _, p := range restored {
		data, _ := p.GetFloat32Data()
		for i := range data {
			data[i] = -1
		}
	}
	if err := Apply(restored, loaded.Params); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	for i, p := range restored {
		if !p.Equal(model[i]) {
			t.Errorf("parameter %d differs after round trip", i)
		}
	}
}

func TestCaptureIsDeepCopy(t *testing.T) {
	model := params(t, []int{2})
	captured, err := Capture(model)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	data, _ := model[0].GetFloat32Data()
	data[0] = 99

	if captured[0].Data[0] == 99 {
		t.Error("Capture shares storage with the live parameter")
	}
}

func TestApplyMismatch(t *testing.T) {
	captured, err := Capture(params(t, []int{2, 3}))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if err := Apply(params(t, []int{2, 3}, []int{3}), captured); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("count mismatch: err = %v, want ErrCheckpoint", err)
	}
	if err := Apply(params(t, []int{3, 2}), captured); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("shape mismatch: err = %v, want ErrCheckpoint", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); !errors.Is(err, ErrCheckpoint) {
		t.Errorf("err = %v, want ErrCheckpoint", err)
	}
}

func TestArtifactNaming(t *testing.T) {
	if got := BestPath("/models", "run1"); got != "/models/run1_best_model.json" {
		t.Errorf("BestPath = %q", got)
	}
	if got := LastPath("/models", "run1", 20); got != "/models/run1_last_model_20epochs.json" {
		t.Errorf("LastPath = %q", got)
	}
}
