package model

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/sentivox/go-emotion/checkpoints"
	"github.com/sentivox/go-emotion/dataset"
	"github.com/sentivox/go-emotion/encoder"
	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

const testAudioSize = 200

func testBuildConfig() BuildConfig {
	return BuildConfig{
		AudioSize: testAudioSize,
		Encoder: encoder.Config{
			ConvLayers: []encoder.ConvLayer{
				{Out: 8, Kernel: 10, Stride: 5},
				{Out: 8, Kernel: 3, Stride: 2},
			},
			Hidden: 4,
			Blocks: 2,
		},
	}
}

func waveBatch(t *testing.T, batch int) *tensor.Tensor {
	t.Helper()
	data := make([]float32, batch*testAudioSize)
	for i := range data {
		data[i] = float32(i%11)*0.02 - 0.1
	}
	x, err := tensor.NewTensor([]int{batch, 1, testAudioSize}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatalf("building batch: %v", err)
	}
	return x
}

func TestBuildUnknownNames(t *testing.T) {
	if _, err := Build("transformer", "", 7, testBuildConfig()); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown model: err = %v, want ErrUnknownModel", err)
	}
	if _, err := Build("wav2vec", "everything", 7, testBuildConfig()); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown arch: err = %v, want ErrUnknownModel", err)
	}
	if _, err := Build("effnet", "efficientnet-z9", 7, testBuildConfig()); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown effnet arch: err = %v, want ErrUnknownModel", err)
	}
	if _, err := Build("cnn", "", 1, testBuildConfig()); err == nil {
		t.Error("expected error for a single class")
	}
}

func TestWav2VecVariantForwardShapes(t *testing.T) {
	nn.SetRandomSeed(2)
	for _, arch := range KnownWav2VecArchs() {
		m, err := Build("wav2vec", arch, 7, testBuildConfig())
		if err != nil {
			t.Fatalf("Build(wav2vec, %s) failed: %v", arch, err)
		}
		out, err := m.Forward(waveBatch(t, 2))
		if err != nil {
			t.Fatalf("%s: Forward failed: %v", arch, err)
		}
		if out.Shape[0] != 2 || out.Shape[1] != 7 {
			t.Errorf("%s: logits shape = %v, want [2 7]", arch, out.Shape)
		}
	}
}

func TestWav2VecFreezePartitions(t *testing.T) {
	nn.SetRandomSeed(2)
	tests := []struct {
		arch       string
		someFrozen bool
		allFrozen  bool // every encoder parameter frozen, head trainable
	}{
		{arch: "all", someFrozen: true, allFrozen: true},
		{arch: "partial", someFrozen: true},
		{arch: "cnn"},
		{arch: "cnn_avg"},
		{arch: "cls_token"},
		{arch: "cls_token_not_pretrained"},
		{arch: "paper", someFrozen: true},
	}
	for _, tt := range tests {
		m, err := Build("wav2vec", tt.arch, 7, testBuildConfig())
		if err != nil {
			t.Fatalf("Build(wav2vec, %s) failed: %v", tt.arch, err)
		}
		trainable, frozen := m.TrainableParameters(), m.FrozenParameters()
		if len(trainable) == 0 {
			t.Errorf("%s: no trainable parameters", tt.arch)
		}
		if tt.someFrozen && len(frozen) == 0 {
			t.Errorf("%s: expected frozen parameters", tt.arch)
		}
		if !tt.someFrozen && len(frozen) != 0 {
			t.Errorf("%s: unexpected frozen parameters (%d)", tt.arch, len(frozen))
		}
		if tt.allFrozen && len(trainable) != 2 {
			t.Errorf("%s: trainable = %d, want only the head weight and bias", tt.arch, len(trainable))
		}
		if len(trainable)+len(frozen) != len(m.Parameters()) {
			t.Errorf("%s: partition does not cover all parameters", tt.arch)
		}
	}
}

func TestPaperVariantStagedGroups(t *testing.T) {
	nn.SetRandomSeed(2)
	m, err := Build("wav2vec", "paper", 7, testBuildConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	staged, ok := m.(StagedClassifier)
	if !ok {
		t.Fatal("paper variant does not expose staged groups")
	}
	head := staged.HeadParameters()
	fine := staged.FineTuneParameters()
	if len(head) == 0 || len(fine) <= len(head) {
		t.Fatalf("group sizes: head %d, fine-tune %d", len(head), len(fine))
	}
	inFine := make(map[*tensor.Tensor]bool, len(fine))
	for _, p := range fine {
		inFine[p] = true
	}
	for i, p := range head {
		if !inFine[p] {
			t.Errorf("head parameter %d missing from the fine-tune group", i)
		}
	}
}

func TestSpectrogramCNNRejectsShortAudio(t *testing.T) {
	// testAudioSize is below one FFT frame, so no spectrogram exists.
	if _, err := Build("cnn", "", 7, testBuildConfig()); err == nil {
		t.Error("expected error for audio too short to transform")
	}
}

func TestSpectrogramCNNForward(t *testing.T) {
	nn.SetRandomSeed(2)
	const audioSize = 4096 + 3*512
	cfg := testBuildConfig()
	cfg.AudioSize = audioSize

	m, err := Build("cnn", "", 7, cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	frames := dataset.SpectrogramFrames(audioSize)
	data := make([]float32, 2*dataset.SpectrogramBins*frames)
	for i := range data {
		data[i] = float32(i%5) * 0.1
	}
	x, err := tensor.NewTensor([]int{2, 1, dataset.SpectrogramBins, frames}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[0] != 2 || out.Shape[1] != 7 {
		t.Errorf("logits shape = %v, want [2 7]", out.Shape)
	}
}

func TestImageBackboneForward(t *testing.T) {
	nn.SetRandomSeed(2)
	m, err := Build("effnet", "efficientnet-b0", 8, testBuildConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	data := make([]float32, 1*16*16)
	x, err := tensor.NewTensor([]int{1, 1, 16, 16}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[0] != 1 || out.Shape[1] != 8 {
		t.Errorf("logits shape = %v, want [1 8]", out.Shape)
	}
}

func TestFrozenEncoderGetsNoGradients(t *testing.T) {
	nn.SetRandomSeed(2)
	m, err := Build("wav2vec", "all", 7, testBuildConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	out, err := m.Forward(waveBatch(t, 2))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	labels, _ := tensor.NewTensor([]int{2}, tensor.Int32, tensor.CPU, []int32{0, 3})
	loss, err := nn.NewCrossEntropyLoss().Forward(out, labels)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	for i, p := range m.FrozenParameters() {
		if p.Grad() != nil {
			t.Errorf("frozen parameter %d accumulated a gradient", i)
		}
	}
	for i, p := range m.TrainableParameters() {
		if p.Grad() == nil {
			t.Errorf("trainable parameter %d received no gradient", i)
		}
	}
}

func TestCheckpointRoundTripReproducesPredictions(t *testing.T) {
	nn.SetRandomSeed(31)
	a, err := Build("wav2vec", "cls_token", 5, testBuildConfig())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	saved, err := checkpoints.Capture(a.Parameters())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	x := waveBatch(t, 3)
	a.EvalMode()
	want, err := a.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	nn.SetRandomSeed(99)
	b, err := Build("wav2vec", "cls_token", 5, testBuildConfig())
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if err := checkpoints.Apply(b.Parameters(), saved); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	b.EvalMode()
	got, err := b.Forward(x)
	if err != nil {
		t.Fatalf("second Forward failed: %v", err)
	}

	wantData, _ := want.GetFloat32Data()
	gotData, _ := got.GetFloat32Data()
	for i := range wantData {
		if wantData[i] != gotData[i] {
			t.Fatalf("prediction %d differs after round trip: %v vs %v", i, wantData[i], gotData[i])
		}
	}
}

func TestSummaryTokenVariantsTrackInput(t *testing.T) {
	nn.SetRandomSeed(2)
	quiet, err := tensor.Zeros([]int{2, 1, testAudioSize}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	loud, err := tensor.Full([]int{2, 1, testAudioSize}, 5, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	for _, arch := range []string{"cls_token", "cls_token_not_pretrained", "paper"} {
		m, err := Build("wav2vec", arch, 7, testBuildConfig())
		if err != nil {
			t.Fatalf("Build(wav2vec, %s) failed: %v", arch, err)
		}
		m.EvalMode()
		a, err := m.Forward(quiet)
		if err != nil {
			t.Fatalf("%s: Forward failed: %v", arch, err)
		}
		b, err := m.Forward(loud)
		if err != nil {
			t.Fatalf("%s: Forward failed: %v", arch, err)
		}
		aData, _ := a.GetFloat32Data()
		bData, _ := b.GetFloat32Data()
		var diff float64
		for i := range aData {
			diff += math.Abs(float64(aData[i] - bData[i]))
		}
		if diff == 0 {
			t.Errorf("%s: logits ignore the waveform entirely", arch)
		}
	}
}

func TestImageBackbonePretrainedWeights(t *testing.T) {
	nn.SetRandomSeed(13)
	src, err := NewImageBackbone("efficientnet-b0", 8, "")
	if err != nil {
		t.Fatalf("NewImageBackbone failed: %v", err)
	}
	params, err := checkpoints.Capture(src.Parameters())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "backbone.json")
	if err := checkpoints.Save(&checkpoints.Checkpoint{Params: params}, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data := make([]float32, 16*16)
	for i := range data {
		data[i] = float32(i%7) * 0.1
	}
	x, err := tensor.NewTensor([]int{1, 1, 16, 16}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatal(err)
	}
	src.EvalMode()
	want, err := src.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	nn.SetRandomSeed(77)
	cfg := testBuildConfig()
	cfg.PretrainedBackbonePath = path
	m, err := Build("effnet", "efficientnet-b0", 8, cfg)
	if err != nil {
		t.Fatalf("Build with pretrained weights failed: %v", err)
	}
	m.EvalMode()
	got, err := m.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	wantData, _ := want.GetFloat32Data()
	gotData, _ := got.GetFloat32Data()
	for i := range wantData {
		if wantData[i] != gotData[i] {
			t.Fatalf("logit %d differs after restoring weights: %v vs %v", i, wantData[i], gotData[i])
		}
	}

	// A wider architecture cannot absorb the b0 snapshot.
	if _, err := NewImageBackbone("efficientnet-b2", 8, path); !errors.Is(err, checkpoints.ErrCheckpoint) {
		t.Errorf("mismatched architecture: err = %v, want ErrCheckpoint", err)
	}
	// Neither can a different class count.
	if _, err := NewImageBackbone("efficientnet-b0", 5, path); !errors.Is(err, checkpoints.ErrCheckpoint) {
		t.Errorf("mismatched class count: err = %v, want ErrCheckpoint", err)
	}
}
