package encoder

import (
	"path/filepath"
	"testing"

	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

// testConfig keeps shapes tiny so forward passes stay fast.
func testConfig(summaryToken bool) Config {
	return Config{
		ConvLayers: []ConvLayer{
			{Out: 8, Kernel: 10, Stride: 5},
			{Out: 8, Kernel: 3, Stride: 2},
		},
		Hidden:       4,
		Blocks:       2,
		SummaryToken: summaryToken,
	}
}

func waveBatch(t *testing.T, batch, length int) *tensor.Tensor {
	t.Helper()
	data := make([]float32, batch*length)
	for i := range data {
		data[i] = float32(i%13)*0.01 - 0.05
	}
	x, err := tensor.NewTensor([]int{batch, 1, length}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatalf("building waveform batch: %v", err)
	}
	return x
}

func TestFeatureLengthMatchesExtractor(t *testing.T) {
	nn.SetRandomSeed(5)
	e, err := New(testConfig(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const audioSize = 200
	features, err := e.ExtractFeatures(waveBatch(t, 2, audioSize))
	if err != nil {
		t.Fatalf("ExtractFeatures failed: %v", err)
	}
	want := e.FeatureLength(audioSize)
	if features.Shape[0] != 2 || features.Shape[1] != 8 || features.Shape[2] != want {
		t.Errorf("features shape = %v, want [2 8 %d]", features.Shape, want)
	}
}

func TestForwardShapes(t *testing.T) {
	nn.SetRandomSeed(5)
	const audioSize = 200

	e, err := New(testConfig(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := e.Forward(waveBatch(t, 3, audioSize))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	tPrime := e.FeatureLength(audioSize)
	if out.Shape[0] != 3 || out.Shape[1] != tPrime || out.Shape[2] != 4 {
		t.Errorf("shape = %v, want [3 %d 4]", out.Shape, tPrime)
	}

	withToken, err := New(testConfig(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err = withToken.Forward(waveBatch(t, 3, audioSize))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.Shape[1] != tPrime+1 {
		t.Errorf("summary token missing: T = %d, want %d", out.Shape[1], tPrime+1)
	}
}

func TestFreezeGroups(t *testing.T) {
	nn.SetRandomSeed(5)
	e, err := New(testConfig(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	Freeze(e.FeatureExtractorParams())
	for i, p := range e.FeatureExtractorParams() {
		if p.RequiresGrad() {
			t.Errorf("extractor parameter %d still requires grad", i)
		}
	}
	for i, p := range e.BlockParams() {
		if !p.RequiresGrad() {
			t.Errorf("block parameter %d lost its grad requirement", i)
		}
	}

	FreezeExceptLayerNorm(e.BlockParams(), e.BlockLayerNormParams())
	keep := make(map[*tensor.Tensor]bool)
	for _, p := range e.BlockLayerNormParams() {
		keep[p] = true
	}
	for i, p := range e.BlockParams() {
		if keep[p] != p.RequiresGrad() {
			t.Errorf("block parameter %d: requiresGrad = %v, layernorm = %v", i, p.RequiresGrad(), keep[p])
		}
	}
}

func TestSaveLoadPretrained(t *testing.T) {
	nn.SetRandomSeed(5)
	cfg := testConfig(true)

	src, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "encoder.json")
	if err := src.SaveWeights(path); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	nn.SetRandomSeed(99)
	dst, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := dst.LoadPretrained(path); err != nil {
		t.Fatalf("LoadPretrained failed: %v", err)
	}
	srcParams, dstParams := src.Parameters(), dst.Parameters()
	if len(srcParams) != len(dstParams) {
		t.Fatalf("parameter counts differ: %d vs %d", len(srcParams), len(dstParams))
	}
	for i := range srcParams {
		if !srcParams[i].Equal(dstParams[i]) {
			t.Errorf("parameter %d differs after load", i)
		}
	}

	// A different architecture must be rejected.
	other, err := New(testConfig(false))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := other.LoadPretrained(path); err == nil {
		t.Error("expected mismatched architecture to fail")
	}

	// Empty path keeps the random init.
	if err := other.LoadPretrained(""); err != nil {
		t.Errorf("empty path: %v", err)
	}
}

func TestForwardBackwardReachesParameters(t *testing.T) {
	nn.SetRandomSeed(5)
	e, err := New(testConfig(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := e.Forward(waveBatch(t, 1, 200))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	flat, err := out.Reshape([]int{out.NumElems})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	sum, err := tensor.SumAll(flat)
	if err != nil {
		t.Fatalf("SumAll failed: %v", err)
	}
	if err := sum.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	for i, p := range e.Parameters() {
		if p.Grad() == nil {
			t.Errorf("parameter %d received no gradient", i)
		}
	}
}
