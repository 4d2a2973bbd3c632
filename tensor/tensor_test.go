package tensor

import (
	"math"
	"testing"
)

func tensorOf(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	tt, err := NewTensor(shape, Float32, CPU, data)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	return tt
}

func wantFloats(t *testing.T, got *Tensor, want []float32) {
	t.Helper()
	data, err := got.GetFloat32Data()
	if err != nil {
		t.Fatalf("GetFloat32Data failed: %v", err)
	}
	if len(data) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(data), len(want))
	}
	for i := range want {
		if math.Abs(float64(data[i]-want[i])) > 1e-4 {
			t.Errorf("element %d: got %v, want %v", i, data[i], want[i])
		}
	}
}

func TestNewTensorValidation(t *testing.T) {
	if _, err := NewTensor([]int{2, 0}, Float32, CPU, []float32{}); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2}); err == nil {
		t.Error("expected error for data length mismatch")
	}
	if _, err := NewTensor([]int{2}, Float32, CPU, []int32{1, 2}); err == nil {
		t.Error("expected error for data type mismatch")
	}
}

func TestElementwiseOps(t *testing.T) {
	a := tensorOf(t, []int{2, 2}, []float32{1, 2, 3, 4})
	b := tensorOf(t, []int{2, 2}, []float32{5, 6, 7, 8})

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	wantFloats(t, sum, []float32{6, 8, 10, 12})

	diff, err := Sub(a, b)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	wantFloats(t, diff, []float32{-4, -4, -4, -4})

	prod, err := Mul(a, b)
	if err != nil {
		t.Fatalf("Mul failed: %v", err)
	}
	wantFloats(t, prod, []float32{5, 12, 21, 32})

	quot, err := Div(b, a)
	if err != nil {
		t.Fatalf("Div failed: %v", err)
	}
	wantFloats(t, quot, []float32{5, 3, 7.0 / 3.0, 2})
}

func TestBroadcastBiasAdd(t *testing.T) {
	x := tensorOf(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := tensorOf(t, []int{3}, []float32{10, 20, 30})

	out, err := Add(x, bias)
	if err != nil {
		t.Fatalf("broadcast add failed: %v", err)
	}
	wantFloats(t, out, []float32{11, 22, 33, 14, 25, 36})

	// Scalar broadcast on either side.
	s := FromScalar(2, Float32, CPU)
	scaled, err := Mul(x, s)
	if err != nil {
		t.Fatalf("scalar mul failed: %v", err)
	}
	wantFloats(t, scaled, []float32{2, 4, 6, 8, 10, 12})
}

func TestMatMul(t *testing.T) {
	a := tensorOf(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := tensorOf(t, []int{3, 2}, []float32{7, 8, 9, 10, 11, 12})

	c, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	if !shapesEqual(c.Shape, []int{2, 2}) {
		t.Fatalf("unexpected shape %v", c.Shape)
	}
	wantFloats(t, c, []float32{58, 64, 139, 154})

	if _, err := MatMul(a, a); err == nil {
		t.Error("expected error for incompatible inner dimensions")
	}
}

func TestTransposeReshape(t *testing.T) {
	a := tensorOf(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	at, err := Transpose(a)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	wantFloats(t, at, []float32{1, 4, 2, 5, 3, 6})

	r, err := a.Reshape([]int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !shapesEqual(r.Shape, []int{3, 2}) {
		t.Fatalf("unexpected shape %v", r.Shape)
	}
	if _, err := a.Reshape([]int{4, 2}); err == nil {
		t.Error("expected error for element count mismatch")
	}
}

func TestMeanDim1(t *testing.T) {
	a := tensorOf(t, []int{1, 2, 2}, []float32{1, 2, 3, 4})
	m, err := MeanDim1(a)
	if err != nil {
		t.Fatalf("MeanDim1 failed: %v", err)
	}
	if !shapesEqual(m.Shape, []int{1, 2}) {
		t.Fatalf("unexpected shape %v", m.Shape)
	}
	wantFloats(t, m, []float32{2, 3})
}

func TestArgMaxRows(t *testing.T) {
	a := tensorOf(t, []int{2, 3}, []float32{0.1, 0.7, 0.2, 0.9, 0.05, 0.05})
	idx, err := ArgMaxRows(a)
	if err != nil {
		t.Fatalf("ArgMaxRows failed: %v", err)
	}
	data, err := idx.GetInt32Data()
	if err != nil {
		t.Fatalf("GetInt32Data failed: %v", err)
	}
	if data[0] != 1 || data[1] != 0 {
		t.Errorf("got %v, want [1 0]", data)
	}
}

func TestCloneIndependence(t *testing.T) {
	a := tensorOf(t, []int{2}, []float32{1, 2})
	b, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	b.Data.([]float32)[0] = 99
	if a.Data.([]float32)[0] != 1 {
		t.Error("clone shares storage with original")
	}
}
