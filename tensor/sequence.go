package tensor

import "fmt"

// Sequence-shaped helpers for [batch, time, features] tensors.

type permute021Op struct {
	input *Tensor
}

func (op *permute021Op) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *permute021Op) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := permute021(gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

func permute021(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("permute021 requires a 3D tensor, got %dD", len(t.Shape))
	}
	d0, d1, d2 := t.Shape[0], t.Shape[1], t.Shape[2]
	src, err := t.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	dst := make([]float32, len(src))
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			for k := 0; k < d2; k++ {
				dst[i*d2*d1+k*d1+j] = src[i*d1*d2+j*d2+k]
			}
		}
	}
	return NewTensor([]int{d0, d2, d1}, Float32, t.Device, dst)
}

// Permute021Autograd swaps the last two axes of a 3D tensor.
func Permute021Autograd(t *Tensor) (*Tensor, error) {
	out, err := permute021(t)
	if err != nil {
		return nil, err
	}
	recordOp(out, &permute021Op{input: t})
	return out, nil
}

type concatDim1Op struct {
	a, b   *Tensor
	aTime  int
	outDim []int
}

func (op *concatDim1Op) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *concatDim1Op) Backward(gradOut *Tensor) ([]*Tensor, error) {
	g, err := gradOut.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	batch, totalT, feat := op.outDim[0], op.outDim[1], op.outDim[2]
	bTime := totalT - op.aTime

	gaFull := make([]float32, batch*op.aTime*feat)
	gbFull := make([]float32, batch*bTime*feat)
	for i := 0; i < batch; i++ {
		rowBase := i * totalT * feat
		copy(gaFull[i*op.aTime*feat:(i+1)*op.aTime*feat], g[rowBase:rowBase+op.aTime*feat])
		copy(gbFull[i*bTime*feat:(i+1)*bTime*feat], g[rowBase+op.aTime*feat:rowBase+totalT*feat])
	}

	gaT, err := NewTensor([]int{batch, op.aTime, feat}, Float32, gradOut.Device, gaFull)
	if err != nil {
		return nil, err
	}
	gbT, err := NewTensor([]int{batch, bTime, feat}, Float32, gradOut.Device, gbFull)
	if err != nil {
		return nil, err
	}
	ga, err := reduceGradientToShape(gaT, op.a.Shape)
	if err != nil {
		return nil, err
	}
	gb, err := reduceGradientToShape(gbT, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{ga, gb}, nil
}

// ConcatDim1Autograd joins two [B, T, F] tensors along the time axis.
// Either input may carry batch dimension 1; it is repeated across the
// other input's batch, and gradients sum back accordingly.
func ConcatDim1Autograd(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 3 || len(b.Shape) != 3 {
		return nil, fmt.Errorf("concat requires 3D tensors, got %dD and %dD", len(a.Shape), len(b.Shape))
	}
	if a.Shape[2] != b.Shape[2] {
		return nil, fmt.Errorf("feature dims differ: %d vs %d", a.Shape[2], b.Shape[2])
	}
	batch := a.Shape[0]
	if b.Shape[0] > batch {
		batch = b.Shape[0]
	}
	if (a.Shape[0] != batch && a.Shape[0] != 1) || (b.Shape[0] != batch && b.Shape[0] != 1) {
		return nil, fmt.Errorf("batch dims incompatible: %d vs %d", a.Shape[0], b.Shape[0])
	}

	aTime, bTime, feat := a.Shape[1], b.Shape[1], a.Shape[2]
	totalT := aTime + bTime
	ad, err := a.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	bd, err := b.GetFloat32Data()
	if err != nil {
		return nil, err
	}

	out := make([]float32, batch*totalT*feat)
	for i := 0; i < batch; i++ {
		ai, bi := i, i
		if a.Shape[0] == 1 {
			ai = 0
		}
		if b.Shape[0] == 1 {
			bi = 0
		}
		rowBase := i * totalT * feat
		copy(out[rowBase:rowBase+aTime*feat], ad[ai*aTime*feat:(ai+1)*aTime*feat])
		copy(out[rowBase+aTime*feat:rowBase+totalT*feat], bd[bi*bTime*feat:(bi+1)*bTime*feat])
	}

	result, err := NewTensor([]int{batch, totalT, feat}, Float32, a.Device, out)
	if err != nil {
		return nil, err
	}
	recordOp(result, &concatDim1Op{a: a, b: b, aTime: aTime, outDim: []int{batch, totalT, feat}})
	return result, nil
}

type selectDim1Op struct {
	input *Tensor
	index int
}

func (op *selectDim1Op) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *selectDim1Op) Backward(gradOut *Tensor) ([]*Tensor, error) {
	g, err := gradOut.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	batch, t, feat := op.input.Shape[0], op.input.Shape[1], op.input.Shape[2]
	grad := make([]float32, batch*t*feat)
	for i := 0; i < batch; i++ {
		copy(grad[(i*t+op.index)*feat:(i*t+op.index+1)*feat], g[i*feat:(i+1)*feat])
	}
	gt, err := NewTensor(op.input.Shape, Float32, gradOut.Device, grad)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gt}, nil
}

// SelectDim1Autograd extracts one time position from a [B, T, F] tensor,
// returning [B, F].
func SelectDim1Autograd(t *Tensor, index int) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("select requires a 3D tensor, got %dD", len(t.Shape))
	}
	if index < 0 || index >= t.Shape[1] {
		return nil, fmt.Errorf("time index out of bounds: %d (T: %d)", index, t.Shape[1])
	}
	batch, tt, feat := t.Shape[0], t.Shape[1], t.Shape[2]
	src, err := t.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, batch*feat)
	for i := 0; i < batch; i++ {
		copy(out[i*feat:(i+1)*feat], src[(i*tt+index)*feat:(i*tt+index+1)*feat])
	}
	result, err := NewTensor([]int{batch, feat}, Float32, t.Device, out)
	if err != nil {
		return nil, err
	}
	recordOp(result, &selectDim1Op{input: t, index: index})
	return result, nil
}

type addVecDim1Op struct {
	seq, vec *Tensor
}

func (op *addVecDim1Op) Inputs() []*Tensor { return []*Tensor{op.seq, op.vec} }

func (op *addVecDim1Op) Backward(gradOut *Tensor) ([]*Tensor, error) {
	g, err := gradOut.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	batch, t, feat := op.seq.Shape[0], op.seq.Shape[1], op.seq.Shape[2]
	vecGrad := make([]float32, batch*feat)
	for i := 0; i < batch; i++ {
		for j := 0; j < t; j++ {
			base := (i*t + j) * feat
			for k := 0; k < feat; k++ {
				vecGrad[i*feat+k] += g[base+k]
			}
		}
	}
	gv, err := NewTensor([]int{batch, feat}, Float32, gradOut.Device, vecGrad)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradOut, gv}, nil
}

// AddVecDim1Autograd adds a [B, F] vector to every time position of a
// [B, T, F] sequence. The vector's gradient sums over time.
func AddVecDim1Autograd(seq, vec *Tensor) (*Tensor, error) {
	if len(seq.Shape) != 3 || len(vec.Shape) != 2 {
		return nil, fmt.Errorf("expected [B,T,F] and [B,F], got %v and %v", seq.Shape, vec.Shape)
	}
	if seq.Shape[0] != vec.Shape[0] || seq.Shape[2] != vec.Shape[1] {
		return nil, fmt.Errorf("shapes incompatible: %v and %v", seq.Shape, vec.Shape)
	}
	batch, t, feat := seq.Shape[0], seq.Shape[1], seq.Shape[2]
	sd, err := seq.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	vd, err := vec.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(sd))
	for i := 0; i < batch; i++ {
		for j := 0; j < t; j++ {
			base := (i*t + j) * feat
			for k := 0; k < feat; k++ {
				out[base+k] = sd[base+k] + vd[i*feat+k]
			}
		}
	}
	result, err := NewTensor(seq.Shape, Float32, seq.Device, out)
	if err != nil {
		return nil, err
	}
	recordOp(result, &addVecDim1Op{seq: seq, vec: vec})
	return result, nil
}
