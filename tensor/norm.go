package tensor

import (
	"fmt"
	"math"
)

type layerNormOp struct {
	input, gamma, beta *Tensor
	normed             []float32 // (x - mean) / sqrt(var + eps), reused in backward
	invStd             []float32 // one per row
	rows, dim          int
}

func (op *layerNormOp) Inputs() []*Tensor { return []*Tensor{op.input, op.gamma, op.beta} }

// LayerNormAutograd normalizes the last dimension of the input and applies
// a learned affine transform. Accepts any rank >= 1; all leading dimensions
// are treated as rows.
func LayerNormAutograd(input, gamma, beta *Tensor, eps float64) (*Tensor, error) {
	if input.DType != Float32 {
		return nil, fmt.Errorf("layernorm requires a Float32 tensor, got %s", input.DType)
	}
	dim := input.Shape[len(input.Shape)-1]
	if gamma.NumElems != dim || beta.NumElems != dim {
		return nil, fmt.Errorf("layernorm affine size %d does not match feature dim %d", gamma.NumElems, dim)
	}
	rows := input.NumElems / dim

	out, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	o := out.Data.([]float32)
	g := gamma.Data.([]float32)
	bt := beta.Data.([]float32)

	normed := make([]float32, input.NumElems)
	invStd := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := in[r*dim : (r+1)*dim]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(dim)
		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(dim)
		is := float32(1.0 / math.Sqrt(variance+eps))
		invStd[r] = is
		for j, v := range row {
			n := (v - float32(mean)) * is
			normed[r*dim+j] = n
			o[r*dim+j] = n*g[j] + bt[j]
		}
	}
	recordOp(out, &layerNormOp{input: input, gamma: gamma, beta: beta, normed: normed, invStd: invStd, rows: rows, dim: dim})
	return out, nil
}

func (op *layerNormOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradIn, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradGamma, err := Zeros(op.gamma.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradBeta, err := Zeros(op.beta.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	g := gradOut.Data.([]float32)
	gi := gradIn.Data.([]float32)
	gg := gradGamma.Data.([]float32)
	gb := gradBeta.Data.([]float32)
	gamma := op.gamma.Data.([]float32)
	dim := op.dim

	for r := 0; r < op.rows; r++ {
		// dY/dgamma and dY/dbeta accumulate over rows; dY/dx uses the
		// standard layer-norm gradient with mean terms removed per row.
		var sumDn, sumDnN float64
		for j := 0; j < dim; j++ {
			idx := r*dim + j
			dn := float64(g[idx]) * float64(gamma[j])
			sumDn += dn
			sumDnN += dn * float64(op.normed[idx])
			gg[j] += g[idx] * op.normed[idx]
			gb[j] += g[idx]
		}
		invDim := 1.0 / float64(dim)
		for j := 0; j < dim; j++ {
			idx := r*dim + j
			dn := float64(g[idx]) * float64(gamma[j])
			n := float64(op.normed[idx])
			gi[idx] = float32(float64(op.invStd[r]) * (dn - sumDn*invDim - n*sumDnN*invDim))
		}
	}
	return []*Tensor{gradIn, gradGamma, gradBeta}, nil
}

type batchNorm2dOp struct {
	input, gamma, beta *Tensor
	normed             []float32
	invStd             []float32 // one per channel
	b, c, hw           int
}

func (op *batchNorm2dOp) Inputs() []*Tensor { return []*Tensor{op.input, op.gamma, op.beta} }

// BatchNorm2dAutograd normalizes [B, C, H, W] per channel using batch
// statistics, applies the affine transform, and updates the running
// statistics in place. Used only in training mode; evaluation goes through
// BatchNorm2dInference so stored statistics are never perturbed.
func BatchNorm2dAutograd(input, gamma, beta, runningMean, runningVar *Tensor, momentum, eps float64) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("batchnorm2d expects 4D input, got %v", input.Shape)
	}
	b, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	hw := h * w

	out, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	o := out.Data.([]float32)
	g := gamma.Data.([]float32)
	bt := beta.Data.([]float32)
	rm := runningMean.Data.([]float32)
	rv := runningVar.Data.([]float32)

	normed := make([]float32, input.NumElems)
	invStd := make([]float32, c)
	n := float64(b * hw)
	for ch := 0; ch < c; ch++ {
		var mean float64
		for bi := 0; bi < b; bi++ {
			base := (bi*c + ch) * hw
			for i := 0; i < hw; i++ {
				mean += float64(in[base+i])
			}
		}
		mean /= n
		var variance float64
		for bi := 0; bi < b; bi++ {
			base := (bi*c + ch) * hw
			for i := 0; i < hw; i++ {
				d := float64(in[base+i]) - mean
				variance += d * d
			}
		}
		variance /= n

		rm[ch] = float32((1-momentum)*float64(rm[ch]) + momentum*mean)
		rv[ch] = float32((1-momentum)*float64(rv[ch]) + momentum*variance)

		is := float32(1.0 / math.Sqrt(variance+eps))
		invStd[ch] = is
		for bi := 0; bi < b; bi++ {
			base := (bi*c + ch) * hw
			for i := 0; i < hw; i++ {
				nv := (in[base+i] - float32(mean)) * is
				normed[base+i] = nv
				o[base+i] = nv*g[ch] + bt[ch]
			}
		}
	}
	recordOp(out, &batchNorm2dOp{input: input, gamma: gamma, beta: beta, normed: normed, invStd: invStd, b: b, c: c, hw: hw})
	return out, nil
}

func (op *batchNorm2dOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradIn, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradGamma, err := Zeros(op.gamma.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradBeta, err := Zeros(op.beta.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	g := gradOut.Data.([]float32)
	gi := gradIn.Data.([]float32)
	gg := gradGamma.Data.([]float32)
	gb := gradBeta.Data.([]float32)
	gamma := op.gamma.Data.([]float32)

	n := float64(op.b * op.hw)
	for ch := 0; ch < op.c; ch++ {
		var sumG, sumGN float64
		for bi := 0; bi < op.b; bi++ {
			base := (bi*op.c + ch) * op.hw
			for i := 0; i < op.hw; i++ {
				sumG += float64(g[base+i])
				sumGN += float64(g[base+i]) * float64(op.normed[base+i])
			}
		}
		gg[ch] = float32(sumGN)
		gb[ch] = float32(sumG)
		for bi := 0; bi < op.b; bi++ {
			base := (bi*op.c + ch) * op.hw
			for i := 0; i < op.hw; i++ {
				nv := float64(op.normed[base+i])
				gi[base+i] = float32(float64(gamma[ch]) * float64(op.invStd[ch]) *
					(float64(g[base+i]) - sumG/n - nv*sumGN/n))
			}
		}
	}
	return []*Tensor{gradIn, gradGamma, gradBeta}, nil
}

// BatchNorm2dInference applies batch normalization using stored running
// statistics. No graph is recorded; frozen normalization layers route
// through this in every mode.
func BatchNorm2dInference(input, gamma, beta, runningMean, runningVar *Tensor, eps float64) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("batchnorm2d expects 4D input, got %v", input.Shape)
	}
	b, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	hw := h * w

	out, err := Zeros(input.Shape, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	o := out.Data.([]float32)
	g := gamma.Data.([]float32)
	bt := beta.Data.([]float32)
	rm := runningMean.Data.([]float32)
	rv := runningVar.Data.([]float32)
	for ch := 0; ch < c; ch++ {
		is := float32(1.0 / math.Sqrt(float64(rv[ch])+eps))
		for bi := 0; bi < b; bi++ {
			base := (bi*c + ch) * hw
			for i := 0; i < hw; i++ {
				o[base+i] = (in[base+i]-rm[ch])*is*g[ch] + bt[ch]
			}
		}
	}
	return out, nil
}
