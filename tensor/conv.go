package tensor

import (
	"fmt"
)

// Conv1dOutLen returns the output length of a 1D convolution without
// padding.
func Conv1dOutLen(inLen, kernel, stride int) int {
	if inLen < kernel {
		return 0
	}
	return (inLen-kernel)/stride + 1
}

// Conv2dOutDim returns the output size of one spatial dimension of a 2D
// convolution.
func Conv2dOutDim(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

type conv1dOp struct {
	input, weight, bias *Tensor
	stride              int
}

func (op *conv1dOp) Inputs() []*Tensor {
	if op.bias != nil {
		return []*Tensor{op.input, op.weight, op.bias}
	}
	return []*Tensor{op.input, op.weight}
}

// Conv1dAutograd applies a 1D convolution over [B, Cin, L] with weight
// [Cout, Cin, K] and optional bias [Cout]. No padding.
func Conv1dAutograd(input, weight, bias *Tensor, stride int) (*Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("conv1d expects 3D input [batch, channels, length], got %v", input.Shape)
	}
	if len(weight.Shape) != 3 {
		return nil, fmt.Errorf("conv1d expects 3D weight [out, in, kernel], got %v", weight.Shape)
	}
	b, cin, l := input.Shape[0], input.Shape[1], input.Shape[2]
	cout, wcin, k := weight.Shape[0], weight.Shape[1], weight.Shape[2]
	if cin != wcin {
		return nil, fmt.Errorf("conv1d channel mismatch: input %d, weight %d", cin, wcin)
	}
	lout := Conv1dOutLen(l, k, stride)
	if lout <= 0 {
		return nil, fmt.Errorf("conv1d input length %d shorter than kernel %d", l, k)
	}

	out, err := Zeros([]int{b, cout, lout}, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	w := weight.Data.([]float32)
	o := out.Data.([]float32)
	var bd []float32
	if bias != nil {
		bd = bias.Data.([]float32)
	}
	for n := 0; n < b; n++ {
		for oc := 0; oc < cout; oc++ {
			for t := 0; t < lout; t++ {
				start := t * stride
				var sum float32
				for ic := 0; ic < cin; ic++ {
					inBase := (n*cin+ic)*l + start
					wBase := (oc*cin + ic) * k
					for p := 0; p < k; p++ {
						sum += in[inBase+p] * w[wBase+p]
					}
				}
				if bd != nil {
					sum += bd[oc]
				}
				o[(n*cout+oc)*lout+t] = sum
			}
		}
	}
	recordOp(out, &conv1dOp{input: input, weight: weight, bias: bias, stride: stride})
	return out, nil
}

func (op *conv1dOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	b, cin, l := op.input.Shape[0], op.input.Shape[1], op.input.Shape[2]
	cout, _, k := op.weight.Shape[0], op.weight.Shape[1], op.weight.Shape[2]
	lout := gradOut.Shape[2]

	gradIn, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradW, err := Zeros(op.weight.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gi := gradIn.Data.([]float32)
	gw := gradW.Data.([]float32)
	g := gradOut.Data.([]float32)
	in := op.input.Data.([]float32)
	w := op.weight.Data.([]float32)

	for n := 0; n < b; n++ {
		for oc := 0; oc < cout; oc++ {
			for t := 0; t < lout; t++ {
				gv := g[(n*cout+oc)*lout+t]
				if gv == 0 {
					continue
				}
				start := t * op.stride
				for ic := 0; ic < cin; ic++ {
					inBase := (n*cin+ic)*l + start
					wBase := (oc*cin + ic) * k
					for p := 0; p < k; p++ {
						gi[inBase+p] += gv * w[wBase+p]
						gw[wBase+p] += gv * in[inBase+p]
					}
				}
			}
		}
	}

	grads := []*Tensor{gradIn, gradW}
	if op.bias != nil {
		gradB, err := Zeros(op.bias.Shape, Float32, gradOut.Device)
		if err != nil {
			return nil, err
		}
		gb := gradB.Data.([]float32)
		for n := 0; n < b; n++ {
			for oc := 0; oc < cout; oc++ {
				for t := 0; t < lout; t++ {
					gb[oc] += g[(n*cout+oc)*lout+t]
				}
			}
		}
		grads = append(grads, gradB)
	}
	return grads, nil
}

type conv2dOp struct {
	input, weight, bias *Tensor
	stride, padding     int
}

func (op *conv2dOp) Inputs() []*Tensor {
	if op.bias != nil {
		return []*Tensor{op.input, op.weight, op.bias}
	}
	return []*Tensor{op.input, op.weight}
}

// Conv2dAutograd applies a 2D convolution over [B, Cin, H, W] with weight
// [Cout, Cin, K, K] and optional bias [Cout].
func Conv2dAutograd(input, weight, bias *Tensor, stride, padding int) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("conv2d expects 4D input [batch, channels, height, width], got %v", input.Shape)
	}
	if len(weight.Shape) != 4 {
		return nil, fmt.Errorf("conv2d expects 4D weight [out, in, k, k], got %v", weight.Shape)
	}
	b, cin, h, wd := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	cout, wcin, kh, kw := weight.Shape[0], weight.Shape[1], weight.Shape[2], weight.Shape[3]
	if cin != wcin {
		return nil, fmt.Errorf("conv2d channel mismatch: input %d, weight %d", cin, wcin)
	}
	hout := Conv2dOutDim(h, kh, stride, padding)
	wout := Conv2dOutDim(wd, kw, stride, padding)
	if hout <= 0 || wout <= 0 {
		return nil, fmt.Errorf("conv2d input %dx%d too small for kernel %dx%d", h, wd, kh, kw)
	}

	out, err := Zeros([]int{b, cout, hout, wout}, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	w := weight.Data.([]float32)
	o := out.Data.([]float32)
	var bd []float32
	if bias != nil {
		bd = bias.Data.([]float32)
	}
	for n := 0; n < b; n++ {
		for oc := 0; oc < cout; oc++ {
			for oy := 0; oy < hout; oy++ {
				for ox := 0; ox < wout; ox++ {
					var sum float32
					for ic := 0; ic < cin; ic++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= wd {
									continue
								}
								sum += in[((n*cin+ic)*h+iy)*wd+ix] * w[((oc*cin+ic)*kh+ky)*kw+kx]
							}
						}
					}
					if bd != nil {
						sum += bd[oc]
					}
					o[((n*cout+oc)*hout+oy)*wout+ox] = sum
				}
			}
		}
	}
	recordOp(out, &conv2dOp{input: input, weight: weight, bias: bias, stride: stride, padding: padding})
	return out, nil
}

func (op *conv2dOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	b, cin, h, wd := op.input.Shape[0], op.input.Shape[1], op.input.Shape[2], op.input.Shape[3]
	cout, _, kh, kw := op.weight.Shape[0], op.weight.Shape[1], op.weight.Shape[2], op.weight.Shape[3]
	hout, wout := gradOut.Shape[2], gradOut.Shape[3]

	gradIn, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gradW, err := Zeros(op.weight.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	gi := gradIn.Data.([]float32)
	gw := gradW.Data.([]float32)
	g := gradOut.Data.([]float32)
	in := op.input.Data.([]float32)
	w := op.weight.Data.([]float32)

	for n := 0; n < b; n++ {
		for oc := 0; oc < cout; oc++ {
			for oy := 0; oy < hout; oy++ {
				for ox := 0; ox < wout; ox++ {
					gv := g[((n*cout+oc)*hout+oy)*wout+ox]
					if gv == 0 {
						continue
					}
					for ic := 0; ic < cin; ic++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*op.stride + ky - op.padding
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*op.stride + kx - op.padding
								if ix < 0 || ix >= wd {
									continue
								}
								inIdx := ((n*cin+ic)*h+iy)*wd + ix
								wIdx := ((oc*cin+ic)*kh+ky)*kw + kx
								gi[inIdx] += gv * w[wIdx]
								gw[wIdx] += gv * in[inIdx]
							}
						}
					}
				}
			}
		}
	}

	grads := []*Tensor{gradIn, gradW}
	if op.bias != nil {
		gradB, err := Zeros(op.bias.Shape, Float32, gradOut.Device)
		if err != nil {
			return nil, err
		}
		gb := gradB.Data.([]float32)
		for n := 0; n < b; n++ {
			for oc := 0; oc < cout; oc++ {
				for i := 0; i < hout*wout; i++ {
					gb[oc] += g[(n*cout+oc)*hout*wout+i]
				}
			}
		}
		grads = append(grads, gradB)
	}
	return grads, nil
}

type maxPool2dOp struct {
	input   *Tensor
	argmax  []int
	kernel  int
	stride  int
	outDims []int
}

func (op *maxPool2dOp) Inputs() []*Tensor { return []*Tensor{op.input} }

// MaxPool2dAutograd applies max pooling over [B, C, H, W].
func MaxPool2dAutograd(input *Tensor, kernel, stride int) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("maxpool2d expects 4D input, got %v", input.Shape)
	}
	b, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	hout := (h-kernel)/stride + 1
	wout := (w-kernel)/stride + 1
	if hout <= 0 || wout <= 0 {
		return nil, fmt.Errorf("maxpool2d input %dx%d too small for kernel %d", h, w, kernel)
	}

	out, err := Zeros([]int{b, c, hout, wout}, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	o := out.Data.([]float32)
	argmax := make([]int, b*c*hout*wout)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			for oy := 0; oy < hout; oy++ {
				for ox := 0; ox < wout; ox++ {
					bestIdx := ((n*c+ch)*h+oy*stride)*w + ox*stride
					best := in[bestIdx]
					for ky := 0; ky < kernel; ky++ {
						for kx := 0; kx < kernel; kx++ {
							idx := ((n*c+ch)*h+oy*stride+ky)*w + ox*stride + kx
							if in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					oIdx := ((n*c+ch)*hout+oy)*wout + ox
					o[oIdx] = best
					argmax[oIdx] = bestIdx
				}
			}
		}
	}
	recordOp(out, &maxPool2dOp{input: input, argmax: argmax, kernel: kernel, stride: stride, outDims: []int{hout, wout}})
	return out, nil
}

func (op *maxPool2dOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	for i, src := range op.argmax {
		gd[src] += g[i]
	}
	return []*Tensor{grad}, nil
}

type globalAvgPool2dOp struct {
	input *Tensor
}

func (op *globalAvgPool2dOp) Inputs() []*Tensor { return []*Tensor{op.input} }

// GlobalAvgPool2dAutograd averages [B, C, H, W] over its spatial
// dimensions, producing [B, C].
func GlobalAvgPool2dAutograd(input *Tensor) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("global average pool expects 4D input, got %v", input.Shape)
	}
	b, c, h, w := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	out, err := Zeros([]int{b, c}, Float32, input.Device)
	if err != nil {
		return nil, err
	}
	in := input.Data.([]float32)
	o := out.Data.([]float32)
	inv := 1.0 / float32(h*w)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			var sum float32
			base := (n*c + ch) * h * w
			for i := 0; i < h*w; i++ {
				sum += in[base+i]
			}
			o[n*c+ch] = sum * inv
		}
	}
	recordOp(out, &globalAvgPool2dOp{input: input})
	return out, nil
}

func (op *globalAvgPool2dOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	b, c, h, w := op.input.Shape[0], op.input.Shape[1], op.input.Shape[2], op.input.Shape[3]
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	inv := 1.0 / float32(h*w)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			gv := g[n*c+ch] * inv
			base := (n*c + ch) * h * w
			for i := 0; i < h*w; i++ {
				gd[base+i] = gv
			}
		}
	}
	return []*Tensor{grad}, nil
}
