package dream

// fakeOracle adapts a plain function to the Oracle interface for tests.
type fakeOracle struct {
	eval func(img *Tensor) (float64, *Tensor, error)
}

func (f *fakeOracle) Evaluate(img *Tensor) (float64, *Tensor, error) {
	return f.eval(img)
}

// zeroOracle always reports zero loss and a zero gradient.
func zeroOracle() *fakeOracle {
	return &fakeOracle{eval: func(img *Tensor) (float64, *Tensor, error) {
		return 0, NewTensor(img.H, img.W, img.C), nil
	}}
}

// nearestResampler is a deterministic nearest-neighbor resampler. Resizing to
// the source shape returns an identical copy, which several pipeline
// properties depend on.
type nearestResampler struct{}

func (nearestResampler) Resize(img *Tensor, shape Shape) (*Tensor, error) {
	if shape == img.Shape() {
		return img.Clone(), nil
	}
	out := NewTensor(shape.H, shape.W, img.C)
	for y := 0; y < shape.H; y++ {
		sy := y * img.H / shape.H
		for x := 0; x < shape.W; x++ {
			sx := x * img.W / shape.W
			for c := 0; c < img.C; c++ {
				out.Set(y, x, c, img.At(sy, sx, c))
			}
		}
	}
	return out, nil
}

// rampTensor fills a tensor with a deterministic gradient pattern.
func rampTensor(h, w int) *Tensor {
	t := NewTensor(h, w, Channels)
	for i := range t.Data {
		t.Data[i] = float64(i%251) / 250.0
	}
	return t
}

func tensorsEqual(a, b *Tensor) bool {
	if !a.SameShape(b) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}
