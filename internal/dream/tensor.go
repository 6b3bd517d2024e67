package dream

import "fmt"

// Channels is the fixed channel count of every tensor in a run.
const Channels = 3

// Shape is a spatial (height, width) pair.
type Shape struct {
	H int `json:"h"`
	W int `json:"w"`
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.H, s.W)
}

// Valid reports whether both dimensions are at least 1.
func (s Shape) Valid() bool {
	return s.H >= 1 && s.W >= 1
}

// Tensor is an H×W×C image tensor stored as a flat row-major float64 slice.
type Tensor struct {
	H, W, C int
	Data    []float64
}

// NewTensor allocates a zero-filled tensor.
func NewTensor(h, w, c int) *Tensor {
	return &Tensor{
		H:    h,
		W:    w,
		C:    c,
		Data: make([]float64, h*w*c),
	}
}

// Shape returns the spatial shape (height, width).
func (t *Tensor) Shape() Shape {
	return Shape{H: t.H, W: t.W}
}

// At returns the value at (y, x, c). No bounds checking beyond the slice's own.
func (t *Tensor) At(y, x, c int) float64 {
	return t.Data[(y*t.W+x)*t.C+c]
}

// Set writes the value at (y, x, c).
func (t *Tensor) Set(y, x, c int, v float64) {
	t.Data[(y*t.W+x)*t.C+c] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{H: t.H, W: t.W, C: t.C, Data: make([]float64, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether both tensors have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.H == o.H && t.W == o.W && t.C == o.C
}

// Add performs t += o elementwise.
func (t *Tensor) Add(o *Tensor) error {
	if !t.SameShape(o) {
		return fmt.Errorf("shape mismatch: %dx%dx%d vs %dx%dx%d", t.H, t.W, t.C, o.H, o.W, o.C)
	}
	for i, v := range o.Data {
		t.Data[i] += v
	}
	return nil
}

// AddScaled performs t += scale * o elementwise.
func (t *Tensor) AddScaled(o *Tensor, scale float64) error {
	if !t.SameShape(o) {
		return fmt.Errorf("shape mismatch: %dx%dx%d vs %dx%dx%d", t.H, t.W, t.C, o.H, o.W, o.C)
	}
	for i, v := range o.Data {
		t.Data[i] += scale * v
	}
	return nil
}

// Sub returns a new tensor t - o elementwise.
func (t *Tensor) Sub(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, fmt.Errorf("shape mismatch: %dx%dx%d vs %dx%dx%d", t.H, t.W, t.C, o.H, o.W, o.C)
	}
	out := &Tensor{H: t.H, W: t.W, C: t.C, Data: make([]float64, len(t.Data))}
	for i := range t.Data {
		out.Data[i] = t.Data[i] - o.Data[i]
	}
	return out, nil
}
