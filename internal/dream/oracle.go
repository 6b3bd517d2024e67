package dream

// Oracle maps an image tensor to a scalar loss and its gradient with respect
// to the image. The gradient must have the same shape as the input. An oracle
// is expected to be a pure function of (image, fixed configuration); the
// pipeline never retries a failed evaluation.
type Oracle interface {
	Evaluate(img *Tensor) (loss float64, grad *Tensor, err error)
}

// Resampler resizes an image tensor to a target spatial shape, preserving the
// channel count. The same resampler instance must serve both octave
// transitions and detail-delta computation: comparing tensors resized by
// different kernels corrupts the detail-reinjection correction. Resizing to
// the tensor's own shape must return an identical tensor.
type Resampler interface {
	Resize(img *Tensor, shape Shape) (*Tensor, error)
}
