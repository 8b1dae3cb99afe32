package autograd

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotScalar indicates a gradient was requested from a non 1x1 output.
	ErrNotScalar = errors.New("autograd: output is not a scalar")

	// ErrShape indicates a tensor was built with inconsistent dimensions.
	ErrShape = errors.New("autograd: inconsistent shape")
)

// Tensor is a row-major rows x cols matrix of float64. The row axis is the
// batch axis everywhere in this module.
//
// A tensor that requires gradients remembers the op that produced it, so
// that Grad can walk the graph backwards. Gradients computed with
// createGraph are themselves tracked tensors and can be differentiated again.
type Tensor struct {
	data       []float64
	rows, cols int

	requiresGrad bool
	parents      []*Tensor
	backward     func(g *Tensor) []*Tensor

	grad *Tensor
}

// New wraps data as a rows x cols tensor. The slice is used as backing
// storage without copying.
func New(rows, cols int, data []float64) *Tensor {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		panic(fmt.Errorf("%w: %dx%d with %d values", ErrShape, rows, cols, len(data)))
	}
	return &Tensor{data: data, rows: rows, cols: cols}
}

// Param returns a leaf tensor that requires gradients.
func Param(rows, cols int, data []float64) *Tensor {
	t := New(rows, cols, data)
	t.requiresGrad = true
	return t
}

func Zeros(rows, cols int) *Tensor {
	return New(rows, cols, make([]float64, rows*cols))
}

func Full(rows, cols int, v float64) *Tensor {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return New(rows, cols, data)
}

func Ones(rows, cols int) *Tensor { return Full(rows, cols, 1) }

// Scalar returns a 1x1 constant.
func Scalar(v float64) *Tensor { return New(1, 1, []float64{v}) }

func (t *Tensor) Rows() int { return t.rows }
func (t *Tensor) Cols() int { return t.cols }
func (t *Tensor) Len() int  { return len(t.data) }

// Shape returns (rows, cols).
func (t *Tensor) Shape() (int, int) { return t.rows, t.cols }

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.rows == o.rows && t.cols == o.cols
}

// Data returns the backing slice. Callers other than optimizers must treat
// it as read-only.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) At(i, j int) float64 { return t.data[i*t.cols+j] }

// Item returns the value of a 1x1 tensor.
func (t *Tensor) Item() float64 {
	if t.rows != 1 || t.cols != 1 {
		panic(fmt.Errorf("%w: Item on %dx%d", ErrNotScalar, t.rows, t.cols))
	}
	return t.data[0]
}

// Row returns a copy of row i.
func (t *Tensor) Row(i int) []float64 {
	out := make([]float64, t.cols)
	copy(out, t.data[i*t.cols:(i+1)*t.cols])
	return out
}

func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// IsLeaf reports whether t was not produced by a tracked op.
func (t *Tensor) IsLeaf() bool { return t.backward == nil }

// Track returns a tensor that participates in gradient computation. Tracked
// tensors are returned as-is; untracked ones get a new leaf sharing storage.
func (t *Tensor) Track() *Tensor {
	if t.requiresGrad {
		return t
	}
	return &Tensor{data: t.data, rows: t.rows, cols: t.cols, requiresGrad: true}
}

// Detach returns an untracked view sharing storage with t.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{data: t.data, rows: t.rows, cols: t.cols}
}

// Clone returns an untracked deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return New(t.rows, t.cols, data)
}

// Grad returns the gradient accumulated by Backward, or nil.
func (t *Tensor) Grad() *Tensor { return t.grad }

func (t *Tensor) ZeroGrad() { t.grad = nil }

// IsValid reports whether every element is finite.
func (t *Tensor) IsValid() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%dx%d, grad=%v)", t.rows, t.cols, t.requiresGrad)
}
