package autograd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// record attaches the backward rule to out when any parent is tracked.
func record(out *Tensor, parents []*Tensor, backward func(g *Tensor) []*Tensor) *Tensor {
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.parents = parents
			out.backward = backward
			break
		}
	}
	return out
}

func mustSameShape(op string, a, b *Tensor) {
	if !a.SameShape(b) {
		panic(fmt.Errorf("%w: %s %dx%d vs %dx%d", ErrShape, op, a.rows, a.cols, b.rows, b.cols))
	}
}

func Add(a, b *Tensor) *Tensor {
	mustSameShape("add", a, b)
	data := make([]float64, len(a.data))
	floats.AddTo(data, a.data, b.data)
	return record(New(a.rows, a.cols, data), []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{g, g}
	})
}

func Sub(a, b *Tensor) *Tensor {
	mustSameShape("sub", a, b)
	data := make([]float64, len(a.data))
	floats.SubTo(data, a.data, b.data)
	return record(New(a.rows, a.cols, data), []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{g, Neg(g)}
	})
}

// Mul is the element-wise product.
func Mul(a, b *Tensor) *Tensor {
	mustSameShape("mul", a, b)
	data := make([]float64, len(a.data))
	floats.MulTo(data, a.data, b.data)
	return record(New(a.rows, a.cols, data), []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, b), Mul(g, a)}
	})
}

func Scale(a *Tensor, s float64) *Tensor {
	data := make([]float64, len(a.data))
	floats.ScaleTo(data, s, a.data)
	return record(New(a.rows, a.cols, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Scale(g, s)}
	})
}

func Neg(a *Tensor) *Tensor { return Scale(a, -1) }

func AddScalar(a *Tensor, s float64) *Tensor {
	data := make([]float64, len(a.data))
	copy(data, a.data)
	floats.AddConst(s, data)
	return record(New(a.rows, a.cols, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{g}
	})
}

// MatMul multiplies an m x k tensor by a k x n tensor.
func MatMul(a, b *Tensor) *Tensor {
	if a.cols != b.rows {
		panic(fmt.Errorf("%w: matmul %dx%d by %dx%d", ErrShape, a.rows, a.cols, b.rows, b.cols))
	}
	data := make([]float64, a.rows*b.cols)
	if a.rows > 0 && a.cols > 0 && b.cols > 0 {
		out := mat.NewDense(a.rows, b.cols, data)
		out.Mul(mat.NewDense(a.rows, a.cols, a.data), mat.NewDense(b.rows, b.cols, b.data))
	}
	return record(New(a.rows, b.cols, data), []*Tensor{a, b}, func(g *Tensor) []*Tensor {
		return []*Tensor{MatMul(g, Transpose(b)), MatMul(Transpose(a), g)}
	})
}

func Transpose(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			data[j*a.rows+i] = a.data[i*a.cols+j]
		}
	}
	return record(New(a.cols, a.rows, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Transpose(g)}
	})
}

// AddBias adds a 1 x cols row vector to every row of a.
func AddBias(a, bias *Tensor) *Tensor {
	if bias.rows != 1 || bias.cols != a.cols {
		panic(fmt.Errorf("%w: bias %dx%d for %dx%d", ErrShape, bias.rows, bias.cols, a.rows, a.cols))
	}
	data := make([]float64, len(a.data))
	for i := 0; i < a.rows; i++ {
		floats.AddTo(data[i*a.cols:(i+1)*a.cols], a.data[i*a.cols:(i+1)*a.cols], bias.data)
	}
	return record(New(a.rows, a.cols, data), []*Tensor{a, bias}, func(g *Tensor) []*Tensor {
		return []*Tensor{g, SumRows(g)}
	})
}

func Tanh(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = math.Tanh(v)
	}
	out := New(a.rows, a.cols, data)
	return record(out, []*Tensor{a}, func(g *Tensor) []*Tensor {
		// d tanh = 1 - tanh^2
		return []*Tensor{Mul(g, AddScalar(Neg(Mul(out, out)), 1))}
	})
}

func Sigmoid(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = 1 / (1 + math.Exp(-v))
	}
	out := New(a.rows, a.cols, data)
	return record(out, []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, Mul(out, AddScalar(Neg(out), 1)))}
	})
}

func Exp(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = math.Exp(v)
	}
	out := New(a.rows, a.cols, data)
	return record(out, []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, out)}
	})
}

func Log(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = math.Log(v)
	}
	return record(New(a.rows, a.cols, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Mul(g, Reciprocal(a))}
	})
}

func Reciprocal(a *Tensor) *Tensor {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = 1 / v
	}
	out := New(a.rows, a.cols, data)
	return record(out, []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Neg(Mul(g, Mul(out, out)))}
	})
}

// Sum reduces every element into a 1x1 tensor.
func Sum(a *Tensor) *Tensor {
	rows, cols := a.rows, a.cols
	return record(Scalar(floats.Sum(a.data)), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Broadcast(g, rows, cols)}
	})
}

func Mean(a *Tensor) *Tensor {
	if len(a.data) == 0 {
		return Scale(Sum(a), 0)
	}
	return Scale(Sum(a), 1/float64(len(a.data)))
}

// Broadcast expands a 1x1 tensor to rows x cols.
func Broadcast(a *Tensor, rows, cols int) *Tensor {
	if a.rows != 1 || a.cols != 1 {
		panic(fmt.Errorf("%w: broadcast from %dx%d", ErrShape, a.rows, a.cols))
	}
	return record(Full(rows, cols, a.data[0]), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{Sum(g)}
	})
}

// SumRows reduces over the batch axis: rows x cols -> 1 x cols.
func SumRows(a *Tensor) *Tensor {
	rows := a.rows
	data := make([]float64, a.cols)
	for i := 0; i < a.rows; i++ {
		floats.Add(data, a.data[i*a.cols:(i+1)*a.cols])
	}
	return record(New(1, a.cols, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{TileRows(g, rows)}
	})
}

// SumCols reduces over the feature axis: rows x cols -> rows x 1.
func SumCols(a *Tensor) *Tensor {
	cols := a.cols
	data := make([]float64, a.rows)
	for i := 0; i < a.rows; i++ {
		data[i] = floats.Sum(a.data[i*a.cols : (i+1)*a.cols])
	}
	return record(New(a.rows, 1, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{TileCols(g, cols)}
	})
}

// TileRows repeats a 1 x cols tensor n times along the batch axis.
func TileRows(a *Tensor, n int) *Tensor {
	if a.rows != 1 {
		panic(fmt.Errorf("%w: tile rows from %dx%d", ErrShape, a.rows, a.cols))
	}
	data := make([]float64, n*a.cols)
	for i := 0; i < n; i++ {
		copy(data[i*a.cols:], a.data)
	}
	return record(New(n, a.cols, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{SumRows(g)}
	})
}

// TileCols repeats a rows x 1 tensor n times along the feature axis.
func TileCols(a *Tensor, n int) *Tensor {
	if a.cols != 1 {
		panic(fmt.Errorf("%w: tile cols from %dx%d", ErrShape, a.rows, a.cols))
	}
	data := make([]float64, a.rows*n)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = a.data[i]
		}
	}
	return record(New(a.rows, n, data), []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{SumCols(g)}
	})
}
