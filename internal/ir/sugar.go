package ir

import "fmt"

// Shape builds a constant shape from integer dimensions.
func Shape(dims ...int64) []Expr {
	out := make([]Expr, len(dims))
	for i, d := range dims {
		out[i] = IntConst(d)
	}
	return out
}

// Placeholder declares an external input tensor.
func Placeholder(shape []Expr, dtype DType, name string) Tensor {
	return NewPlaceholderOp(name, shape, dtype).Output(0)
}

// Compute builds a single-output compute operation. f receives the data
// parallel axis variables in order.
func Compute(shape []Expr, f func(vars []*Var) Expr, name string) Tensor {
	return ComputeMulti(shape, func(vars []*Var) []Expr {
		return []Expr{f(vars)}
	}, name)[0]
}

// ComputeMulti builds a compute operation with one output per returned body
// expression.
func ComputeMulti(shape []Expr, f func(vars []*Var) []Expr, name string) []Tensor {
	axis := make([]*IterVar, len(shape))
	vars := make([]*Var, len(shape))
	for i, extent := range shape {
		axis[i] = NewIterVar(RangeFromExtent(extent), fmt.Sprintf("ax%d", i), DataPar)
		vars[i] = axis[i].Var
	}
	body := f(vars)
	op := NewComputeOp(name, "", axis, body)
	outputs := make([]Tensor, len(body))
	for i := range body {
		outputs[i] = op.Output(i)
	}
	return outputs
}

// sumCombiner builds the additive combiner for the given element type.
func sumCombiner(t DType) *CommReducer {
	x := NewVar("x", t)
	y := NewVar("y", t)
	return &CommReducer{
		Lhs:      []*Var{x},
		Rhs:      []*Var{y},
		Result:   []Expr{&Add{A: x, B: y}},
		Identity: []Expr{MakeZero(t)},
	}
}

// Sum reduces expr over the given axes with the additive combiner.
func Sum(expr Expr, axis ...*IterVar) Expr {
	return &Reduce{
		Combiner:   sumCombiner(expr.Dtype()),
		Source:     []Expr{expr},
		Axis:       axis,
		Condition:  ConstTrue(),
		ValueIndex: 0,
	}
}
