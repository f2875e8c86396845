package plan

import (
	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// graphBuilders holds the named example graphs the CLI can schedule.
var graphBuilders = map[string]func() []ir.Operation{
	"vecadd": buildVecAdd,
	"gemm":   buildGemm,
	"blur":   buildBlur,
}

// GraphNames lists the available example graphs.
func GraphNames() []string {
	return []string{"blur", "gemm", "vecadd"}
}

// BuildGraph constructs the output operations of a named example graph.
func BuildGraph(name string) ([]ir.Operation, error) {
	build, ok := graphBuilders[name]
	if !ok {
		return nil, scherrors.NewValidationError("graph", "unknown graph "+name, nil)
	}
	return build(), nil
}

func buildVecAdd() []ir.Operation {
	A := ir.Placeholder(ir.Shape(1024), ir.Float32, "A")
	B := ir.Placeholder(ir.Shape(1024), ir.Float32, "B")
	C := ir.Compute(ir.Shape(1024), func(vars []*ir.Var) ir.Expr {
		return &ir.Add{A: A.Access(vars[0]), B: B.Access(vars[0])}
	}, "C")
	return []ir.Operation{C.Op}
}

func buildGemm() []ir.Operation {
	A := ir.Placeholder(ir.Shape(64, 64), ir.Float32, "A")
	B := ir.Placeholder(ir.Shape(64, 64), ir.Float32, "B")
	k := ir.ReduceAxis(ir.RangeFromExtent(ir.IntConst(64)), "k")
	C := ir.Compute(ir.Shape(64, 64), func(vars []*ir.Var) ir.Expr {
		return ir.Sum(&ir.Mul{A: A.Access(vars[0], k.Var), B: B.Access(k.Var, vars[1])}, k)
	}, "C")
	return []ir.Operation{C.Op}
}

func buildBlur() []ir.Operation {
	A := ir.Placeholder(ir.Shape(64, 66), ir.Float32, "A")
	third := &ir.FloatImm{T: ir.Float32, Value: 1.0 / 3.0}
	B := ir.Compute(ir.Shape(64, 64), func(vars []*ir.Var) ir.Expr {
		i, j := vars[0], vars[1]
		sum := &ir.Add{
			A: &ir.Add{
				A: A.Access(i, j),
				B: A.Access(i, &ir.Add{A: j, B: ir.IntConst(1)}),
			},
			B: A.Access(i, &ir.Add{A: j, B: ir.IntConst(2)}),
		}
		return &ir.Mul{A: sum, B: third}
	}, "blur")
	return []ir.Operation{B.Op}
}
