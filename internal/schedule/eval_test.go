package schedule

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JThr3e/heterocl/internal/ir"
)

// evaluator is a small reference interpreter over compute dataflow graphs,
// used to check that dataflow rewrites preserve tensor values.
type evaluator struct {
	placeholders map[ir.Operation]func(idx []int64) float64
}

func (e *evaluator) tensorAt(t ir.Tensor, idx []int64) float64 {
	switch op := t.Op.(type) {
	case *ir.PlaceholderOp:
		return e.placeholders[op](idx)
	case *ir.ComputeOp:
		env := make(map[*ir.Var]float64, len(op.Axis()))
		for i, iv := range op.Axis() {
			env[iv.Var] = float64(idx[i])
		}
		return e.eval(op.Body()[t.ValueIndex], env)
	default:
		panic("evaluator: unsupported operation")
	}
}

func (e *evaluator) eval(expr ir.Expr, env map[*ir.Var]float64) float64 {
	switch n := expr.(type) {
	case *ir.Var:
		v, ok := env[n]
		if !ok {
			panic("evaluator: unbound variable " + n.Name)
		}
		return v
	case *ir.IntImm:
		return float64(n.Value)
	case *ir.FloatImm:
		return n.Value
	case *ir.Add:
		return e.eval(n.A, env) + e.eval(n.B, env)
	case *ir.Sub:
		return e.eval(n.A, env) - e.eval(n.B, env)
	case *ir.Mul:
		return e.eval(n.A, env) * e.eval(n.B, env)
	case *ir.Div:
		return math.Trunc(e.eval(n.A, env) / e.eval(n.B, env))
	case *ir.Mod:
		return math.Mod(e.eval(n.A, env), e.eval(n.B, env))
	case *ir.Min:
		return math.Min(e.eval(n.A, env), e.eval(n.B, env))
	case *ir.Max:
		return math.Max(e.eval(n.A, env), e.eval(n.B, env))
	case *ir.EQ:
		return boolVal(e.eval(n.A, env) == e.eval(n.B, env))
	case *ir.NE:
		return boolVal(e.eval(n.A, env) != e.eval(n.B, env))
	case *ir.LT:
		return boolVal(e.eval(n.A, env) < e.eval(n.B, env))
	case *ir.LE:
		return boolVal(e.eval(n.A, env) <= e.eval(n.B, env))
	case *ir.GT:
		return boolVal(e.eval(n.A, env) > e.eval(n.B, env))
	case *ir.GE:
		return boolVal(e.eval(n.A, env) >= e.eval(n.B, env))
	case *ir.And:
		return boolVal(e.eval(n.A, env) != 0 && e.eval(n.B, env) != 0)
	case *ir.Or:
		return boolVal(e.eval(n.A, env) != 0 || e.eval(n.B, env) != 0)
	case *ir.Not:
		return boolVal(e.eval(n.A, env) == 0)
	case *ir.Select:
		if e.eval(n.Cond, env) != 0 {
			return e.eval(n.TrueValue, env)
		}
		return e.eval(n.FalseValue, env)
	case *ir.Call:
		if n.Kind != ir.CallHalide || n.Func == nil {
			panic("evaluator: unsupported call " + n.Name)
		}
		idx := make([]int64, len(n.Args))
		for i, a := range n.Args {
			idx[i] = int64(e.eval(a, env))
		}
		return e.tensorAt(ir.Tensor{Op: n.Func, ValueIndex: n.ValueIndex}, idx)
	case *ir.Reduce:
		return e.evalReduce(n, env)
	default:
		panic("evaluator: unsupported expression")
	}
}

func (e *evaluator) evalReduce(red *ir.Reduce, env map[*ir.Var]float64) float64 {
	acc := e.eval(red.Combiner.Identity[red.ValueIndex], env)
	var loop func(depth int)
	loop = func(depth int) {
		if depth == len(red.Axis) {
			if red.Condition != nil && e.eval(red.Condition, env) == 0 {
				return
			}
			val := e.eval(red.Source[red.ValueIndex], env)
			combineEnv := make(map[*ir.Var]float64, len(env)+2)
			for k, v := range env {
				combineEnv[k] = v
			}
			combineEnv[red.Combiner.Lhs[red.ValueIndex]] = acc
			combineEnv[red.Combiner.Rhs[red.ValueIndex]] = val
			acc = e.eval(red.Combiner.Result[red.ValueIndex], combineEnv)
			return
		}
		iv := red.Axis[depth]
		min, ok := ir.ConstInt(iv.Dom.Min)
		if !ok {
			panic("evaluator: non-constant reduction min")
		}
		extent, ok := ir.ConstInt(iv.Dom.Extent)
		if !ok {
			panic("evaluator: non-constant reduction extent")
		}
		for v := min; v < min+extent; v++ {
			env[iv.Var] = float64(v)
			loop(depth + 1)
		}
		delete(env, iv.Var)
	}
	loop(0)
	return acc
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// matvec builds B[i] = sum_k A[i,k] * W[k] over small constant shapes.
func matvec() (ir.Tensor, ir.Tensor, ir.Tensor) {
	A := ir.Placeholder(ir.Shape(4, 8), ir.Float32, "A")
	W := ir.Placeholder(ir.Shape(8), ir.Float32, "W")
	k := ir.ReduceAxis(ir.RangeFromExtent(ir.IntConst(8)), "k")
	B := ir.Compute(ir.Shape(4), func(vars []*ir.Var) ir.Expr {
		return ir.Sum(&ir.Mul{A: A.Access(vars[0], k.Var), B: W.Access(k.Var)}, k)
	}, "B")
	return A, W, B
}

func matvecInputs(A, W ir.Tensor) map[ir.Operation]func([]int64) float64 {
	return map[ir.Operation]func([]int64) float64{
		A.Op: func(idx []int64) float64 { return float64(idx[0]*10 + idx[1]) },
		W.Op: func(idx []int64) float64 { return float64(idx[0] + 1) },
	}
}

// referenceValues evaluates the untransformed output tensor directly.
func referenceValues(A, W, out ir.Tensor, n int64) []float64 {
	e := &evaluator{placeholders: matvecInputs(A, W)}
	values := make([]float64, n)
	for i := int64(0); i < n; i++ {
		values[i] = e.tensorAt(out, []int64{i})
	}
	return values
}

// outputValues evaluates the schedule's output stage over [0, n).
func outputValues(t *testing.T, sch *Schedule, A, W ir.Tensor, n int64) []float64 {
	t.Helper()
	var outStage *Stage
	for _, s := range sch.Stages {
		if s.IsOutput {
			outStage = s
		}
	}
	require.NotNil(t, outStage)
	e := &evaluator{placeholders: matvecInputs(A, W)}
	out := make([]float64, n)
	for i := int64(0); i < n; i++ {
		out[i] = e.tensorAt(outStage.Op.Output(0), []int64{i})
	}
	return out
}

func TestCacheReadThenCacheWrite_PreservesValues(t *testing.T) {
	t.Parallel()

	A, W, B := matvec()
	reference := referenceValues(A, W, B, 4)

	sch := Create(B.Op)
	_, err := sch.CacheRead(A, "shared", []ir.Operation{B.Op})
	require.NoError(t, err)
	_, err = sch.CacheWrite(B, "local")
	require.NoError(t, err)

	got := outputValues(t, sch, A, W, 4)
	require.Equal(t, reference, got)
}

func TestRfactor_PreservesValues(t *testing.T) {
	t.Parallel()

	A, W, B := matvec()
	reference := referenceValues(A, W, B, 4)

	sch := Create(B.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	k := bStage.LeafIterVars[1]
	_, ki, err := bStage.Split(k, ir.IntConst(4))
	require.NoError(t, err)
	_, err = sch.Rfactor(B, ki, 0)
	require.NoError(t, err)

	got := outputValues(t, sch, A, W, 4)
	require.Equal(t, reference, got)
}

func TestInjectInline_PreservesValues(t *testing.T) {
	t.Parallel()

	A, W, B := matvec()
	reference := referenceValues(A, W, B, 4)

	C := ir.Compute(ir.Shape(4), func(vars []*ir.Var) ir.Expr {
		return &ir.Mul{A: B.Access(vars[0]), B: &ir.FloatImm{T: ir.Float32, Value: 1}}
	}, "C")
	sch := Create(C.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	require.NoError(t, bStage.ComputeInline())
	require.NoError(t, InjectInline(sch))

	got := outputValues(t, sch, A, W, 4)
	require.Equal(t, reference, got)
}
