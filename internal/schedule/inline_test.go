package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

func TestInjectInline_FoldsProducerIntoConsumer(t *testing.T) {
	t.Parallel()

	A, B, C := elemwiseChain()
	sch := Create(C.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	require.NoError(t, bStage.ComputeInline())

	require.NoError(t, InjectInline(sch))

	require.Equal(t, AttachInlinedAlready, bStage.AttachType)
	cStage := sch.Stages[2]
	// C now reads A directly: (A[i]+1)*2.
	inputs := cStage.Op.InputTensors()
	require.Len(t, inputs, 1)
	require.Equal(t, A, inputs[0])
	body := cStage.Op.(*ir.ComputeOp).Body()[0]
	prod, ok := body.(*ir.Mul)
	require.True(t, ok)
	sum, ok := prod.A.(*ir.Add)
	require.True(t, ok)
	read, ok := sum.A.(*ir.Call)
	require.True(t, ok)
	require.Same(t, A.Op, read.Func)
}

func TestInjectInline_IntoReduction(t *testing.T) {
	t.Parallel()

	X := ir.Placeholder(ir.Shape(8), ir.Float32, "X")
	T := ir.Compute(ir.Shape(8), func(vars []*ir.Var) ir.Expr {
		return &ir.Mul{A: &ir.FloatImm{T: ir.Float32, Value: 2}, B: X.Access(vars[0])}
	}, "T")
	k := ir.ReduceAxis(ir.RangeFromExtent(ir.IntConst(8)), "k")
	S := ir.Compute(nil, func(vars []*ir.Var) ir.Expr {
		return ir.Sum(T.Access(k.Var), k)
	}, "S")
	sch := Create(S.Op)
	tStage, err := sch.StageFor(T.Op)
	require.NoError(t, err)
	require.NoError(t, tStage.ComputeInline())

	require.NoError(t, InjectInline(sch))

	require.Equal(t, AttachInlinedAlready, tStage.AttachType)
	sStage, err := sch.StageFor(S.Op)
	require.NoError(t, err)
	// The reduction source became 2*X[k]; no reference to T remains.
	inputs := sStage.Op.InputTensors()
	require.Len(t, inputs, 1)
	require.Equal(t, X, inputs[0])
	reduce, ok := sStage.Op.(*ir.ComputeOp).Body()[0].(*ir.Reduce)
	require.True(t, ok)
	prod, ok := reduce.Source[0].(*ir.Mul)
	require.True(t, ok)
	read, ok := prod.B.(*ir.Call)
	require.True(t, ok)
	require.Same(t, X.Op, read.Func)
	require.Same(t, ir.Expr(k.Var), read.Args[0])
}

func TestInjectInline_IsIdempotent(t *testing.T) {
	t.Parallel()

	_, B, C := elemwiseChain()
	sch := Create(C.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	require.NoError(t, bStage.ComputeInline())

	require.NoError(t, InjectInline(sch))
	opAfterFirst := sch.Stages[2].Op
	require.NoError(t, InjectInline(sch))
	require.Same(t, opAfterFirst, sch.Stages[2].Op)
}

func TestInjectInline_ChainsThroughInlinedStages(t *testing.T) {
	t.Parallel()

	A, B, C := elemwiseChain()
	D := ir.Compute(ir.Shape(16), func(vars []*ir.Var) ir.Expr {
		return &ir.Add{A: C.Access(vars[0]), B: &ir.FloatImm{T: ir.Float32, Value: 5}}
	}, "D")
	sch := Create(D.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	cStage, err := sch.StageFor(C.Op)
	require.NoError(t, err)
	require.NoError(t, bStage.ComputeInline())
	require.NoError(t, cStage.ComputeInline())

	require.NoError(t, InjectInline(sch))

	dStage, err := sch.StageFor(D.Op)
	require.NoError(t, err)
	inputs := dStage.Op.InputTensors()
	require.Len(t, inputs, 1)
	require.Equal(t, A, inputs[0])
}

func TestNormalize_ReturnsCopyAndKeepsSource(t *testing.T) {
	t.Parallel()

	_, B, C := elemwiseChain()
	sch := Create(C.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	require.NoError(t, bStage.ComputeInline())

	sn, err := sch.Normalize()
	require.NoError(t, err)
	require.NotSame(t, sch, sn)

	// The source schedule still has the inline mark pending.
	require.Equal(t, AttachInline, bStage.AttachType)
	bNorm, err := sn.StageFor(B.Op)
	require.NoError(t, err)
	require.Equal(t, AttachInlinedAlready, bNorm.AttachType)
	require.Len(t, sn.Stages[2].Op.InputTensors(), 1)
}

func TestNormalizeWithRebase_RebasesRootLeaves(t *testing.T) {
	t.Parallel()

	_, _, C := elemwiseChain()
	sch := Create(C.Op)

	sn, err := sch.NormalizeWithRebase()
	require.NoError(t, err)

	cStage, err := sn.StageFor(C.Op)
	require.NoError(t, err)
	require.Len(t, cStage.Relations, 1)
	_, ok := cStage.Relations[0].(*Rebase)
	require.True(t, ok)
	// The leaf is now the rebased variable, not the root.
	root := cStage.Op.RootIterVars()[0]
	require.NotSame(t, root, cStage.LeafIterVars[0])
}

func TestRebase_RemapsAttachPoints(t *testing.T) {
	t.Parallel()

	_, B, C := elemwiseChain()
	sch := Create(C.Op)
	bStage, err := sch.StageFor(B.Op)
	require.NoError(t, err)
	cStage, err := sch.StageFor(C.Op)
	require.NoError(t, err)
	scope := cStage.LeafIterVars[0]
	require.NoError(t, bStage.ComputeAt(cStage, scope))

	RebaseNonZeroMinLoop(sch)

	require.NotSame(t, scope, bStage.AttachIVar)
	orig, ok := sch.ExternIterVarMap[bStage.AttachIVar]
	require.True(t, ok)
	require.Same(t, scope, orig)
}

func TestInjectInline_InconsistentReduceFails(t *testing.T) {
	t.Parallel()

	X := ir.Placeholder(ir.Shape(8), ir.Float32, "X")
	T := ir.Compute(ir.Shape(8), func(vars []*ir.Var) ir.Expr {
		return &ir.Mul{A: &ir.FloatImm{T: ir.Float32, Value: 2}, B: X.Access(vars[0])}
	}, "T")
	// Two reductions over T that disagree on their axes.
	k1 := ir.ReduceAxis(ir.RangeFromExtent(ir.IntConst(8)), "k1")
	k2 := ir.ReduceAxis(ir.RangeFromExtent(ir.IntConst(8)), "k2")
	bad := ir.NewComputeOp("bad", "", nil, []ir.Expr{
		ir.Sum(T.Access(k1.Var), k1),
		ir.Sum(T.Access(k2.Var), k2),
	})
	sch := Create(bad)
	tStage, err := sch.StageFor(T.Op)
	require.NoError(t, err)
	require.NoError(t, tStage.ComputeInline())

	err = InjectInline(sch)
	var inconsistent *scherrors.InconsistentReduceError
	require.ErrorAs(t, err, &inconsistent)
}
