package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// externConsumer builds an extern stage reading in through a two-level loop
// nest. The returned axes correspond to the loops, outermost first.
func externConsumer(name string, in ir.Tensor) (ir.Tensor, []*ir.IterVar) {
	inBuf := ir.NewBuffer(in.Dtype(), in.Shape(), in.Name()+".buf")
	outBuf := ir.NewBuffer(in.Dtype(), in.Shape(), name+".out")
	i := ir.NewIterVar(ir.RangeFromExtent(ir.IntConst(8)), "i", ir.DataPar)
	j := ir.NewIterVar(ir.RangeFromExtent(ir.IntConst(8)), "j", ir.DataPar)
	store := &ir.Store{
		BufferVar: outBuf.Data,
		Value:     ir.IntConst(0),
		Index:     &ir.Add{A: &ir.Mul{A: i.Var, B: ir.IntConst(8)}, B: j.Var},
		Predicate: ir.ConstTrue(),
	}
	body := &ir.For{
		LoopVar: i.Var, Min: ir.IntConst(0), Extent: ir.IntConst(8),
		Body: &ir.For{
			LoopVar: j.Var, Min: ir.IntConst(0), Extent: ir.IntConst(8),
			Body: &ir.AttrStmt{
				Node:    outBuf.Data,
				AttrKey: "extern_scope",
				Value:   ir.IntConst(0),
				Body:    store,
			},
		},
	}
	op := ir.NewExternOp(name, "", []*ir.IterVar{i, j},
		[]ir.Tensor{in}, []*ir.Buffer{inBuf}, []*ir.Buffer{outBuf}, body)
	return op.Output(0), []*ir.IterVar{i, j}
}

func TestReuseAt_InsertsReuseStage(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out, axes := externConsumer("blur", A)
	sch := Create(out.Op)
	parent, err := sch.StageFor(out.Op)
	require.NoError(t, err)

	reuse, err := sch.ReuseAt(A, parent, axes[1], "A.reuse")
	require.NoError(t, err)
	require.Equal(t, "A.reuse", reuse.Op.Name())

	// The reuse stage sits right before the parent.
	require.Len(t, sch.Stages, 3)
	require.Same(t, reuse.Op, sch.Stages[1].Op)

	// The parent gained the reuse tensor as an input.
	extern := parent.Op.(*ir.ExternOp)
	require.Len(t, extern.Inputs(), 2)
	require.Equal(t, reuse, extern.Inputs()[1])

	// The loop over the reuse axis is wrapped with the reuse marker.
	outer, ok := extern.Body().(*ir.For)
	require.True(t, ok)
	inner, ok := outer.Body.(*ir.For)
	require.True(t, ok)
	marker, ok := inner.Body.(*ir.Reuse)
	require.True(t, ok)
	attr, ok := marker.Body.(*ir.AttrStmt)
	require.True(t, ok)
	require.Equal(t, "extern_scope", attr.AttrKey)
	attach, ok := attr.Body.(*ir.AttrStmt)
	require.True(t, ok)
	require.Equal(t, "attach_scope", attach.AttrKey)
}

func TestReuseAt_TargetNotInputFails(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	B := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "B")
	out, axes := externConsumer("blur", A)
	sch := Create(out.Op)
	parent, err := sch.StageFor(out.Op)
	require.NoError(t, err)

	_, err = sch.ReuseAt(B, parent, axes[0], "B.reuse")
	var notInput *scherrors.ReuseNotInputError
	require.ErrorAs(t, err, &notInput)
}

func TestReuseAt_MissingLoopFails(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out, _ := externConsumer("blur", A)
	sch := Create(out.Op)
	parent, err := sch.StageFor(out.Op)
	require.NoError(t, err)

	foreign := ir.NewIterVar(ir.RangeFromExtent(ir.IntConst(4)), "z", ir.DataPar)
	_, err = sch.ReuseAt(A, parent, foreign, "A.reuse")
	var badShape *scherrors.ReuseBadParentShapeError
	require.ErrorAs(t, err, &badShape)
}

func TestPartition_PlaceholderWithTwoConsumers(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out1, _ := externConsumer("c1", A)
	out2, _ := externConsumer("c2", A)
	sch := Create(out1.Op, out2.Op)

	part, err := sch.Partition(A, 0, 4, ir.PartitionComplete)
	require.NoError(t, err)

	// The partition stage lands at position zero.
	require.Same(t, part.Op, sch.Stages[0].Op)

	// Both consumers gained the partition tensor as their first input.
	for _, name := range []string{"c1", "c2"} {
		var stage *Stage
		for _, s := range sch.Stages {
			if s.Name() == name {
				stage = s
			}
		}
		require.NotNil(t, stage)
		extern := stage.Op.(*ir.ExternOp)
		require.Len(t, extern.Inputs(), 2)
		require.Equal(t, part, extern.Inputs()[0])
	}

	// The partition body carries the directive verbatim.
	partExtern := part.Op.(*ir.ExternOp)
	directive, ok := partExtern.Body().(*ir.Partition)
	require.True(t, ok)
	require.Equal(t, 0, directive.Dim)
	require.Equal(t, 4, directive.Factor)
	require.Equal(t, ir.PartitionComplete, directive.PartitionType)
}

func TestPartition_PlaceholderWithoutConsumersSucceeds(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8), ir.Int32, "A")
	sch := Create(A.Op)

	part, err := sch.Partition(A, 0, 2, ir.PartitionCyclic)
	require.NoError(t, err)
	require.Len(t, sch.Stages, 2)
	require.Same(t, part.Op, sch.Stages[0].Op)
}

func TestPartition_InternalStageScopesBody(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out, _ := externConsumer("c1", A)
	sch := Create(out.Op)
	target, err := sch.StageFor(out.Op)
	require.NoError(t, err)
	targetPos := sch.stageIndex(target)

	part, err := sch.Partition(out, 1, 2, ir.PartitionBlock)
	require.NoError(t, err)

	// The partition stage is inserted right before the target.
	require.Same(t, part.Op, sch.Stages[targetPos].Op)

	extern := target.Op.(*ir.ExternOp)
	require.Equal(t, part, extern.Inputs()[0])
	attr, ok := extern.Body().(*ir.AttrStmt)
	require.True(t, ok)
	require.Equal(t, "attach_scope", attr.AttrKey)
}

func TestReshape_MutatesOutputBuffer(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out, _ := externConsumer("c1", A)
	sch := Create(out.Op)

	require.NoError(t, sch.Reshape(out, ir.Shape(4, 16)))
	extern, err := sch.StageFor(out.Op)
	require.NoError(t, err)
	buf := extern.Op.(*ir.ExternOp).OutputPlaceholders()[0]
	n, ok := constProduct(buf.Shape)
	require.True(t, ok)
	require.Equal(t, int64(64), n)
	require.Len(t, buf.Shape, 2)
	first, ok := ir.ConstInt(buf.Shape[0])
	require.True(t, ok)
	require.Equal(t, int64(4), first)
}

func TestReshape_RejectsPlaceholderAndBadSize(t *testing.T) {
	t.Parallel()

	A := ir.Placeholder(ir.Shape(8, 8), ir.Int32, "A")
	out, _ := externConsumer("c1", A)
	sch := Create(out.Op)

	require.Error(t, sch.Reshape(A, ir.Shape(64)))
	require.Error(t, sch.Reshape(out, ir.Shape(3, 3)))
}
