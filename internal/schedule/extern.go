package schedule

import (
	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// ReuseAt introduces a reuse buffer for target inside the body of the
// parent extern stage, at the loop over axis. The concrete line buffer is
// materialized during lowering; the reuse stage only declares the
// dependency.
func (sch *Schedule) ReuseAt(target ir.Tensor, parent *Stage, axis *ir.IterVar, reuseName string) (ir.Tensor, error) {
	sch.InvalidateCache()
	op, ok := parent.Op.(*ir.ExternOp)
	if !ok {
		return ir.Tensor{}, scherrors.NewValidationError("reuse_at", "parent must be an extern stage", nil)
	}
	var targetBuf *ir.Buffer
	for i, in := range op.Inputs() {
		if in == target {
			targetBuf = op.InputPlaceholders()[i]
			break
		}
	}
	if targetBuf == nil {
		return ir.Tensor{}, scherrors.NewReuseNotInputError(target.Name(), parent.Name())
	}
	// The reuse buffer shape is resolved by later analysis.
	reuseOutBuf := ir.NewBuffer(target.Dtype(), nil, reuseName)

	found := false
	newBody := ir.MutateStmt(op.Body(), nil, func(s ir.Stmt) ir.Stmt {
		loop, ok := s.(*ir.For)
		if !ok || loop.LoopVar != axis.Var {
			return s
		}
		found = true
		var marked ir.Stmt
		if attr, ok := loop.Body.(*ir.AttrStmt); ok {
			inner := &ir.AttrStmt{
				Node:    reuseOutBuf.Data,
				AttrKey: "attach_scope",
				Value:   &ir.StringImm{Value: op.Name()},
				Body:    attr.Body,
			}
			marked = &ir.AttrStmt{Node: attr.Node, AttrKey: attr.AttrKey, Value: attr.Value, Body: inner}
		} else {
			marked = &ir.AttrStmt{
				Node:    reuseOutBuf.Data,
				AttrKey: "attach_scope",
				Value:   &ir.StringImm{Value: op.Name()},
				Body:    loop.Body,
			}
		}
		return &ir.For{
			LoopVar: loop.LoopVar, Min: loop.Min, Extent: loop.Extent,
			ForType: loop.ForType, DeviceAPI: loop.DeviceAPI,
			Body:           &ir.Reuse{BufferVar: targetBuf.Data, Body: marked},
			AnnotateKeys:   loop.AnnotateKeys,
			AnnotateValues: loop.AnnotateValues,
		}
	})
	if !found {
		return ir.Tensor{}, scherrors.NewReuseBadParentShapeError(parent.Name(), axis.String())
	}

	reuseOp := ir.NewExternOp(reuseName, "", nil,
		[]ir.Tensor{target}, []*ir.Buffer{targetBuf}, []*ir.Buffer{reuseOutBuf},
		&ir.Evaluate{Value: ir.IntConst(0)})
	reuseTensor := reuseOp.Output(0)

	newInputs := append(append([]ir.Tensor(nil), op.Inputs()...), reuseTensor)
	newInputPlaceholders := append(append([]*ir.Buffer(nil), op.InputPlaceholders()...), reuseOutBuf)
	parent.Op = ir.NewExternOp(op.Name(), op.OpTag(), op.Axis(),
		newInputs, newInputPlaceholders, op.OutputPlaceholders(), newBody)

	pos := sch.stageIndex(parent)
	reuseStage := NewStage(reuseOp)
	sch.insertStage(pos, reuseStage)
	sch.StageMap[reuseOp] = reuseStage
	sch.StageBuffMap[reuseOutBuf] = reuseStage
	sch.log.Debug("reuse_at inserted reuse stage", "target", target.Name(), "parent", parent.Name())
	return reuseTensor, nil
}

// Partition introduces an array partition directive for the target buffer
// as its own extern stage and threads the partition result into every
// consumer.
func (sch *Schedule) Partition(target ir.Tensor, dim, factor int, partitionType ir.PartitionType) (ir.Tensor, error) {
	sch.InvalidateCache()
	targetStage, err := sch.StageFor(target.Op)
	if err != nil {
		return ir.Tensor{}, err
	}
	_, isPlaceholder := target.Op.(*ir.PlaceholderOp)

	var consumers []*Stage
	var targetBuffer *ir.Buffer
	minPos := 0
	if isPlaceholder {
		for _, s := range sch.Stages {
			extern, ok := s.Op.(*ir.ExternOp)
			if !ok {
				continue
			}
			for j, in := range extern.Inputs() {
				if in == target {
					targetBuffer = extern.InputPlaceholders()[j]
					consumers = append(consumers, s)
					break
				}
			}
		}
		if targetBuffer == nil {
			// A placeholder with no extern consumer still gets a
			// standalone partition stage.
			targetBuffer = ir.NewBuffer(target.Dtype(), target.Shape(), target.Op.Name())
		}
	} else {
		extern, ok := targetStage.Op.(*ir.ExternOp)
		if !ok {
			return ir.Tensor{}, scherrors.NewValidationError("partition", "target must be a placeholder or extern stage", nil)
		}
		minPos = sch.stageIndex(targetStage)
		targetBuffer = extern.OutputPlaceholders()[0]
		consumers = append(consumers, targetStage)
	}

	body := &ir.Partition{
		BufferVar: targetBuffer.Data, Dim: dim, Factor: factor, PartitionType: partitionType,
	}
	partitionName := targetBuffer.Name + ".partitioned"
	partitionBuffer := ir.NewBuffer(ir.Int32, nil, partitionName)
	var partitionInputs []ir.Tensor
	var partitionInputPlaceholders []*ir.Buffer
	if isPlaceholder {
		partitionInputs = append(partitionInputs, target)
		partitionInputPlaceholders = append(partitionInputPlaceholders, targetBuffer)
	}
	partitionOp := ir.NewExternOp(partitionName, "", nil,
		partitionInputs, partitionInputPlaceholders, []*ir.Buffer{partitionBuffer}, body)
	partitionTensor := partitionOp.Output(0)

	partitionStage := NewStage(partitionOp)
	sch.insertStage(minPos, partitionStage)
	sch.StageMap[partitionOp] = partitionStage
	sch.StageBuffMap[partitionBuffer] = partitionStage

	// Every consumer gains the partition result as its first input; a
	// non-placeholder target also scopes its body to the target buffer.
	for _, s := range consumers {
		extern := s.Op.(*ir.ExternOp)
		newInputs := append([]ir.Tensor{partitionTensor}, extern.Inputs()...)
		newPlaceholders := append([]*ir.Buffer{partitionBuffer}, extern.InputPlaceholders()...)
		newBody := extern.Body()
		if !isPlaceholder {
			newBody = &ir.AttrStmt{
				Node:    partitionBuffer.Data,
				AttrKey: "attach_scope",
				Value:   &ir.StringImm{Value: targetBuffer.Name},
				Body:    extern.Body(),
			}
		}
		s.Op = ir.NewExternOp(extern.Name(), extern.OpTag(), extern.Axis(),
			newInputs, newPlaceholders, extern.OutputPlaceholders(), newBody)
	}
	sch.log.Debug("partition inserted stage",
		"target", target.Name(), "dim", dim, "factor", factor, "type", partitionType.String())
	return partitionTensor, nil
}

// Reshape mutates the output buffer shape of the target extern stage in
// place. Reshaping placeholders is not supported.
func (sch *Schedule) Reshape(target ir.Tensor, newShape []ir.Expr) error {
	targetStage, err := sch.StageFor(target.Op)
	if err != nil {
		return err
	}
	extern, ok := targetStage.Op.(*ir.ExternOp)
	if !ok {
		return scherrors.NewValidationError("reshape", "reshape target must be an extern stage, placeholders are not supported", nil)
	}
	buf := extern.OutputPlaceholders()[0]
	if oldN, ok := constProduct(buf.Shape); ok {
		if newN, ok := constProduct(newShape); ok && oldN != newN {
			return scherrors.NewValidationError("reshape", "new shape has a different number of elements", nil)
		}
	}
	buf.Shape = newShape
	return nil
}

func constProduct(shape []ir.Expr) (int64, bool) {
	n := int64(1)
	for _, d := range shape {
		v, ok := ir.ConstInt(d)
		if !ok {
			return 0, false
		}
		n *= v
	}
	return n, true
}
