package plan

import (
	"fmt"

	"github.com/JThr3e/heterocl/internal/ir"
	"github.com/JThr3e/heterocl/internal/schedule"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// Apply runs every primitive of the plan against the schedule, in order.
func Apply(sch *schedule.Schedule, p *Plan) error {
	for i := range p.Primitives {
		if err := applyPrimitive(sch, &p.Primitives[i]); err != nil {
			return fmt.Errorf("primitive %d (%s): %w", i, p.Primitives[i].Op, err)
		}
	}
	return nil
}

func findStage(sch *schedule.Schedule, name string) (*schedule.Stage, error) {
	for _, s := range sch.Stages {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, scherrors.NewValidationError("stage", "unknown stage "+name, nil)
}

func findTensor(sch *schedule.Schedule, name string) (ir.Tensor, error) {
	for _, s := range sch.Stages {
		if s.Op == nil {
			continue
		}
		for i := 0; i < s.Op.NumOutputs(); i++ {
			t := s.Op.Output(i)
			if t.Name() == name {
				return t, nil
			}
		}
	}
	return ir.Tensor{}, scherrors.NewValidationError("tensor", "unknown tensor "+name, nil)
}

func findAxis(s *schedule.Stage, name string) (*ir.IterVar, error) {
	for _, iv := range s.LeafIterVars {
		if iv.Var.Name == name {
			return iv, nil
		}
	}
	return nil, scherrors.NewUnknownIterVarError(s.Name(), name)
}

func findAxes(s *schedule.Stage, names []string) ([]*ir.IterVar, error) {
	out := make([]*ir.IterVar, len(names))
	for i, name := range names {
		iv, err := findAxis(s, name)
		if err != nil {
			return nil, err
		}
		out[i] = iv
	}
	return out, nil
}

func partitionType(name string) ir.PartitionType {
	switch name {
	case "block":
		return ir.PartitionBlock
	case "cyclic":
		return ir.PartitionCyclic
	default:
		return ir.PartitionComplete
	}
}

func applyPrimitive(sch *schedule.Schedule, prim *Primitive) error {
	switch prim.Op {
	case "split":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		_, _, err = s.Split(axis, ir.IntConst(int64(prim.Factor)))
		return err
	case "split_by_nparts":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		_, _, err = s.SplitByNParts(axis, ir.IntConst(int64(prim.NParts)))
		return err
	case "fuse":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axes, err := findAxes(s, prim.Axes)
		if err != nil {
			return err
		}
		for len(axes) > 1 {
			fused, err := s.FuseAxes(axes[0], axes[1])
			if err != nil {
				return err
			}
			axes = append([]*ir.IterVar{fused}, axes[2:]...)
		}
		return nil
	case "reorder":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axes, err := findAxes(s, prim.Axes)
		if err != nil {
			return err
		}
		return s.ReorderAxes(axes...)
	case "tile":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axes, err := findAxes(s, prim.Axes)
		if err != nil {
			return err
		}
		_, _, _, _, err = s.Tile(axes[0], axes[1],
			ir.IntConst(int64(prim.XFactor)), ir.IntConst(int64(prim.YFactor)))
		return err
	case "compute_at":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		parent, err := findStage(sch, prim.Parent)
		if err != nil {
			return err
		}
		axis, err := findAxis(parent, prim.Axis)
		if err != nil {
			return err
		}
		return s.ComputeAt(parent, axis)
	case "compute_inline":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		return s.ComputeInline()
	case "compute_root":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		s.ComputeRoot()
		return nil
	case "bind":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		thread := ir.ThreadAxis(axis.Dom, prim.Thread)
		return s.Bind(axis, thread)
	case "vectorize":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		return s.Vectorize(axis)
	case "unroll":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		if prim.Factor > 0 {
			return s.UnrollWithFactor(axis, ir.IntConst(int64(prim.Factor)))
		}
		return s.Unroll(axis)
	case "parallel":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		return s.Parallel(axis)
	case "pipeline":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		ii := prim.InitiationInterval
		if ii == 0 {
			ii = 1
		}
		return s.Pipeline(axis, ir.IntConst(int64(ii)))
	case "pragma":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		return s.Pragma(axis, prim.Pragma)
	case "storage_align":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		return s.StorageAlign(axis, prim.AlignFactor, prim.AlignOffset)
	case "double_buffer":
		s, err := findStage(sch, prim.Stage)
		if err != nil {
			return err
		}
		s.SetDoubleBuffer()
		return nil
	case "cache_read":
		tensor, err := findTensor(sch, prim.Tensor)
		if err != nil {
			return err
		}
		readers := make([]ir.Operation, len(prim.Readers))
		for i, name := range prim.Readers {
			rs, err := findStage(sch, name)
			if err != nil {
				return err
			}
			readers[i] = rs.Op
		}
		_, err = sch.CacheRead(tensor, prim.Scope, readers)
		return err
	case "cache_write":
		tensor, err := findTensor(sch, prim.Tensor)
		if err != nil {
			return err
		}
		_, err = sch.CacheWrite(tensor, prim.Scope)
		return err
	case "rfactor":
		tensor, err := findTensor(sch, prim.Tensor)
		if err != nil {
			return err
		}
		s, err := sch.StageForTensor(tensor)
		if err != nil {
			return err
		}
		axis, err := findAxis(s, prim.Axis)
		if err != nil {
			return err
		}
		factorAxis := 0
		if prim.FactorAxis != nil {
			factorAxis = *prim.FactorAxis
		}
		_, err = sch.Rfactor(tensor, axis, factorAxis)
		return err
	case "partition":
		tensor, err := findTensor(sch, prim.Tensor)
		if err != nil {
			return err
		}
		_, err = sch.Partition(tensor, prim.Dim, prim.Factor, partitionType(prim.PartitionType))
		return err
	case "reshape":
		tensor, err := findTensor(sch, prim.Tensor)
		if err != nil {
			return err
		}
		return sch.Reshape(tensor, ir.Shape(prim.Shape...))
	default:
		return scherrors.NewValidationError("op", "unknown primitive "+prim.Op, nil)
	}
}
