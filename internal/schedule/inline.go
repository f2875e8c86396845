package schedule

import (
	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// reduceEqual compares two Reduce bodies up to value index. Arrays compare
// by identity, matching the sharing discipline of multi-output reductions.
func reduceEqual(a, b *ir.Reduce) bool {
	if a.Combiner != b.Combiner || a.Condition != b.Condition {
		return false
	}
	if len(a.Source) != len(b.Source) || len(a.Axis) != len(b.Axis) {
		return false
	}
	for i := range a.Source {
		if a.Source[i] != b.Source[i] {
			return false
		}
	}
	for i := range a.Axis {
		if a.Axis[i] != b.Axis[i] {
			return false
		}
	}
	return true
}

// InjectInline folds every stage marked Inline into its consumers and
// rewrites the dataflow so the replacements propagate. Inlined stages stay
// in the schedule as InlinedAlready.
func InjectInline(sch *Schedule) error {
	sch.InvalidateCache()
	newBody := make([][]ir.Expr, len(sch.Stages))
	changed := make([]bool, len(sch.Stages))
	var inlined []*Stage

	for i := len(sch.Stages); i > 0; i-- {
		stage := sch.Stages[i-1]
		if stage.AttachType != AttachInline {
			continue
		}
		compute, ok := stage.Op.(*ir.ComputeOp)
		if !ok {
			return scherrors.NewInlineNotComputeError(stage.Name(), "can only inline compute operations")
		}
		if len(compute.Body()) != 1 {
			return scherrors.NewInlineNotComputeError(stage.Name(), "can only inline compute operations with one output")
		}
		inlined = append(inlined, stage)
		args := make([]*ir.Var, len(compute.Axis()))
		for k, iv := range compute.Axis() {
			args[k] = iv.Var
		}
		body := compute.Body()[0]

		for j := i; j < len(sch.Stages); j++ {
			s := sch.Stages[j]
			consumer, ok := s.Op.(*ir.ComputeOp)
			if !ok {
				continue
			}
			if newBody[j] == nil {
				newBody[j] = consumer.Body()
			}
			if reduce, isReduce := newBody[j][0].(*ir.Reduce); isReduce {
				// Multi-output reductions must agree on everything but
				// the value index, so the body is inlined once and the
				// results rebuilt per output.
				for k := 1; k < len(newBody[j]); k++ {
					other, ok := newBody[j][k].(*ir.Reduce)
					if !ok || !reduceEqual(other, reduce) {
						return scherrors.NewInconsistentReduceError(s.Name())
					}
				}
				newValue := ir.InlineCall(newBody[j][0], stage.Op, args, body)
				if newValue != newBody[j][0] {
					changed[j] = true
					r, ok := newValue.(*ir.Reduce)
					if !ok || len(r.Source) != len(newBody[j]) {
						return scherrors.NewInconsistentReduceError(s.Name())
					}
					rebuilt := make([]ir.Expr, len(newBody[j]))
					for k := range newBody[j] {
						rebuilt[k] = &ir.Reduce{
							Combiner:   r.Combiner,
							Source:     r.Source,
							Axis:       r.Axis,
							Condition:  r.Condition,
							ValueIndex: k,
						}
					}
					newBody[j] = rebuilt
				}
			} else {
				for k := range newBody[j] {
					newValue := ir.InlineCall(newBody[j][k], stage.Op, args, body)
					if newValue != newBody[j][k] {
						rebuilt := append([]ir.Expr(nil), newBody[j]...)
						rebuilt[k] = newValue
						newBody[j] = rebuilt
						changed[j] = true
					}
				}
			}
		}
	}
	for _, stage := range inlined {
		stage.AttachType = AttachInlinedAlready
	}

	// Rewrite dataflow with the inlined bodies.
	repl := make(map[ir.Tensor]ir.Tensor)
	for i, s := range sch.Stages {
		if s.AttachType == AttachInlinedAlready {
			continue
		}
		if newBody[i] != nil {
			compute := s.Op.(*ir.ComputeOp)
			op := s.Op
			if changed[i] {
				op = ir.NewComputeOp(compute.Name(), compute.OpTag(), compute.Axis(), newBody[i])
			}
			op = op.ReplaceInputs(op, repl)
			if op != s.Op {
				for idx := 0; idx < s.Op.NumOutputs(); idx++ {
					repl[s.Op.Output(idx)] = op.Output(idx)
				}
				s.Op = op
			}
		} else if s.Op != nil {
			op := s.Op.ReplaceInputs(s.Op, repl)
			if op != s.Op {
				for idx := 0; idx < op.NumOutputs(); idx++ {
					repl[s.Op.Output(idx)] = op.Output(idx)
				}
				s.Op = op
			}
		}
	}
	return nil
}

// RebaseNonZeroMinLoop inserts a Rebase relation for every root leaf that
// is not thread bound, so every leaf domain starts at zero. Attach points
// referring to rebased variables are remapped, and the renaming is recorded
// in ExternIterVarMap for external consumers.
func RebaseNonZeroMinLoop(sch *Schedule) {
	rebaseMap := make(map[*ir.IterVar]*ir.IterVar)
	for _, s := range sch.Stages {
		if s.AttachType == AttachInlinedAlready || s.Op == nil {
			continue
		}
		for _, iv := range s.Op.RootIterVars() {
			idx := s.leafIndex(iv)
			if idx < 0 {
				continue
			}
			if attr, ok := s.IterVarAttrs[iv]; ok && attr.BindThread != nil {
				continue
			}
			rebased := &ir.IterVar{Var: iv.Var.CopyWithSuffix(""), IterType: iv.IterType}
			s.Relations = append(s.Relations, &Rebase{Parent: iv, Rebased: rebased})
			s.AllIterVars = append(s.AllIterVars, rebased)
			if attr, ok := s.IterVarAttrs[iv]; ok {
				s.updateAttr(rebased, func(a *IterVarAttr) { *a = *attr })
			}
			s.LeafIterVars[idx] = rebased
			rebaseMap[iv] = rebased
		}
	}
	remap := func(s *Stage) {
		if s.AttachType != AttachScope {
			return
		}
		if rebased, ok := rebaseMap[s.AttachIVar]; ok {
			sch.ExternIterVarMap[rebased] = s.AttachIVar
			s.AttachIVar = rebased
		}
	}
	for _, s := range sch.Stages {
		remap(s)
	}
	for _, g := range sch.Groups {
		remap(g)
	}
}

// Normalize copies the schedule and folds the inline stages into their
// consumers. Rebasing of non-zero-min loops is a separate opt-in pass; see
// NormalizeWithRebase.
func (sch *Schedule) Normalize() (*Schedule, error) {
	sn := sch.Copy()
	if err := InjectInline(sn); err != nil {
		return nil, err
	}
	return sn, nil
}

// NormalizeWithRebase normalizes and additionally rebases every root leaf
// domain to start at zero.
func (sch *Schedule) NormalizeWithRebase() (*Schedule, error) {
	sn, err := sch.Normalize()
	if err != nil {
		return nil, err
	}
	RebaseNonZeroMinLoop(sn)
	return sn, nil
}
