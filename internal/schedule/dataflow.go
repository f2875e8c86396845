package schedule

import (
	"fmt"

	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// ReplaceDataFlow rewires every stage whose operation reads a tensor in
// vmap. Renamed outputs are added to vmap so downstream stages chain the
// replacement.
func ReplaceDataFlow(stages []*Stage, vmap map[ir.Tensor]ir.Tensor) {
	for _, s := range stages {
		if s.Op == nil {
			continue
		}
		op := s.Op.ReplaceInputs(s.Op, vmap)
		if op != s.Op {
			for i := 0; i < op.NumOutputs(); i++ {
				vmap[s.Op.Output(i)] = op.Output(i)
			}
			s.Op = op
		}
	}
}

// injectPredicate guards body with the conjunction of predicates. A Reduce
// body absorbs the predicates into its condition; any other body is wrapped
// in a Select against the zero of its type.
func injectPredicate(predicates []ir.Expr, body ir.Expr) ir.Expr {
	if len(predicates) == 0 {
		return body
	}
	cond := ir.FoldAnd(predicates)
	if reduce, ok := body.(*ir.Reduce); ok {
		return &ir.Reduce{
			Combiner:   reduce.Combiner,
			Source:     reduce.Source,
			Axis:       reduce.Axis,
			Condition:  ir.AndExpr(reduce.Condition, cond),
			ValueIndex: reduce.ValueIndex,
		}
	}
	return &ir.Select{Cond: cond, TrueValue: body, FalseValue: ir.MakeZero(body.Dtype())}
}

// CacheRead creates a cached copy of tensor in the given memory scope and
// redirects the readers to it. The cache stage is inserted right after the
// producing stage.
func (sch *Schedule) CacheRead(tensor ir.Tensor, scope string, readers []ir.Operation) (ir.Tensor, error) {
	sch.InvalidateCache()
	name := tensor.Op.Name()
	if tensor.Op.NumOutputs() != 1 {
		name = fmt.Sprintf("%s.v%d", name, tensor.ValueIndex)
	}
	name = name + "." + scope

	opStage, err := sch.StageFor(tensor.Op)
	if err != nil {
		return ir.Tensor{}, err
	}
	sugarTensor := opStage.Op.Output(tensor.ValueIndex)
	cache := ir.Compute(sugarTensor.Shape(), func(vars []*ir.Var) ir.Expr {
		indices := make([]ir.Expr, len(vars))
		for i, v := range vars {
			indices[i] = v
		}
		return sugarTensor.Access(indices...)
	}, name)

	vsub := map[ir.Tensor]ir.Tensor{sugarTensor: cache}
	// Stage the reader rewrites before committing anything, so a reader
	// that does not consume the tensor leaves the schedule untouched.
	readerStages := make([]*Stage, len(readers))
	replOps := make([]ir.Operation, len(readers))
	for i, reader := range readers {
		rs, err := sch.StageFor(reader)
		if err != nil {
			return ir.Tensor{}, err
		}
		repl := rs.Op.ReplaceInputs(rs.Op, vsub)
		if repl == rs.Op {
			return ir.Tensor{}, scherrors.NewUnknownConsumerError(tensor.Name(), rs.Name())
		}
		readerStages[i] = rs
		replOps[i] = repl
	}
	vmap := make(map[ir.Tensor]ir.Tensor)
	for i, rs := range readerStages {
		vmap[rs.Op.Output(0)] = replOps[i].Output(0)
		rs.Op = replOps[i]
	}
	ReplaceDataFlow(sch.Stages, vmap)

	pos := sch.stageIndex(opStage)
	cacheStage := NewStage(cache.Op)
	cacheStage.Scope = scope
	sch.insertStage(pos+1, cacheStage)
	sch.StageMap[cache.Op] = cacheStage
	inheritGroup(cacheStage, opStage)
	sch.log.Debug("cache_read inserted cache stage", "tensor", tensor.Name(), "scope", scope)
	return cache, nil
}

// CacheWrite creates a cache stage that takes over the body of the tensor's
// operation, laid out by the current leaf iteration order. The original
// operation is rewritten to copy from the cache.
func (sch *Schedule) CacheWrite(tensor ir.Tensor, scope string) (ir.Tensor, error) {
	sch.InvalidateCache()
	if _, ok := tensor.Op.(*ir.ComputeOp); !ok {
		return ir.Tensor{}, scherrors.NewCacheWriteError(tensor.Name(), "cache write only takes compute operations as writers")
	}
	if tensor.Op.NumOutputs() != 1 {
		return ir.Tensor{}, scherrors.NewCacheWriteError(tensor.Name(), "cache write only supports single output compute operations")
	}
	return sch.cacheWriteWithRelayout(tensor, scope)
}

func (sch *Schedule) cacheWriteWithRelayout(tensor ir.Tensor, scope string) (ir.Tensor, error) {
	origStage, err := sch.StageFor(tensor.Op)
	if err != nil {
		return ir.Tensor{}, err
	}
	// The stage op may have been replaced by earlier rewrites; relayout
	// works on the current body.
	compute, ok := origStage.Op.(*ir.ComputeOp)
	if !ok {
		return ir.Tensor{}, scherrors.NewCacheWriteError(tensor.Name(), "cache write only takes compute operations as writers")
	}
	redAxis := make(map[*ir.IterVar]bool, len(compute.ReduceAxis()))
	for _, iv := range compute.ReduceAxis() {
		redAxis[iv] = true
	}
	domMap := make(map[*ir.IterVar]*ir.Range)
	for _, iv := range compute.Axis() {
		domMap[iv] = iv.Dom
	}
	PassDownDomain(origStage, domMap, true)

	vsub := make(map[*ir.Var]ir.Expr)
	vsub2newvar := make(map[*ir.Var]ir.Expr)
	var newAxis []*ir.IterVar
	valueMap := make(map[*ir.IterVar]ir.Expr)
	for _, iv := range origStage.LeafIterVars {
		if redAxis[iv] {
			continue
		}
		if iv.IterType != ir.DataPar {
			return ir.Tensor{}, scherrors.NewCacheWriteError(tensor.Name(), "can only relayout data parallel dimensions")
		}
		dom := domMap[iv]
		newIV := &ir.IterVar{Dom: dom, Var: iv.Var.CopyWithSuffix(".c"), IterType: iv.IterType}
		newAxis = append(newAxis, newIV)
		if ir.IsOne(dom.Min) {
			valueMap[iv] = dom.Min
		} else {
			valueMap[iv] = iv.Var
			vsub2newvar[iv.Var] = newIV.Var
		}
	}
	skipBoundCheck := make(map[*ir.IterVar]bool, len(compute.ReduceAxis()))
	for _, iv := range compute.ReduceAxis() {
		skipBoundCheck[iv] = true
	}
	PassUpIndex(origStage, domMap, valueMap, true)
	predicates := MakeBoundCheck(origStage, domMap, valueMap, skipBoundCheck)
	for _, iv := range compute.Axis() {
		vsub[iv.Var] = valueMap[iv]
	}

	body := ir.Substitute(compute.Body()[tensor.ValueIndex], vsub)
	body = injectPredicate(predicates, body)
	body = ir.Substitute(body, vsub2newvar)

	// The reader indices express the original layout in terms of the
	// cache layout.
	var args []ir.Expr
	readerMap := make(map[*ir.IterVar]ir.Expr)
	for _, iv := range compute.Axis() {
		readerMap[iv] = iv.Var
	}
	PassDownIndex(origStage, domMap, readerMap, true)
	for _, iv := range origStage.LeafIterVars {
		if redAxis[iv] {
			continue
		}
		args = append(args, readerMap[iv])
	}

	cacheOp := ir.NewComputeOp(compute.Name()+"."+scope, compute.OpTag(), newAxis, []ir.Expr{body})
	cacheTensor := cacheOp.Output(0)
	origNewOp := ir.NewComputeOp(compute.Name(), compute.OpTag(), compute.Axis(),
		[]ir.Expr{cacheTensor.Access(args...)})

	vmap := map[ir.Tensor]ir.Tensor{origStage.Op.Output(0): origNewOp.Output(0)}
	ReplaceDataFlow(sch.Stages, vmap)

	origStage.Op = origNewOp
	origStage.AllIterVars = append([]*ir.IterVar(nil), origNewOp.RootIterVars()...)
	origStage.LeafIterVars = append([]*ir.IterVar(nil), origStage.AllIterVars...)
	origStage.Relations = nil
	pruneStaleAttrs(origStage)

	pos := sch.stageIndex(origStage)
	cacheStage := NewStage(cacheOp)
	cacheStage.Scope = scope
	sch.insertStage(pos, cacheStage)
	sch.StageMap[cacheOp] = cacheStage
	inheritGroup(cacheStage, origStage)
	sch.log.Debug("cache_write relayout committed", "tensor", tensor.Name(), "scope", scope)
	return cacheTensor, nil
}

// pruneStaleAttrs drops annotations keyed by iteration variables that are
// no longer part of the stage.
func pruneStaleAttrs(s *Stage) {
	if len(s.IterVarAttrs) == 0 {
		return
	}
	live := make(map[*ir.IterVar]bool, len(s.AllIterVars))
	for _, iv := range s.AllIterVars {
		live[iv] = true
	}
	for iv := range s.IterVarAttrs {
		if !live[iv] {
			delete(s.IterVarAttrs, iv)
		}
	}
}

// Rfactor moves the reduction axis out into a fresh data parallel axis of a
// factored intermediate tensor, then rewrites the original stage into a
// reduction over the factored results.
func (sch *Schedule) Rfactor(tensor ir.Tensor, axis *ir.IterVar, factorAxis int) ([]ir.Tensor, error) {
	sch.InvalidateCache()
	if axis.IterType != ir.CommReduce {
		return nil, scherrors.NewFactorAxisNotReductionError(axis.String(), axis.IterType.String())
	}
	reduceStage, err := sch.StageFor(tensor.Op)
	if err != nil {
		return nil, err
	}
	computeOp, ok := reduceStage.Op.(*ir.ComputeOp)
	if !ok {
		return nil, scherrors.NewFactorError(tensor.Name(), "can only factor compute operations")
	}
	if reduceStage.leafIndex(axis) < 0 {
		return nil, scherrors.NewUnknownIterVarError(reduceStage.Name(), axis.String())
	}

	// Mark every iteration variable influenced by the factored axis.
	touch := map[*ir.IterVar]bool{axis: true}
	PassUpBitMaskOr(reduceStage, touch, true)
	PassDownBitMaskOr(reduceStage, touch, true)

	skipBoundCheck := make(map[*ir.IterVar]bool)
	for _, iv := range computeOp.Axis() {
		if touch[iv] {
			return nil, scherrors.NewFactorTouchesDataParError(axis.String(), iv.String())
		}
		skipBoundCheck[iv] = true
	}
	domMap := make(map[*ir.IterVar]*ir.Range)
	for _, iv := range computeOp.ReduceAxis() {
		if touch[iv] {
			domMap[iv] = iv.Dom
		} else {
			skipBoundCheck[iv] = true
		}
	}
	PassDownDomain(reduceStage, domMap, true)
	valueMap := make(map[*ir.IterVar]ir.Expr)
	for _, iv := range reduceStage.LeafIterVars {
		if !touch[iv] {
			continue
		}
		dom := domMap[iv]
		if ir.IsOne(dom.Extent) {
			valueMap[iv] = dom.Min
		} else {
			valueMap[iv] = iv.Var
		}
	}
	PassUpIndex(reduceStage, domMap, valueMap, true)
	predicates := MakeBoundCheck(reduceStage, domMap, valueMap, skipBoundCheck)

	factorAxisPos := factorAxis
	if factorAxis < 0 {
		factorAxisPos = len(computeOp.Axis()) + 1 + factorAxis
	}
	if factorAxisPos < 0 || factorAxisPos > len(computeOp.Axis()) {
		return nil, scherrors.NewFactorError(tensor.Name(), fmt.Sprintf("factor axis %d out of range", factorAxis))
	}

	// The fresh data parallel axis reuses the factored axis variable.
	factorDom := domMap[axis]
	if !ir.IsZero(factorDom.Min) {
		return nil, scherrors.NewFactorError(tensor.Name(), "can only factor reduction domains starting from 0")
	}
	freshAxis := &ir.IterVar{Dom: factorDom, Var: axis.Var, IterType: ir.DataPar}
	var newDataAxis []*ir.IterVar
	for idx, iv := range computeOp.Axis() {
		if factorAxisPos == idx {
			newDataAxis = append(newDataAxis, freshAxis)
		}
		newDataAxis = append(newDataAxis, iv)
	}
	if factorAxisPos == len(computeOp.Axis()) {
		newDataAxis = append(newDataAxis, freshAxis)
	}

	reduce, ok := computeOp.Body()[tensor.ValueIndex].(*ir.Reduce)
	if !ok {
		return nil, scherrors.NewFactorError(tensor.Name(), "can only rfactor non-inline reductions")
	}
	predicates = append(predicates, reduce.Condition)
	predicate := ir.FoldAnd(predicates)

	vsub := make(map[*ir.Var]ir.Expr)
	var newReduceAxis []*ir.IterVar
	for _, iv := range computeOp.ReduceAxis() {
		if !touch[iv] {
			newReduceAxis = append(newReduceAxis, iv)
		} else {
			vsub[iv.Var] = valueMap[iv]
		}
	}
	// Touched reduction leaves other than the factored axis stay
	// reductions of the factored stage, rebound to their leaf domains.
	for _, iv := range reduceStage.LeafIterVars {
		if !touch[iv] || iv == axis {
			continue
		}
		if iv.IterType != ir.CommReduce {
			return nil, scherrors.NewFactorError(tensor.Name(), "touched leaf "+iv.String()+" is not a reduction axis")
		}
		cp := &ir.IterVar{Dom: domMap[iv], Var: iv.Var, IterType: iv.IterType, ThreadTag: iv.ThreadTag}
		newReduceAxis = append(newReduceAxis, cp)
	}
	newSource, _ := ir.UpdateArray(reduce.Source, func(e ir.Expr) ir.Expr {
		return ir.Substitute(e, vsub)
	})
	factorBody := make([]ir.Expr, len(reduce.Source))
	for idx := range reduce.Source {
		factorBody[idx] = &ir.Reduce{
			Combiner:   reduce.Combiner,
			Source:     newSource,
			Axis:       newReduceAxis,
			Condition:  predicate,
			ValueIndex: idx,
		}
	}
	factorOp := ir.NewComputeOp(computeOp.Name()+".rf", computeOp.OpTag(), newDataAxis, factorBody)

	// Relations not influenced by the factored axis carry over to the
	// factored stage.
	var keptRels []IterVarRelation
	for _, rel := range reduceStage.Relations {
		touched := false
		switch r := rel.(type) {
		case *Split:
			touched = touch[r.Parent]
		case *Fuse:
			touched = touch[r.Fused]
		case *Rebase:
			touched = touch[r.Parent]
		case *Reorder:
			for _, iv := range r.Order {
				if touch[iv] {
					touched = true
					break
				}
			}
		}
		if !touched {
			keptRels = append(keptRels, rel)
		}
	}

	stagePos := sch.stageIndex(reduceStage)
	factorStage := NewStage(factorOp)
	factorStage.Relations = keptRels
	sch.insertStage(stagePos, factorStage)
	sch.StageMap[factorOp] = factorStage
	inheritGroup(factorStage, reduceStage)

	// Replace the old reduction with a reduction over the factored
	// tensors along the fresh axis.
	replRedAxis := ir.ReduceAxis(factorDom, axis.Var.Name+".v")
	size := factorOp.NumOutputs()
	factorTensors := make([]ir.Tensor, size)
	oldTensors := make([]ir.Tensor, size)
	for idx := 0; idx < size; idx++ {
		factorTensors[idx] = factorOp.Output(idx)
		oldTensors[idx] = reduceStage.Op.Output(idx)
	}
	replTensors := ir.ComputeMulti(oldTensors[0].Shape(), func(vars []*ir.Var) []ir.Expr {
		var indices []ir.Expr
		for idx, v := range vars {
			if factorAxisPos == idx {
				indices = append(indices, replRedAxis.Var)
			}
			indices = append(indices, v)
		}
		if factorAxisPos == len(vars) {
			indices = append(indices, replRedAxis.Var)
		}
		factorExprs := make([]ir.Expr, size)
		for idx := 0; idx < size; idx++ {
			factorExprs[idx] = factorTensors[idx].Access(indices...)
		}
		cond := ir.ConstTrue()
		replAxis := []*ir.IterVar{replRedAxis}
		reductions := make([]ir.Expr, size)
		for idx := 0; idx < size; idx++ {
			reductions[idx] = &ir.Reduce{
				Combiner:   reduce.Combiner,
				Source:     factorExprs,
				Axis:       replAxis,
				Condition:  cond,
				ValueIndex: idx,
			}
		}
		return reductions
	}, reduceStage.Op.Name()+".repl")

	vmap := make(map[ir.Tensor]ir.Tensor, size)
	for idx := 0; idx < size; idx++ {
		vmap[oldTensors[idx]] = replTensors[idx]
	}
	ReplaceDataFlow(sch.Stages, vmap)

	reduceStage.Op = replTensors[0].Op
	reduceStage.AllIterVars = append([]*ir.IterVar(nil), reduceStage.Op.RootIterVars()...)
	reduceStage.LeafIterVars = append([]*ir.IterVar(nil), reduceStage.AllIterVars...)
	reduceStage.Relations = nil
	pruneStaleAttrs(reduceStage)
	sch.log.Debug("rfactor committed", "tensor", tensor.Name(), "axis", axis.String())
	return factorTensors, nil
}
