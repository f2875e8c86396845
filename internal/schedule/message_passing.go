package schedule

import (
	"github.com/JThr3e/heterocl/internal/ir"
)

// The message passing functions propagate information along a stage's
// relation DAG. They are pure with respect to the stage: only the supplied
// maps are written.

// PassDownDomain computes the domains of derived iteration variables from
// the domains of their parents. Relations whose parent domain is missing
// are skipped whether or not allowMissing is set.
func PassDownDomain(stage *Stage, dom map[*ir.IterVar]*ir.Range, allowMissing bool) {
	for _, rel := range stage.Relations {
		switch r := rel.(type) {
		case *Split:
			parent, ok := dom[r.Parent]
			if !ok {
				continue
			}
			if r.Factor != nil {
				dom[r.Inner] = ir.RangeFromExtent(r.Factor)
				dom[r.Outer] = ir.RangeFromExtent(ir.CeilDiv(parent.Extent, r.Factor))
			} else {
				dom[r.Outer] = ir.RangeFromExtent(r.NParts)
				dom[r.Inner] = ir.RangeFromExtent(ir.CeilDiv(parent.Extent, r.NParts))
			}
		case *Fuse:
			outer, okOuter := dom[r.Outer]
			inner, okInner := dom[r.Inner]
			if !okOuter || !okInner {
				continue
			}
			dom[r.Fused] = ir.RangeFromExtent(ir.MulExpr(outer.Extent, inner.Extent))
		case *Rebase:
			parent, ok := dom[r.Parent]
			if !ok {
				continue
			}
			dom[r.Rebased] = ir.RangeFromExtent(parent.Extent)
		case *Reorder:
			// Reorder does not change domains.
		}
	}
}

// PassUpIndex computes symbolic index values of parents from the values of
// their derived variables, walking the relations in reverse.
func PassUpIndex(stage *Stage, dom map[*ir.IterVar]*ir.Range, value map[*ir.IterVar]ir.Expr, allowMissing bool) {
	for i := len(stage.Relations) - 1; i >= 0; i-- {
		switch r := stage.Relations[i].(type) {
		case *Split:
			outer, okOuter := value[r.Outer]
			inner, okInner := value[r.Inner]
			if !okOuter || !okInner {
				continue
			}
			innerDom, ok := dom[r.Inner]
			if !ok {
				continue
			}
			parent := ir.AddExpr(ir.MulExpr(outer, innerDom.Extent), inner)
			if parentDom, ok := dom[r.Parent]; ok && !ir.IsZero(parentDom.Min) {
				parent = ir.AddExpr(parent, parentDom.Min)
			}
			value[r.Parent] = parent
		case *Fuse:
			fused, ok := value[r.Fused]
			if !ok {
				continue
			}
			innerDom, ok := dom[r.Inner]
			if !ok {
				continue
			}
			outer := ir.DivExpr(fused, innerDom.Extent)
			inner := ir.ModExpr(fused, innerDom.Extent)
			if outerDom, ok := dom[r.Outer]; ok && !ir.IsZero(outerDom.Min) {
				outer = ir.AddExpr(outer, outerDom.Min)
			}
			if !ir.IsZero(innerDom.Min) {
				inner = ir.AddExpr(inner, innerDom.Min)
			}
			value[r.Outer] = outer
			value[r.Inner] = inner
		case *Rebase:
			rebased, ok := value[r.Rebased]
			if !ok {
				continue
			}
			parent := rebased
			if parentDom, ok := dom[r.Parent]; ok && !ir.IsZero(parentDom.Min) {
				parent = ir.AddExpr(parent, parentDom.Min)
			}
			value[r.Parent] = parent
		case *Reorder:
			// Reorder does not change index values.
		}
	}
}

// PassDownIndex computes symbolic index values of derived variables from
// the values of their parents.
func PassDownIndex(stage *Stage, dom map[*ir.IterVar]*ir.Range, value map[*ir.IterVar]ir.Expr, allowMissing bool) {
	for _, rel := range stage.Relations {
		switch r := rel.(type) {
		case *Split:
			parent, ok := value[r.Parent]
			if !ok {
				continue
			}
			innerDom, ok := dom[r.Inner]
			if !ok {
				continue
			}
			value[r.Outer] = ir.DivExpr(parent, innerDom.Extent)
			value[r.Inner] = ir.ModExpr(parent, innerDom.Extent)
		case *Fuse:
			outer, okOuter := value[r.Outer]
			inner, okInner := value[r.Inner]
			if !okOuter || !okInner {
				continue
			}
			innerDom, ok := dom[r.Inner]
			if !ok {
				continue
			}
			value[r.Fused] = ir.AddExpr(ir.MulExpr(outer, innerDom.Extent), inner)
		case *Rebase:
			parent, ok := value[r.Parent]
			if !ok {
				continue
			}
			rebased := parent
			if parentDom, ok := dom[r.Parent]; ok && !ir.IsZero(parentDom.Min) {
				rebased = ir.SubExpr(parent, parentDom.Min)
			}
			value[r.Rebased] = rebased
		case *Reorder:
			// Reorder does not change index values.
		}
	}
}

// PassUpBitMaskOr propagates a boolean mark from derived variables to their
// parents, walking the relations in reverse.
func PassUpBitMaskOr(stage *Stage, touched map[*ir.IterVar]bool, allowMissing bool) {
	for i := len(stage.Relations) - 1; i >= 0; i-- {
		switch r := stage.Relations[i].(type) {
		case *Split:
			if touched[r.Outer] || touched[r.Inner] {
				touched[r.Parent] = true
			}
		case *Fuse:
			if touched[r.Fused] {
				touched[r.Outer] = true
				touched[r.Inner] = true
			}
		case *Rebase:
			if touched[r.Rebased] {
				touched[r.Parent] = true
			}
		case *Reorder:
			// Reorder carries no marks.
		}
	}
}

// PassDownBitMaskOr propagates a boolean mark from parents to their derived
// variables.
func PassDownBitMaskOr(stage *Stage, touched map[*ir.IterVar]bool, allowMissing bool) {
	for _, rel := range stage.Relations {
		switch r := rel.(type) {
		case *Split:
			if touched[r.Parent] {
				touched[r.Outer] = true
				touched[r.Inner] = true
			}
		case *Fuse:
			if touched[r.Outer] || touched[r.Inner] {
				touched[r.Fused] = true
			}
		case *Rebase:
			if touched[r.Parent] {
				touched[r.Rebased] = true
			}
		case *Reorder:
			// Reorder carries no marks.
		}
	}
}

// passUpBoundCheck computes, for every iteration variable, whether the
// current leaf values are provably inside its domain. Leaves are in range
// by construction; a split parent is in range only when the outer extent
// times the split factor exactly covers the parent extent.
func passUpBoundCheck(stage *Stage, dom map[*ir.IterVar]*ir.Range) map[*ir.IterVar]bool {
	state := make(map[*ir.IterVar]bool, len(stage.AllIterVars))
	for _, iv := range stage.LeafIterVars {
		state[iv] = true
	}
	for i := len(stage.Relations) - 1; i >= 0; i-- {
		switch r := stage.Relations[i].(type) {
		case *Split:
			ok := state[r.Outer] && state[r.Inner]
			if ok {
				outerDom, okOuter := dom[r.Outer]
				innerDom, okInner := dom[r.Inner]
				parentDom, okParent := dom[r.Parent]
				ok = okOuter && okInner && okParent &&
					ir.ProveEqual(ir.MulExpr(outerDom.Extent, innerDom.Extent), parentDom.Extent)
			}
			state[r.Parent] = ok
		case *Fuse:
			state[r.Outer] = state[r.Fused]
			state[r.Inner] = state[r.Fused]
		case *Rebase:
			state[r.Parent] = state[r.Rebased]
		case *Reorder:
			// Reorder does not affect bounds.
		}
	}
	return state
}

// MakeBoundCheck produces the minimum set of predicates needed to keep
// every root index inside its declared domain given the current leaf
// values. Iteration variables in skip are trusted to be in range.
func MakeBoundCheck(stage *Stage, dom map[*ir.IterVar]*ir.Range, value map[*ir.IterVar]ir.Expr, skip map[*ir.IterVar]bool) []ir.Expr {
	boundOK := passUpBoundCheck(stage, dom)
	var preds []ir.Expr
	for _, iv := range stage.Op.RootIterVars() {
		if skip[iv] || iv.IterType == ir.Opaque {
			continue
		}
		if boundOK[iv] {
			continue
		}
		d, okDom := dom[iv]
		v, okVal := value[iv]
		if !okDom || !okVal {
			continue
		}
		if !ir.IsZero(d.Min) {
			preds = append(preds, &ir.GE{A: v, B: d.Min})
		}
		preds = append(preds, &ir.LT{A: v, B: ir.AddExpr(d.Min, d.Extent)})
	}
	return preds
}
