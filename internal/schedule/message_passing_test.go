package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JThr3e/heterocl/internal/ir"
)

func rootDomains(s *Stage) map[*ir.IterVar]*ir.Range {
	dom := make(map[*ir.IterVar]*ir.Range)
	for _, iv := range s.Op.RootIterVars() {
		dom[iv] = iv.Dom
	}
	return dom
}

func TestPassDownDomain_SplitByFactor(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	outerExt, ok := ir.ConstInt(dom[outer].Extent)
	require.True(t, ok)
	require.Equal(t, int64(8), outerExt)
	innerExt, ok := ir.ConstInt(dom[inner].Extent)
	require.True(t, ok)
	require.Equal(t, int64(4), innerExt)
}

func TestPassDownDomain_SplitByNParts(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.SplitByNParts(i, ir.IntConst(8))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	outerExt, ok := ir.ConstInt(dom[outer].Extent)
	require.True(t, ok)
	require.Equal(t, int64(8), outerExt)
	innerExt, ok := ir.ConstInt(dom[inner].Extent)
	require.True(t, ok)
	require.Equal(t, int64(4), innerExt)
}

func TestPassDownDomain_NonDivisibleSplitRoundsUp(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 10)
	i := s.LeafIterVars[0]
	outer, _, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	outerExt, ok := ir.ConstInt(dom[outer].Extent)
	require.True(t, ok)
	require.Equal(t, int64(3), outerExt)
}

func TestPassUpIndex_RebuildsParentFromSplit(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	value := map[*ir.IterVar]ir.Expr{
		outer: outer.Var,
		inner: inner.Var,
	}
	PassUpIndex(s, dom, value, true)

	parent, ok := value[i]
	require.True(t, ok)
	want := &ir.Add{A: &ir.Mul{A: outer.Var, B: ir.IntConst(4)}, B: inner.Var}
	require.True(t, ir.StructuralEqual(want, parent), "got %s", ir.Format(parent))
}

func TestPassUpIndex_FuseProducesDivMod(t *testing.T) {
	t.Parallel()

	_, s := matrixStage(t)
	i, j := s.LeafIterVars[0], s.LeafIterVars[1]
	fused, err := s.FuseAxes(i, j)
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	value := map[*ir.IterVar]ir.Expr{fused: fused.Var}
	PassUpIndex(s, dom, value, true)

	wantOuter := &ir.Div{A: fused.Var, B: ir.IntConst(16)}
	wantInner := &ir.Mod{A: fused.Var, B: ir.IntConst(16)}
	require.True(t, ir.StructuralEqual(wantOuter, value[i]), "got %s", ir.Format(value[i]))
	require.True(t, ir.StructuralEqual(wantInner, value[j]), "got %s", ir.Format(value[j]))
}

func TestPassDownIndex_IsInverseDirection(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)

	value := map[*ir.IterVar]ir.Expr{i: i.Var}
	PassDownIndex(s, dom, value, true)

	wantOuter := &ir.Div{A: i.Var, B: ir.IntConst(4)}
	wantInner := &ir.Mod{A: i.Var, B: ir.IntConst(4)}
	require.True(t, ir.StructuralEqual(wantOuter, value[outer]), "got %s", ir.Format(value[outer]))
	require.True(t, ir.StructuralEqual(wantInner, value[inner]), "got %s", ir.Format(value[inner]))
}

func TestBitMaskOr_PropagatesThroughSplitAndFuse(t *testing.T) {
	t.Parallel()

	_, s := matrixStage(t)
	i, j := s.LeafIterVars[0], s.LeafIterVars[1]
	io, ii, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	touched := map[*ir.IterVar]bool{ii: true}
	PassUpBitMaskOr(s, touched, true)
	require.True(t, touched[i])

	PassDownBitMaskOr(s, touched, true)
	require.True(t, touched[io])
	require.False(t, touched[j])
}

func TestMakeBoundCheck_ExactSplitEmitsNoPredicate(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)
	value := map[*ir.IterVar]ir.Expr{outer: outer.Var, inner: inner.Var}
	PassUpIndex(s, dom, value, true)

	preds := MakeBoundCheck(s, dom, value, nil)
	require.Empty(t, preds)
}

func TestMakeBoundCheck_FactorOneEmitsNoPredicate(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 32)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(1))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)
	outerExt, ok := ir.ConstInt(dom[outer].Extent)
	require.True(t, ok)
	require.Equal(t, int64(32), outerExt)
	innerExt, ok := ir.ConstInt(dom[inner].Extent)
	require.True(t, ok)
	require.Equal(t, int64(1), innerExt)

	value := map[*ir.IterVar]ir.Expr{outer: outer.Var, inner: inner.Var}
	PassUpIndex(s, dom, value, true)
	preds := MakeBoundCheck(s, dom, value, nil)
	require.Empty(t, preds)
}

func TestMakeBoundCheck_NonDivisibleSplitEmitsPredicate(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 10)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)
	value := map[*ir.IterVar]ir.Expr{outer: outer.Var, inner: inner.Var}
	PassUpIndex(s, dom, value, true)

	preds := MakeBoundCheck(s, dom, value, nil)
	require.Len(t, preds, 1)
	lt, ok := preds[0].(*ir.LT)
	require.True(t, ok)
	bound, ok := ir.ConstInt(lt.B)
	require.True(t, ok)
	require.Equal(t, int64(10), bound)
}

func TestMakeBoundCheck_SkipSetSuppressesPredicates(t *testing.T) {
	t.Parallel()

	_, s := singleStage(t, 10)
	i := s.LeafIterVars[0]
	outer, inner, err := s.Split(i, ir.IntConst(4))
	require.NoError(t, err)

	dom := rootDomains(s)
	PassDownDomain(s, dom, true)
	value := map[*ir.IterVar]ir.Expr{outer: outer.Var, inner: inner.Var}
	PassUpIndex(s, dom, value, true)

	preds := MakeBoundCheck(s, dom, value, map[*ir.IterVar]bool{i: true})
	require.Empty(t, preds)
}
