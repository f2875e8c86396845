package schedule

import (
	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// Stage holds the scheduling state of one operation. A stage whose Op is
// nil is a group stage aggregating child stages.
type Stage struct {
	// Op is the current operation; dataflow rewrites replace it.
	Op ir.Operation
	// OriginOp is the operation the stage was created for.
	OriginOp ir.Operation
	// AllIterVars lists every iteration variable ever introduced.
	AllIterVars []*ir.IterVar
	// LeafIterVars is the ordered sequence of loops to be emitted.
	LeafIterVars []*ir.IterVar
	// IterVarExprsBeforeReorder and IterVarExprsAfterReorder record the
	// leaf sequence around each reorder for replay during lowering.
	IterVarExprsBeforeReorder []ir.Expr
	IterVarExprsAfterReorder  []ir.Expr
	// EnvThreads are environment thread axes launched around a group
	// scope.
	EnvThreads []*ir.IterVar
	// StorePredicate guards the store of the stage.
	StorePredicate ir.Expr
	// Relations is the ordered iteration DAG of the stage.
	Relations []IterVarRelation
	// IterVarAttrs maps iteration variables to their annotations.
	IterVarAttrs map[*ir.IterVar]*IterVarAttr
	// AttachType, AttachIVar, AttachStage and AttachLevel describe the
	// placement of this stage.
	AttachType       AttachType
	AttachIVar       *ir.IterVar
	OriginAttachIVar *ir.IterVar
	AttachStage      *Stage
	AttachLevel      int
	// Scope is the memory scope of the stage output.
	Scope string
	// IsOutput marks user-declared sink stages.
	IsOutput bool
	// IsOpenGL marks stages scheduled for OpenGL fragment shaders.
	IsOpenGL bool
	// DoubleBuffer enables double buffering for the stage storage.
	DoubleBuffer bool
	// Stream and Stencil are stage-local lowering annotations.
	Stream  *StreamAttr
	Stencil *StencilAttr
	// Group is the enclosing group stage, if any.
	Group *Stage
	// NumChildStages counts direct children, only meaningful on groups.
	NumChildStages int
}

// NewStage creates the initial scheduling state for op.
func NewStage(op ir.Operation) *Stage {
	s := &Stage{
		Op:         op,
		OriginOp:   op,
		AttachType: AttachGroupRoot,
	}
	if op != nil {
		root := op.RootIterVars()
		s.AllIterVars = append([]*ir.IterVar(nil), root...)
		s.LeafIterVars = append([]*ir.IterVar(nil), root...)
	}
	return s
}

// Name returns the stage display name.
func (s *Stage) Name() string {
	if s.Op == nil {
		return "<group>"
	}
	return s.Op.Name()
}

func (s *Stage) leafIndex(iv *ir.IterVar) int {
	for i, leaf := range s.LeafIterVars {
		if leaf == iv {
			return i
		}
	}
	return -1
}

// IsScheduled reports whether any primitive has been applied to the stage.
func (s *Stage) IsScheduled() bool {
	if len(s.Relations) > 0 || len(s.IterVarAttrs) > 0 {
		return true
	}
	if s.Op == nil {
		return false
	}
	root := s.Op.RootIterVars()
	if len(root) != len(s.LeafIterVars) {
		return true
	}
	for i, iv := range root {
		if s.LeafIterVars[i] != iv {
			return true
		}
	}
	return false
}

// GetAttachSpec resolves the effective attach point of the stage by walking
// the group chain while the stage computes at its group root.
func (s *Stage) GetAttachSpec() *Stage {
	spec := s
	for spec.AttachType == AttachGroupRoot && spec.Group != nil {
		spec = spec.Group
	}
	return spec
}

// updateAttr applies fn to a copy of the attribute of iv and installs the
// copy, so shared attrs from schedule copies stay untouched.
func (s *Stage) updateAttr(iv *ir.IterVar, fn func(*IterVarAttr)) {
	if s.IterVarAttrs == nil {
		s.IterVarAttrs = make(map[*ir.IterVar]*IterVarAttr)
	}
	attr := s.IterVarAttrs[iv].clone()
	if _, ok := s.IterVarAttrs[iv]; !ok {
		attr.IterType = iv.IterType
	}
	fn(attr)
	s.IterVarAttrs[iv] = attr
}

func (s *Stage) splitHelper(parent *ir.IterVar, factor, nparts ir.Expr) (*ir.IterVar, *ir.IterVar, error) {
	pos := s.leafIndex(parent)
	if pos < 0 {
		return nil, nil, scherrors.NewUnknownIterVarError(s.Name(), parent.String())
	}
	outer := &ir.IterVar{Var: parent.Var.CopyWithSuffix(".outer"), IterType: parent.IterType}
	inner := &ir.IterVar{Var: parent.Var.CopyWithSuffix(".inner"), IterType: parent.IterType}
	s.Relations = append(s.Relations, &Split{
		Parent: parent, Outer: outer, Inner: inner, Factor: factor, NParts: nparts,
	})
	s.AllIterVars = append(s.AllIterVars, outer, inner)
	leaves := make([]*ir.IterVar, 0, len(s.LeafIterVars)+1)
	leaves = append(leaves, s.LeafIterVars[:pos]...)
	leaves = append(leaves, outer, inner)
	leaves = append(leaves, s.LeafIterVars[pos+1:]...)
	s.LeafIterVars = leaves
	return outer, inner, nil
}

// Split splits parent by an inner extent factor, returning (outer, inner).
func (s *Stage) Split(parent *ir.IterVar, factor ir.Expr) (*ir.IterVar, *ir.IterVar, error) {
	return s.splitHelper(parent, factor, nil)
}

// SplitByNParts splits parent into nparts outer iterations.
func (s *Stage) SplitByNParts(parent *ir.IterVar, nparts ir.Expr) (*ir.IterVar, *ir.IterVar, error) {
	return s.splitHelper(parent, nil, nparts)
}

// SplitAnnotate records a split factor as a loop annotation without
// changing the iteration structure.
func (s *Stage) SplitAnnotate(parent *ir.IterVar, factor ir.Expr) error {
	if s.leafIndex(parent) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), parent.String())
	}
	s.updateAttr(parent, func(attr *IterVarAttr) {
		attr.ForLoopAnnotateKeys = append(attr.ForLoopAnnotateKeys, &ir.StringImm{Value: "split_factor"})
		attr.ForLoopAnnotateValues = append(attr.ForLoopAnnotateValues, factor)
	})
	return nil
}

// SplitByNPartsAnnotate records an nparts split as a loop annotation
// without changing the iteration structure.
func (s *Stage) SplitByNPartsAnnotate(parent *ir.IterVar, nparts ir.Expr) error {
	if s.leafIndex(parent) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), parent.String())
	}
	s.updateAttr(parent, func(attr *IterVarAttr) {
		attr.ForLoopAnnotateKeys = append(attr.ForLoopAnnotateKeys, &ir.StringImm{Value: "split_nparts"})
		attr.ForLoopAnnotateValues = append(attr.ForLoopAnnotateValues, nparts)
	})
	return nil
}

// FuseAxes fuses two adjacent leaves into one, outer first.
func (s *Stage) FuseAxes(outer, inner *ir.IterVar) (*ir.IterVar, error) {
	posOuter := s.leafIndex(outer)
	if posOuter < 0 {
		return nil, scherrors.NewUnknownIterVarError(s.Name(), outer.String())
	}
	posInner := s.leafIndex(inner)
	if posInner < 0 {
		return nil, scherrors.NewUnknownIterVarError(s.Name(), inner.String())
	}
	if posInner != posOuter+1 {
		return nil, scherrors.NewNonAdjacentFuseError(s.Name(), outer.String(), inner.String())
	}
	iterType := outer.IterType
	if inner.IterType > iterType {
		iterType = inner.IterType
	}
	fused := &ir.IterVar{
		Var:      ir.NewVar(outer.Var.Name+"."+inner.Var.Name+".fused", ir.Int32),
		IterType: iterType,
	}
	s.Relations = append(s.Relations, &Fuse{Outer: outer, Inner: inner, Fused: fused})
	s.AllIterVars = append(s.AllIterVars, fused)
	leaves := make([]*ir.IterVar, 0, len(s.LeafIterVars)-1)
	leaves = append(leaves, s.LeafIterVars[:posOuter]...)
	leaves = append(leaves, fused)
	leaves = append(leaves, s.LeafIterVars[posInner+1:]...)
	s.LeafIterVars = leaves
	return fused, nil
}

// ReorderAxes reorders the named leaves. order must be a permutation of a
// subset of the current leaves.
func (s *Stage) ReorderAxes(order ...*ir.IterVar) error {
	seen := make(map[*ir.IterVar]bool, len(order))
	for _, iv := range order {
		if s.leafIndex(iv) < 0 {
			return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
		}
		if seen[iv] {
			return scherrors.NewBadReorderError(s.Name(), "duplicate iter var "+iv.String())
		}
		seen[iv] = true
	}
	before := make([]ir.Expr, len(s.LeafIterVars))
	for i, iv := range s.LeafIterVars {
		before[i] = iv.Var
	}
	leaves := make([]*ir.IterVar, len(s.LeafIterVars))
	next := 0
	for i, iv := range s.LeafIterVars {
		if seen[iv] {
			leaves[i] = order[next]
			next++
		} else {
			leaves[i] = iv
		}
	}
	after := make([]ir.Expr, len(leaves))
	for i, iv := range leaves {
		after[i] = iv.Var
	}
	s.LeafIterVars = leaves
	s.Relations = append(s.Relations, &Reorder{Order: append([]*ir.IterVar(nil), order...)})
	s.IterVarExprsBeforeReorder = before
	s.IterVarExprsAfterReorder = after
	return nil
}

// Tile splits two axes and reorders them into the canonical
// [xOuter, yOuter, xInner, yInner] nest.
func (s *Stage) Tile(xParent, yParent *ir.IterVar, xFactor, yFactor ir.Expr) (xo, yo, xi, yi *ir.IterVar, err error) {
	if yParent == xParent || s.leafIndex(yParent) < 0 {
		return nil, nil, nil, nil, scherrors.NewUnknownIterVarError(s.Name(), yParent.String())
	}
	xo, xi, err = s.Split(xParent, xFactor)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	yo, yi, err = s.Split(yParent, yFactor)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err = s.ReorderAxes(xo, yo, xi, yi); err != nil {
		return nil, nil, nil, nil, err
	}
	return xo, yo, xi, yi, nil
}

// ComputeAt attaches this stage under the scope iteration of parent.
func (s *Stage) ComputeAt(parent *Stage, scope *ir.IterVar) error {
	pos := parent.leafIndex(scope)
	if pos < 0 {
		return scherrors.NewUnknownIterVarError(parent.Name(), scope.String())
	}
	s.AttachType = AttachScope
	s.AttachIVar = scope
	s.OriginAttachIVar = scope
	s.AttachStage = parent
	s.AttachLevel = pos
	return nil
}

// ComputeInline marks the stage for inlining during normalization.
func (s *Stage) ComputeInline() error {
	compute, ok := s.Op.(*ir.ComputeOp)
	if !ok {
		return scherrors.NewInlineNotComputeError(s.Name(), "can only inline compute operations")
	}
	if len(compute.Body()) != 1 {
		return scherrors.NewInlineNotComputeError(s.Name(), "can only inline compute operations with one output")
	}
	s.AttachType = AttachInline
	return nil
}

// ComputeRoot computes the stage at the root of its group.
func (s *Stage) ComputeRoot() *Stage {
	s.AttachType = AttachGroupRoot
	s.AttachIVar = nil
	s.AttachStage = nil
	return s
}

// SetScope sets the memory scope of the stage.
func (s *Stage) SetScope(scope string) *Stage {
	s.Scope = scope
	return s
}

// SetStorePredicate guards the store of the stage. Used when duplicated
// threads perform the same store and only one may commit.
func (s *Stage) SetStorePredicate(predicate ir.Expr) *Stage {
	s.StorePredicate = predicate
	return s
}

// Bind binds a leaf iteration to a thread axis.
func (s *Stage) Bind(iv, thread *ir.IterVar) error {
	if s.leafIndex(iv) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
	}
	if thread.IterType != ir.ThreadIndex || thread.ThreadTag == "" {
		return scherrors.NewIncompatibleIterTypeError(thread.String(), thread.IterType.String(), "bind to")
	}
	if iv.IterType != ir.DataPar && iv.IterType != ir.CommReduce {
		return scherrors.NewIncompatibleIterTypeError(iv.String(), iv.IterType.String(), "bind")
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.BindThread = thread
		attr.IterType = ir.ThreadIndex
	})
	return nil
}

// SetEnvThreads declares environment threads launched around the group
// scope. Only valid on group stages.
func (s *Stage) SetEnvThreads(threads []*ir.IterVar) error {
	if s.Op != nil {
		return scherrors.NewValidationError("env_threads", "env_threads is only valid for group stages", nil)
	}
	for _, t := range threads {
		if t.IterType != ir.ThreadIndex || t.ThreadTag == "" {
			return scherrors.NewIncompatibleIterTypeError(t.String(), t.IterType.String(), "launch as env thread")
		}
	}
	s.EnvThreads = append([]*ir.IterVar(nil), threads...)
	return nil
}

func (s *Stage) setAttrIterType(iv *ir.IterVar, t ir.IterVarType, primitive string) error {
	if s.leafIndex(iv) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
	}
	switch t {
	case ir.Vectorized, ir.Parallelized:
		if iv.IterType != ir.DataPar && iv.IterType != ir.Opaque {
			return scherrors.NewIncompatibleIterTypeError(iv.String(), iv.IterType.String(), primitive)
		}
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.IterType = t
	})
	return nil
}

// Vectorize annotates a data parallel leaf for vectorization.
func (s *Stage) Vectorize(iv *ir.IterVar) error {
	return s.setAttrIterType(iv, ir.Vectorized, "vectorize")
}

// Unroll annotates a leaf for unrolling.
func (s *Stage) Unroll(iv *ir.IterVar) error {
	return s.setAttrIterType(iv, ir.Unrolled, "unroll")
}

// UnrollWithFactor annotates a leaf for partial unrolling by factor.
func (s *Stage) UnrollWithFactor(iv *ir.IterVar, factor ir.Expr) error {
	if err := s.setAttrIterType(iv, ir.Unrolled, "unroll"); err != nil {
		return err
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.ForLoopAnnotateKeys = append(attr.ForLoopAnnotateKeys, &ir.StringImm{Value: "unroll_factor"})
		attr.ForLoopAnnotateValues = append(attr.ForLoopAnnotateValues, factor)
	})
	return nil
}

// Parallel annotates a data parallel leaf to run in parallel.
func (s *Stage) Parallel(iv *ir.IterVar) error {
	return s.setAttrIterType(iv, ir.Parallelized, "parallel")
}

// Pipeline annotates a leaf for pipelining with the given initiation
// interval.
func (s *Stage) Pipeline(iv *ir.IterVar, initiationInterval ir.Expr) error {
	if err := s.setAttrIterType(iv, ir.Pipelined, "pipeline"); err != nil {
		return err
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.ForLoopAnnotateKeys = append(attr.ForLoopAnnotateKeys, &ir.StringImm{Value: "initiation_interval"})
		attr.ForLoopAnnotateValues = append(attr.ForLoopAnnotateValues, initiationInterval)
	})
	return nil
}

// Tensorize replaces the loop nest from iv inward by the tensor intrinsic.
func (s *Stage) Tensorize(iv *ir.IterVar, intrin *TensorIntrin) error {
	if err := s.setAttrIterType(iv, ir.Tensorized, "tensorize"); err != nil {
		return err
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.TensorIntrin = intrin
	})
	return nil
}

// Pragma attaches a free-form pragma to a leaf. Pragma strings are carried
// to lowering verbatim.
func (s *Stage) Pragma(iv *ir.IterVar, pragma string) error {
	if s.leafIndex(iv) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.Pragmas = append(attr.Pragmas, &ir.StringImm{Value: pragma})
	})
	return nil
}

// Prefetch fetches domain offset iterations ahead at iv.
func (s *Stage) Prefetch(domain ir.Tensor, iv *ir.IterVar, offset ir.Expr) error {
	if s.leafIndex(iv) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.PrefetchData = append(attr.PrefetchData, domain)
		attr.PrefetchOffset = append(attr.PrefetchOffset, offset)
	})
	return nil
}

// StorageAlign requires stride[axis] == k*factor + offset for some k.
func (s *Stage) StorageAlign(iv *ir.IterVar, factor, offset int) error {
	if s.leafIndex(iv) < 0 {
		return scherrors.NewUnknownIterVarError(s.Name(), iv.String())
	}
	s.updateAttr(iv, func(attr *IterVarAttr) {
		attr.DimAlignFactor = factor
		attr.DimAlignOffset = offset
	})
	return nil
}

// SetDoubleBuffer enables double buffering on the stage storage.
func (s *Stage) SetDoubleBuffer() *Stage {
	s.DoubleBuffer = true
	return s
}

// OpenGL schedules the stage as an OpenGL fragment shader.
func (s *Stage) OpenGL() *Stage {
	s.IsOpenGL = true
	return s
}

// SetStream annotates the stage output as a streaming channel.
func (s *Stage) SetStream(kind StreamKind, depth int) *Stage {
	s.Stream = &StreamAttr{Kind: kind, Depth: depth}
	return s
}

// SetStencil annotates the stage for stencil lowering.
func (s *Stage) SetStencil(burstWidth, unrollFactor, numIteration int) *Stage {
	s.Stencil = &StencilAttr{
		BurstWidth:   burstWidth,
		UnrollFactor: unrollFactor,
		NumIteration: numIteration,
	}
	return s
}

// clone copies the stage shell. Operations are shared; slices and the attr
// map are copied. Attach and group references are remapped by the caller.
func (s *Stage) clone() *Stage {
	cp := *s
	cp.AllIterVars = append([]*ir.IterVar(nil), s.AllIterVars...)
	cp.LeafIterVars = append([]*ir.IterVar(nil), s.LeafIterVars...)
	cp.IterVarExprsBeforeReorder = append([]ir.Expr(nil), s.IterVarExprsBeforeReorder...)
	cp.IterVarExprsAfterReorder = append([]ir.Expr(nil), s.IterVarExprsAfterReorder...)
	cp.EnvThreads = append([]*ir.IterVar(nil), s.EnvThreads...)
	cp.Relations = append([]IterVarRelation(nil), s.Relations...)
	if s.IterVarAttrs != nil {
		cp.IterVarAttrs = make(map[*ir.IterVar]*IterVarAttr, len(s.IterVarAttrs))
		for iv, attr := range s.IterVarAttrs {
			cp.IterVarAttrs[iv] = attr
		}
	}
	return &cp
}
