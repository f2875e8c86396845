package schedule

import (
	"github.com/JThr3e/heterocl/internal/ir"
)

// IterVarRelation is a hyperedge in a stage's iteration DAG. Relations
// record how split, fuse, reorder and rebase derive new iteration variables
// from existing ones.
type IterVarRelation interface {
	isRelation()
}

// Split derives Outer and Inner from Parent. Exactly one of Factor or
// NParts is defined.
type Split struct {
	Parent *ir.IterVar
	Outer  *ir.IterVar
	Inner  *ir.IterVar
	Factor ir.Expr
	NParts ir.Expr
}

func (*Split) isRelation() {}

// Fuse merges Outer and Inner into Fused.
type Fuse struct {
	Outer *ir.IterVar
	Inner *ir.IterVar
	Fused *ir.IterVar
}

func (*Fuse) isRelation() {}

// Reorder records a permutation applied to a subset of the leaves.
type Reorder struct {
	Order []*ir.IterVar
}

func (*Reorder) isRelation() {}

// Rebase renames Parent into Rebased so the rebased domain starts at zero.
type Rebase struct {
	Parent  *ir.IterVar
	Rebased *ir.IterVar
}

func (*Rebase) isRelation() {}

// TensorIntrin names a tensor compute intrinsic used by tensorize.
type TensorIntrin struct {
	Name string
	Op   ir.Operation
}

// IterVarAttr carries per-IterVar scheduling annotations. Attributes are
// copied on write so schedule copies can share them safely.
type IterVarAttr struct {
	IterType              ir.IterVarType
	BindThread            *ir.IterVar
	PrefetchData          []ir.Tensor
	PrefetchOffset        []ir.Expr
	TensorIntrin          *TensorIntrin
	DimAlignFactor        int
	DimAlignOffset        int
	Pragmas               []ir.Expr
	ForLoopAnnotateKeys   []ir.Expr
	ForLoopAnnotateValues []ir.Expr
}

func (a *IterVarAttr) clone() *IterVarAttr {
	if a == nil {
		return &IterVarAttr{IterType: ir.DataPar}
	}
	cp := *a
	cp.PrefetchData = append([]ir.Tensor(nil), a.PrefetchData...)
	cp.PrefetchOffset = append([]ir.Expr(nil), a.PrefetchOffset...)
	cp.Pragmas = append([]ir.Expr(nil), a.Pragmas...)
	cp.ForLoopAnnotateKeys = append([]ir.Expr(nil), a.ForLoopAnnotateKeys...)
	cp.ForLoopAnnotateValues = append([]ir.Expr(nil), a.ForLoopAnnotateValues...)
	return &cp
}

// AttachType describes where a stage's computation is placed. The numeric
// values are exposed to external serializers and must not shift.
type AttachType int

const (
	// AttachGroupRoot computes the stage at the root of its group.
	AttachGroupRoot AttachType = 1
	// AttachInline marks the stage for inlining.
	AttachInline AttachType = 2
	// AttachInlinedAlready marks a stage consumed by inject-inline.
	AttachInlinedAlready AttachType = 3
	// AttachScope computes the stage under an iteration of another stage.
	AttachScope AttachType = 4
	// AttachScanUpdate marks a scan update stage.
	AttachScanUpdate AttachType = 5
)

func (t AttachType) String() string {
	switch t {
	case AttachGroupRoot:
		return "GroupRoot"
	case AttachInline:
		return "Inline"
	case AttachInlinedAlready:
		return "InlinedAlready"
	case AttachScope:
		return "Scope"
	case AttachScanUpdate:
		return "ScanUpdate"
	default:
		return "Unknown"
	}
}

// StreamKind selects the data streaming channel flavor.
type StreamKind uint8

const (
	// StreamFIFO streams through a FIFO channel.
	StreamFIFO StreamKind = iota
	// StreamCopy streams by double copy.
	StreamCopy
)

// StreamAttr is the stage-local streaming annotation.
type StreamAttr struct {
	Kind  StreamKind
	Depth int
}

// StencilAttr is the stage-local stencil annotation.
type StencilAttr struct {
	BurstWidth   int
	UnrollFactor int
	NumIteration int
}
