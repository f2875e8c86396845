package ir

import "fmt"

// IterVarType classifies how an iteration variable may be scheduled.
type IterVarType uint8

const (
	// DataPar is a data parallel iteration.
	DataPar IterVarType = iota
	// ThreadIndex is an environment thread axis such as threadIdx.x.
	ThreadIndex
	// CommReduce is a commutative-associative reduction axis.
	CommReduce
	// Ordered must execute in order, cannot be reordered.
	Ordered
	// Opaque carries no scheduling meaning beyond its extent.
	Opaque
	// Unrolled is annotated to be unrolled.
	Unrolled
	// Vectorized is annotated to be vectorized.
	Vectorized
	// Parallelized is annotated to run in parallel.
	Parallelized
	// Tensorized is replaced by a tensor intrinsic.
	Tensorized
	// Pipelined is annotated to be pipelined.
	Pipelined
)

func (t IterVarType) String() string {
	switch t {
	case DataPar:
		return "DataPar"
	case ThreadIndex:
		return "ThreadIndex"
	case CommReduce:
		return "CommReduce"
	case Ordered:
		return "Ordered"
	case Opaque:
		return "Opaque"
	case Unrolled:
		return "Unrolled"
	case Vectorized:
		return "Vectorized"
	case Parallelized:
		return "Parallelized"
	case Tensorized:
		return "Tensorized"
	case Pipelined:
		return "Pipelined"
	default:
		return fmt.Sprintf("IterVarType(%d)", uint8(t))
	}
}

// Range is a half-open iteration domain [Min, Min+Extent). A nil *Range
// means the domain is unresolved until bound inference.
type Range struct {
	Min    Expr
	Extent Expr
}

// MakeRangeByMinExtent constructs a range from min and extent.
func MakeRangeByMinExtent(min, extent Expr) *Range {
	return &Range{Min: min, Extent: extent}
}

// RangeFromExtent constructs a zero-based range of the given extent.
func RangeFromExtent(extent Expr) *Range {
	return &Range{Min: IntConst(0), Extent: extent}
}

// IterVar is a loop variable with a domain. Identity is the Var pointer.
type IterVar struct {
	Dom       *Range
	Var       *Var
	IterType  IterVarType
	ThreadTag string
}

// NewIterVar creates an iteration variable over dom with a fresh variable of
// the given name.
func NewIterVar(dom *Range, name string, iterType IterVarType) *IterVar {
	return &IterVar{Dom: dom, Var: NewVar(name, Int32), IterType: iterType}
}

// ReduceAxis creates a commutative reduction axis over dom.
func ReduceAxis(dom *Range, name string) *IterVar {
	return NewIterVar(dom, name, CommReduce)
}

// ThreadAxis creates an environment thread axis with the given tag. The tag
// doubles as the variable name.
func ThreadAxis(dom *Range, tag string) *IterVar {
	iv := NewIterVar(dom, tag, ThreadIndex)
	iv.ThreadTag = tag
	return iv
}

func (iv *IterVar) String() string {
	if iv == nil || iv.Var == nil {
		return "<nil>"
	}
	return iv.Var.Name
}
