package ir

import (
	"fmt"
	"strings"
)

// Expr is an expression node. Expressions form immutable trees; rewriting
// passes rebuild the spine and share unchanged sub-trees.
type Expr interface {
	Dtype() DType
	isExpr()
}

// Var is a symbolic variable. Identity is the pointer, not the name.
type Var struct {
	Name string
	T    DType
}

// NewVar creates a fresh variable of the given type.
func NewVar(name string, t DType) *Var {
	return &Var{Name: name, T: t}
}

// CopyWithSuffix creates a fresh variable whose name carries the suffix.
// The result is a distinct identity.
func (v *Var) CopyWithSuffix(suffix string) *Var {
	return &Var{Name: v.Name + suffix, T: v.T}
}

// Dtype implements Expr.
func (v *Var) Dtype() DType { return v.T }
func (v *Var) isExpr()      {}

func (v *Var) String() string { return v.Name }

// IntImm is an integer constant.
type IntImm struct {
	T     DType
	Value int64
}

// Dtype implements Expr.
func (e *IntImm) Dtype() DType { return e.T }
func (e *IntImm) isExpr()      {}

// FloatImm is a floating point constant.
type FloatImm struct {
	T     DType
	Value float64
}

// Dtype implements Expr.
func (e *FloatImm) Dtype() DType { return e.T }
func (e *FloatImm) isExpr()      {}

// StringImm is a string constant, used for pragma payloads and attribute
// values.
type StringImm struct {
	Value string
}

// Dtype implements Expr.
func (e *StringImm) Dtype() DType { return Handle }
func (e *StringImm) isExpr()      {}

// Cast converts a value to another type.
type Cast struct {
	T     DType
	Value Expr
}

// Dtype implements Expr.
func (e *Cast) Dtype() DType { return e.T }
func (e *Cast) isExpr()      {}

// Add is a + b.
type Add struct{ A, B Expr }

// Sub is a - b.
type Sub struct{ A, B Expr }

// Mul is a * b.
type Mul struct{ A, B Expr }

// Div is a / b, truncating integer division.
type Div struct{ A, B Expr }

// Mod is a % b.
type Mod struct{ A, B Expr }

// Min is min(a, b).
type Min struct{ A, B Expr }

// Max is max(a, b).
type Max struct{ A, B Expr }

func (e *Add) Dtype() DType { return e.A.Dtype() }
func (e *Add) isExpr()      {}
func (e *Sub) Dtype() DType { return e.A.Dtype() }
func (e *Sub) isExpr()      {}
func (e *Mul) Dtype() DType { return e.A.Dtype() }
func (e *Mul) isExpr()      {}
func (e *Div) Dtype() DType { return e.A.Dtype() }
func (e *Div) isExpr()      {}
func (e *Mod) Dtype() DType { return e.A.Dtype() }
func (e *Mod) isExpr()      {}
func (e *Min) Dtype() DType { return e.A.Dtype() }
func (e *Min) isExpr()      {}
func (e *Max) Dtype() DType { return e.A.Dtype() }
func (e *Max) isExpr()      {}

// EQ is a == b.
type EQ struct{ A, B Expr }

// NE is a != b.
type NE struct{ A, B Expr }

// LT is a < b.
type LT struct{ A, B Expr }

// LE is a <= b.
type LE struct{ A, B Expr }

// GT is a > b.
type GT struct{ A, B Expr }

// GE is a >= b.
type GE struct{ A, B Expr }

func (e *EQ) Dtype() DType { return Bool }
func (e *EQ) isExpr()      {}
func (e *NE) Dtype() DType { return Bool }
func (e *NE) isExpr()      {}
func (e *LT) Dtype() DType { return Bool }
func (e *LT) isExpr()      {}
func (e *LE) Dtype() DType { return Bool }
func (e *LE) isExpr()      {}
func (e *GT) Dtype() DType { return Bool }
func (e *GT) isExpr()      {}
func (e *GE) Dtype() DType { return Bool }
func (e *GE) isExpr()      {}

// And is a && b.
type And struct{ A, B Expr }

// Or is a || b.
type Or struct{ A, B Expr }

// Not is !a.
type Not struct{ A Expr }

func (e *And) Dtype() DType { return Bool }
func (e *And) isExpr()      {}
func (e *Or) Dtype() DType  { return Bool }
func (e *Or) isExpr()       {}
func (e *Not) Dtype() DType { return Bool }
func (e *Not) isExpr()      {}

// Select is cond ? trueValue : falseValue.
type Select struct {
	Cond       Expr
	TrueValue  Expr
	FalseValue Expr
}

// Dtype implements Expr.
func (e *Select) Dtype() DType { return e.TrueValue.Dtype() }
func (e *Select) isExpr()      {}

// CallKind distinguishes the open set of call targets.
type CallKind uint8

const (
	// CallHalide is a read of a tensor produced by an operation.
	CallHalide CallKind = iota
	// CallIntrinsic is a call to a named intrinsic; the name is carried
	// verbatim to lowering.
	CallIntrinsic
)

// Call reads a tensor element or invokes an intrinsic by name.
type Call struct {
	T          DType
	Name       string
	Args       []Expr
	Kind       CallKind
	Func       Operation
	ValueIndex int
}

// Dtype implements Expr.
func (e *Call) Dtype() DType { return e.T }
func (e *Call) isExpr()      {}

// CommReducer describes a commutative-associative combiner. Lhs/Rhs are the
// formal arguments of Result; Identity gives the neutral element per output.
type CommReducer struct {
	Lhs      []*Var
	Rhs      []*Var
	Result   []Expr
	Identity []Expr
}

// Reduce applies a commutative reduction of Source over Axis, guarded by
// Condition. ValueIndex selects the output for multi-value combiners.
type Reduce struct {
	Combiner   *CommReducer
	Source     []Expr
	Axis       []*IterVar
	Condition  Expr
	ValueIndex int
}

// Dtype implements Expr.
func (e *Reduce) Dtype() DType { return e.Source[e.ValueIndex].Dtype() }
func (e *Reduce) isExpr()      {}

// Format renders an expression for diagnostics and tests. The rendering is
// not a parseable surface syntax.
func Format(e Expr) string {
	switch n := e.(type) {
	case nil:
		return "<nil>"
	case *Var:
		return n.Name
	case *IntImm:
		return fmt.Sprintf("%d", n.Value)
	case *FloatImm:
		return fmt.Sprintf("%g", n.Value)
	case *StringImm:
		return fmt.Sprintf("%q", n.Value)
	case *Cast:
		return fmt.Sprintf("%s(%s)", n.T, Format(n.Value))
	case *Add:
		return fmt.Sprintf("(%s + %s)", Format(n.A), Format(n.B))
	case *Sub:
		return fmt.Sprintf("(%s - %s)", Format(n.A), Format(n.B))
	case *Mul:
		return fmt.Sprintf("(%s*%s)", Format(n.A), Format(n.B))
	case *Div:
		return fmt.Sprintf("(%s/%s)", Format(n.A), Format(n.B))
	case *Mod:
		return fmt.Sprintf("(%s %% %s)", Format(n.A), Format(n.B))
	case *Min:
		return fmt.Sprintf("min(%s, %s)", Format(n.A), Format(n.B))
	case *Max:
		return fmt.Sprintf("max(%s, %s)", Format(n.A), Format(n.B))
	case *EQ:
		return fmt.Sprintf("(%s == %s)", Format(n.A), Format(n.B))
	case *NE:
		return fmt.Sprintf("(%s != %s)", Format(n.A), Format(n.B))
	case *LT:
		return fmt.Sprintf("(%s < %s)", Format(n.A), Format(n.B))
	case *LE:
		return fmt.Sprintf("(%s <= %s)", Format(n.A), Format(n.B))
	case *GT:
		return fmt.Sprintf("(%s > %s)", Format(n.A), Format(n.B))
	case *GE:
		return fmt.Sprintf("(%s >= %s)", Format(n.A), Format(n.B))
	case *And:
		return fmt.Sprintf("(%s && %s)", Format(n.A), Format(n.B))
	case *Or:
		return fmt.Sprintf("(%s || %s)", Format(n.A), Format(n.B))
	case *Not:
		return fmt.Sprintf("!%s", Format(n.A))
	case *Select:
		return fmt.Sprintf("select(%s, %s, %s)", Format(n.Cond), Format(n.TrueValue), Format(n.FalseValue))
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Format(a)
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	case *Reduce:
		axes := make([]string, len(n.Axis))
		for i, iv := range n.Axis {
			axes[i] = iv.Var.Name
		}
		return fmt.Sprintf("reduce(%s, axis=[%s])", Format(n.Source[n.ValueIndex]), strings.Join(axes, ", "))
	default:
		return fmt.Sprintf("%T", e)
	}
}
