package ir

// IntConst builds an int32 constant.
func IntConst(v int64) Expr {
	return &IntImm{T: Int32, Value: v}
}

// ConstTrue builds the boolean true constant.
func ConstTrue() Expr {
	return &IntImm{T: Bool, Value: 1}
}

// MakeZero builds the zero value of the given type.
func MakeZero(t DType) Expr {
	if t.Code == FloatCode {
		return &FloatImm{T: t, Value: 0}
	}
	return &IntImm{T: t, Value: 0}
}

// ConstInt extracts the value of an integer constant.
func ConstInt(e Expr) (int64, bool) {
	imm, ok := e.(*IntImm)
	if !ok {
		return 0, false
	}
	return imm.Value, true
}

// IsZero reports whether e is the integer or float constant 0.
func IsZero(e Expr) bool {
	switch n := e.(type) {
	case *IntImm:
		return n.Value == 0
	case *FloatImm:
		return n.Value == 0
	}
	return false
}

// IsOne reports whether e is the integer or float constant 1.
func IsOne(e Expr) bool {
	switch n := e.(type) {
	case *IntImm:
		return n.Value == 1
	case *FloatImm:
		return n.Value == 1
	}
	return false
}

// AddExpr builds a + b with constant folding and identity elimination.
func AddExpr(a, b Expr) Expr {
	if IsZero(a) {
		return b
	}
	if IsZero(b) {
		return a
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok {
			return &IntImm{T: a.Dtype(), Value: x + y}
		}
	}
	return &Add{A: a, B: b}
}

// SubExpr builds a - b with constant folding.
func SubExpr(a, b Expr) Expr {
	if IsZero(b) {
		return a
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok {
			return &IntImm{T: a.Dtype(), Value: x - y}
		}
	}
	return &Sub{A: a, B: b}
}

// MulExpr builds a * b with constant folding and identity elimination.
func MulExpr(a, b Expr) Expr {
	if IsOne(a) {
		return b
	}
	if IsOne(b) {
		return a
	}
	if IsZero(a) {
		return a
	}
	if IsZero(b) {
		return b
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok {
			return &IntImm{T: a.Dtype(), Value: x * y}
		}
	}
	return &Mul{A: a, B: b}
}

// DivExpr builds a / b with constant folding.
func DivExpr(a, b Expr) Expr {
	if IsOne(b) {
		return a
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok && y != 0 {
			return &IntImm{T: a.Dtype(), Value: x / y}
		}
	}
	return &Div{A: a, B: b}
}

// ModExpr builds a % b with constant folding.
func ModExpr(a, b Expr) Expr {
	if IsOne(b) {
		return MakeZero(a.Dtype())
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok && y != 0 {
			return &IntImm{T: a.Dtype(), Value: x % y}
		}
	}
	return &Mod{A: a, B: b}
}

// CeilDiv builds ceil(a / b) for positive extents.
func CeilDiv(a, b Expr) Expr {
	if IsOne(b) {
		return a
	}
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok && y != 0 {
			return &IntImm{T: a.Dtype(), Value: (x + y - 1) / y}
		}
	}
	return &Div{A: &Sub{A: &Add{A: a, B: b}, B: IntConst(1)}, B: b}
}

// AndExpr builds a && b, dropping constant-true operands.
func AndExpr(a, b Expr) Expr {
	if isConstTrue(a) {
		return b
	}
	if isConstTrue(b) {
		return a
	}
	return &And{A: a, B: b}
}

// FoldAnd conjoins the predicates into a single condition. An empty list
// folds to true.
func FoldAnd(preds []Expr) Expr {
	if len(preds) == 0 {
		return ConstTrue()
	}
	out := preds[0]
	for _, p := range preds[1:] {
		out = AndExpr(out, p)
	}
	return out
}

// ProveEqual reports whether a and b can be shown equal by constant folding
// and structural comparison.
func ProveEqual(a, b Expr) bool {
	if x, ok := ConstInt(a); ok {
		if y, ok := ConstInt(b); ok {
			return x == y
		}
	}
	return StructuralEqual(a, b)
}

func isConstTrue(e Expr) bool {
	imm, ok := e.(*IntImm)
	return ok && imm.T == Bool && imm.Value != 0
}
