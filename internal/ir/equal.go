package ir

// StructuralEqual compares two expressions for deep structural equality.
// Variables compare by identity; there is no alpha renaming.
func StructuralEqual(a, b Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	switch x := a.(type) {
	case *Var:
		return a == b
	case *IntImm:
		y, ok := b.(*IntImm)
		return ok && x.T == y.T && x.Value == y.Value
	case *FloatImm:
		y, ok := b.(*FloatImm)
		return ok && x.T == y.T && x.Value == y.Value
	case *StringImm:
		y, ok := b.(*StringImm)
		return ok && x.Value == y.Value
	case *Cast:
		y, ok := b.(*Cast)
		return ok && x.T == y.T && StructuralEqual(x.Value, y.Value)
	case *Add:
		y, ok := b.(*Add)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Sub:
		y, ok := b.(*Sub)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Mul:
		y, ok := b.(*Mul)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Div:
		y, ok := b.(*Div)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Mod:
		y, ok := b.(*Mod)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Min:
		y, ok := b.(*Min)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Max:
		y, ok := b.(*Max)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *EQ:
		y, ok := b.(*EQ)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *NE:
		y, ok := b.(*NE)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *LT:
		y, ok := b.(*LT)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *LE:
		y, ok := b.(*LE)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *GT:
		y, ok := b.(*GT)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *GE:
		y, ok := b.(*GE)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *And:
		y, ok := b.(*And)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Or:
		y, ok := b.(*Or)
		return ok && StructuralEqual(x.A, y.A) && StructuralEqual(x.B, y.B)
	case *Not:
		y, ok := b.(*Not)
		return ok && StructuralEqual(x.A, y.A)
	case *Select:
		y, ok := b.(*Select)
		return ok && StructuralEqual(x.Cond, y.Cond) &&
			StructuralEqual(x.TrueValue, y.TrueValue) &&
			StructuralEqual(x.FalseValue, y.FalseValue)
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Kind != y.Kind || x.Func != y.Func || x.ValueIndex != y.ValueIndex {
			return false
		}
		if x.Kind == CallIntrinsic && x.Name != y.Name {
			return false
		}
		return exprSlicesEqual(x.Args, y.Args)
	case *Reduce:
		y, ok := b.(*Reduce)
		if !ok || x.Combiner != y.Combiner || x.ValueIndex != y.ValueIndex {
			return false
		}
		if len(x.Axis) != len(y.Axis) {
			return false
		}
		for i := range x.Axis {
			if x.Axis[i] != y.Axis[i] {
				return false
			}
		}
		return exprSlicesEqual(x.Source, y.Source) && StructuralEqual(x.Condition, y.Condition)
	}
	return false
}

func exprSlicesEqual(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !StructuralEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
