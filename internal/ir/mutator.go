package ir

// MutateExpr rebuilds an expression bottom-up. f is applied to every node
// after its children have been rebuilt. Unchanged sub-trees keep their
// identity so callers can detect no-op rewrites by pointer comparison.
func MutateExpr(e Expr, f func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	var out Expr
	switch n := e.(type) {
	case *Var, *IntImm, *FloatImm, *StringImm:
		out = e
	case *Cast:
		v := MutateExpr(n.Value, f)
		if v == n.Value {
			out = n
		} else {
			out = &Cast{T: n.T, Value: v}
		}
	case *Add:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Add{A: a, B: b}
		}
	case *Sub:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Sub{A: a, B: b}
		}
	case *Mul:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Mul{A: a, B: b}
		}
	case *Div:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Div{A: a, B: b}
		}
	case *Mod:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Mod{A: a, B: b}
		}
	case *Min:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Min{A: a, B: b}
		}
	case *Max:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Max{A: a, B: b}
		}
	case *EQ:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &EQ{A: a, B: b}
		}
	case *NE:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &NE{A: a, B: b}
		}
	case *LT:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &LT{A: a, B: b}
		}
	case *LE:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &LE{A: a, B: b}
		}
	case *GT:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &GT{A: a, B: b}
		}
	case *GE:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &GE{A: a, B: b}
		}
	case *And:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &And{A: a, B: b}
		}
	case *Or:
		a, b := MutateExpr(n.A, f), MutateExpr(n.B, f)
		if a == n.A && b == n.B {
			out = n
		} else {
			out = &Or{A: a, B: b}
		}
	case *Not:
		a := MutateExpr(n.A, f)
		if a == n.A {
			out = n
		} else {
			out = &Not{A: a}
		}
	case *Select:
		c := MutateExpr(n.Cond, f)
		tv := MutateExpr(n.TrueValue, f)
		fv := MutateExpr(n.FalseValue, f)
		if c == n.Cond && tv == n.TrueValue && fv == n.FalseValue {
			out = n
		} else {
			out = &Select{Cond: c, TrueValue: tv, FalseValue: fv}
		}
	case *Call:
		args, changed := UpdateArray(n.Args, func(a Expr) Expr { return MutateExpr(a, f) })
		if !changed {
			out = n
		} else {
			out = &Call{T: n.T, Name: n.Name, Args: args, Kind: n.Kind, Func: n.Func, ValueIndex: n.ValueIndex}
		}
	case *Reduce:
		source, schanged := UpdateArray(n.Source, func(a Expr) Expr { return MutateExpr(a, f) })
		cond := MutateExpr(n.Condition, f)
		if !schanged && cond == n.Condition {
			out = n
		} else {
			out = &Reduce{Combiner: n.Combiner, Source: source, Axis: n.Axis, Condition: cond, ValueIndex: n.ValueIndex}
		}
	default:
		out = e
	}
	return f(out)
}

// MutateStmt rebuilds a statement bottom-up, applying fe to every contained
// expression and fs to every statement node after its children.
func MutateStmt(s Stmt, fe func(Expr) Expr, fs func(Stmt) Stmt) Stmt {
	if s == nil {
		return nil
	}
	if fe == nil {
		fe = func(e Expr) Expr { return e }
	}
	if fs == nil {
		fs = func(st Stmt) Stmt { return st }
	}
	mutE := func(e Expr) Expr { return MutateExpr(e, fe) }
	var out Stmt
	switch n := s.(type) {
	case *For:
		min, extent := mutE(n.Min), mutE(n.Extent)
		body := MutateStmt(n.Body, fe, fs)
		if min == n.Min && extent == n.Extent && body == n.Body {
			out = n
		} else {
			out = &For{
				LoopVar: n.LoopVar, Min: min, Extent: extent,
				ForType: n.ForType, DeviceAPI: n.DeviceAPI, Body: body,
				AnnotateKeys: n.AnnotateKeys, AnnotateValues: n.AnnotateValues,
			}
		}
	case *AttrStmt:
		value := mutE(n.Value)
		body := MutateStmt(n.Body, fe, fs)
		if value == n.Value && body == n.Body {
			out = n
		} else {
			out = &AttrStmt{Node: n.Node, AttrKey: n.AttrKey, Value: value, Body: body}
		}
	case *Store:
		value, index, pred := mutE(n.Value), mutE(n.Index), mutE(n.Predicate)
		if value == n.Value && index == n.Index && pred == n.Predicate {
			out = n
		} else {
			out = &Store{BufferVar: n.BufferVar, Value: value, Index: index, Predicate: pred}
		}
	case *Evaluate:
		value := mutE(n.Value)
		if value == n.Value {
			out = n
		} else {
			out = &Evaluate{Value: value}
		}
	case *Seq:
		changed := false
		stmts := make([]Stmt, len(n.Stmts))
		for i, st := range n.Stmts {
			stmts[i] = MutateStmt(st, fe, fs)
			if stmts[i] != st {
				changed = true
			}
		}
		if !changed {
			out = n
		} else {
			out = &Seq{Stmts: stmts}
		}
	case *IfThenElse:
		cond := mutE(n.Cond)
		then := MutateStmt(n.Then, fe, fs)
		els := MutateStmt(n.Else, fe, fs)
		if cond == n.Cond && then == n.Then && els == n.Else {
			out = n
		} else {
			out = &IfThenElse{Cond: cond, Then: then, Else: els}
		}
	case *Reuse:
		body := MutateStmt(n.Body, fe, fs)
		if body == n.Body {
			out = n
		} else {
			out = &Reuse{BufferVar: n.BufferVar, Body: body}
		}
	case *Partition:
		out = s
	default:
		out = s
	}
	return fs(out)
}

// Substitute replaces free variables in e according to vsub.
func Substitute(e Expr, vsub map[*Var]Expr) Expr {
	if len(vsub) == 0 {
		return e
	}
	return MutateExpr(e, func(n Expr) Expr {
		if v, ok := n.(*Var); ok {
			if repl, ok := vsub[v]; ok {
				return repl
			}
		}
		return n
	})
}

// UpdateArray maps f over exprs, reusing the input slice when every element
// is unchanged. The second result reports whether anything changed.
func UpdateArray(exprs []Expr, f func(Expr) Expr) ([]Expr, bool) {
	changed := false
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = f(e)
		if out[i] != e {
			changed = true
		}
	}
	if !changed {
		return exprs, false
	}
	return out, true
}

// InlineCall replaces every read of op inside e by body with the formal
// args substituted by the actual call indices. The replacement is applied
// recursively until no read of op remains in the inlined body.
func InlineCall(e Expr, op Operation, args []*Var, body Expr) Expr {
	return MutateExpr(e, func(n Expr) Expr {
		call, ok := n.(*Call)
		if !ok || call.Kind != CallHalide || call.Func != op {
			return n
		}
		if len(call.Args) != len(args) {
			return n
		}
		vsub := make(map[*Var]Expr, len(args))
		for i, v := range args {
			vsub[v] = call.Args[i]
		}
		return Substitute(body, vsub)
	})
}
