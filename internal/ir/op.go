package ir

import "fmt"

// Operation produces one or more tensors. Operations are immutable once
// constructed; rewrites build replacements and swap references.
type Operation interface {
	// Name returns the operation name.
	Name() string
	// OpTag returns the schedule tag.
	OpTag() string
	// NumOutputs returns the number of output tensors.
	NumOutputs() int
	// Output returns the i-th output tensor.
	Output(i int) Tensor
	// OutputDtype returns the element type of the i-th output.
	OutputDtype(i int) DType
	// OutputShape returns the shape of the i-th output.
	OutputShape(i int) []Expr
	// RootIterVars returns the iteration variables declared on the
	// operation before any scheduling.
	RootIterVars() []*IterVar
	// InputTensors returns the tensors this operation reads, each listed
	// once in first-occurrence order.
	InputTensors() []Tensor
	// ReplaceInputs substitutes input tensors according to rmap and
	// returns self when nothing changed.
	ReplaceInputs(self Operation, rmap map[Tensor]Tensor) Operation
}

// Tensor identifies one output of an operation. The zero value is undefined.
// Tensors are comparable and used as map keys during dataflow rewrites.
type Tensor struct {
	Op         Operation
	ValueIndex int
}

// Defined reports whether the tensor refers to an operation.
func (t Tensor) Defined() bool { return t.Op != nil }

// Dtype returns the tensor element type.
func (t Tensor) Dtype() DType { return t.Op.OutputDtype(t.ValueIndex) }

// Shape returns the tensor shape.
func (t Tensor) Shape() []Expr { return t.Op.OutputShape(t.ValueIndex) }

// Name returns a display name, disambiguated for multi-output operations.
func (t Tensor) Name() string {
	if !t.Defined() {
		return "<undefined>"
	}
	if t.Op.NumOutputs() != 1 {
		return fmt.Sprintf("%s.v%d", t.Op.Name(), t.ValueIndex)
	}
	return t.Op.Name()
}

// Access builds an element read of the tensor at the given indices.
func (t Tensor) Access(indices ...Expr) Expr {
	args := make([]Expr, len(indices))
	copy(args, indices)
	return &Call{
		T:          t.Dtype(),
		Name:       t.Op.Name(),
		Args:       args,
		Kind:       CallHalide,
		Func:       t.Op,
		ValueIndex: t.ValueIndex,
	}
}

// Buffer is a symbolic data buffer backing an extern operation input or
// output. Shape is mutable to support in-place reshape.
type Buffer struct {
	Data       *Var
	T          DType
	Shape      []Expr
	Strides    []Expr
	ElemOffset Expr
	Name       string
	Scope      string
}

// NewBuffer creates a buffer with a fresh handle variable.
func NewBuffer(dtype DType, shape []Expr, name string) *Buffer {
	return &Buffer{
		Data:  NewVar(name, Handle),
		T:     dtype,
		Shape: shape,
		Name:  name,
	}
}

// PlaceholderOp is an external input with a declared shape and type.
type PlaceholderOp struct {
	name  string
	shape []Expr
	dtype DType
}

// NewPlaceholderOp constructs a placeholder operation.
func NewPlaceholderOp(name string, shape []Expr, dtype DType) *PlaceholderOp {
	return &PlaceholderOp{name: name, shape: shape, dtype: dtype}
}

// Name implements Operation.
func (op *PlaceholderOp) Name() string { return op.name }

// OpTag implements Operation.
func (op *PlaceholderOp) OpTag() string { return "" }

// NumOutputs implements Operation.
func (op *PlaceholderOp) NumOutputs() int { return 1 }

// Output implements Operation.
func (op *PlaceholderOp) Output(i int) Tensor { return Tensor{Op: op, ValueIndex: i} }

// OutputDtype implements Operation.
func (op *PlaceholderOp) OutputDtype(int) DType { return op.dtype }

// OutputShape implements Operation.
func (op *PlaceholderOp) OutputShape(int) []Expr { return op.shape }

// RootIterVars implements Operation.
func (op *PlaceholderOp) RootIterVars() []*IterVar { return nil }

// InputTensors implements Operation.
func (op *PlaceholderOp) InputTensors() []Tensor { return nil }

// ReplaceInputs implements Operation.
func (op *PlaceholderOp) ReplaceInputs(self Operation, _ map[Tensor]Tensor) Operation {
	return self
}

// ComputeOp defines its outputs as pure element expressions over Axis. A
// reduction body declares its reduction axes in ReduceAxis.
type ComputeOp struct {
	name       string
	tag        string
	axis       []*IterVar
	reduceAxis []*IterVar
	body       []Expr
}

// NewComputeOp constructs a compute operation. When the body is a Reduce,
// the reduction axes are lifted from it.
func NewComputeOp(name, tag string, axis []*IterVar, body []Expr) *ComputeOp {
	op := &ComputeOp{name: name, tag: tag, axis: axis, body: body}
	if len(body) > 0 {
		if red, ok := body[0].(*Reduce); ok {
			op.reduceAxis = red.Axis
		}
	}
	return op
}

// Name implements Operation.
func (op *ComputeOp) Name() string { return op.name }

// OpTag implements Operation.
func (op *ComputeOp) OpTag() string { return op.tag }

// Axis returns the data parallel iteration variables.
func (op *ComputeOp) Axis() []*IterVar { return op.axis }

// ReduceAxis returns the reduction iteration variables, if any.
func (op *ComputeOp) ReduceAxis() []*IterVar { return op.reduceAxis }

// Body returns the output expressions.
func (op *ComputeOp) Body() []Expr { return op.body }

// NumOutputs implements Operation.
func (op *ComputeOp) NumOutputs() int { return len(op.body) }

// Output implements Operation.
func (op *ComputeOp) Output(i int) Tensor { return Tensor{Op: op, ValueIndex: i} }

// OutputDtype implements Operation.
func (op *ComputeOp) OutputDtype(i int) DType { return op.body[i].Dtype() }

// OutputShape implements Operation.
func (op *ComputeOp) OutputShape(int) []Expr {
	shape := make([]Expr, len(op.axis))
	for i, iv := range op.axis {
		shape[i] = iv.Dom.Extent
	}
	return shape
}

// RootIterVars implements Operation.
func (op *ComputeOp) RootIterVars() []*IterVar {
	root := make([]*IterVar, 0, len(op.axis)+len(op.reduceAxis))
	root = append(root, op.axis...)
	root = append(root, op.reduceAxis...)
	return root
}

// InputTensors implements Operation.
func (op *ComputeOp) InputTensors() []Tensor {
	var inputs []Tensor
	seen := make(map[Tensor]bool)
	visit := func(e Expr) Expr {
		if call, ok := e.(*Call); ok && call.Kind == CallHalide && call.Func != nil {
			t := Tensor{Op: call.Func, ValueIndex: call.ValueIndex}
			if !seen[t] {
				seen[t] = true
				inputs = append(inputs, t)
			}
		}
		return e
	}
	for _, b := range op.body {
		MutateExpr(b, visit)
	}
	return inputs
}

// ReplaceInputs implements Operation.
func (op *ComputeOp) ReplaceInputs(self Operation, rmap map[Tensor]Tensor) Operation {
	newBody, changed := UpdateArray(op.body, func(e Expr) Expr {
		return replaceTensorReads(e, rmap)
	})
	if !changed {
		return self
	}
	return NewComputeOp(op.name, op.tag, op.axis, newBody)
}

// ExternOp wraps an opaque imperative body with declared input and output
// placeholders.
type ExternOp struct {
	name               string
	tag                string
	axis               []*IterVar
	inputs             []Tensor
	inputPlaceholders  []*Buffer
	outputPlaceholders []*Buffer
	body               Stmt
}

// NewExternOp constructs an extern operation.
func NewExternOp(name, tag string, axis []*IterVar, inputs []Tensor,
	inputPlaceholders, outputPlaceholders []*Buffer, body Stmt) *ExternOp {
	return &ExternOp{
		name:               name,
		tag:                tag,
		axis:               axis,
		inputs:             inputs,
		inputPlaceholders:  inputPlaceholders,
		outputPlaceholders: outputPlaceholders,
		body:               body,
	}
}

// Name implements Operation.
func (op *ExternOp) Name() string { return op.name }

// OpTag implements Operation.
func (op *ExternOp) OpTag() string { return op.tag }

// Axis returns the declared iteration variables.
func (op *ExternOp) Axis() []*IterVar { return op.axis }

// Inputs returns the input tensors.
func (op *ExternOp) Inputs() []Tensor { return op.inputs }

// InputPlaceholders returns the buffers bound to the inputs.
func (op *ExternOp) InputPlaceholders() []*Buffer { return op.inputPlaceholders }

// OutputPlaceholders returns the buffers bound to the outputs.
func (op *ExternOp) OutputPlaceholders() []*Buffer { return op.outputPlaceholders }

// Body returns the imperative body.
func (op *ExternOp) Body() Stmt { return op.body }

// NumOutputs implements Operation.
func (op *ExternOp) NumOutputs() int { return len(op.outputPlaceholders) }

// Output implements Operation.
func (op *ExternOp) Output(i int) Tensor { return Tensor{Op: op, ValueIndex: i} }

// OutputDtype implements Operation.
func (op *ExternOp) OutputDtype(i int) DType { return op.outputPlaceholders[i].T }

// OutputShape implements Operation.
func (op *ExternOp) OutputShape(i int) []Expr { return op.outputPlaceholders[i].Shape }

// RootIterVars implements Operation.
func (op *ExternOp) RootIterVars() []*IterVar { return op.axis }

// InputTensors implements Operation.
func (op *ExternOp) InputTensors() []Tensor {
	inputs := make([]Tensor, len(op.inputs))
	copy(inputs, op.inputs)
	return inputs
}

// ReplaceInputs implements Operation.
func (op *ExternOp) ReplaceInputs(self Operation, rmap map[Tensor]Tensor) Operation {
	changed := false
	newInputs := make([]Tensor, len(op.inputs))
	for i, t := range op.inputs {
		if repl, ok := rmap[t]; ok {
			newInputs[i] = repl
			changed = true
		} else {
			newInputs[i] = t
		}
	}
	if !changed {
		return self
	}
	return NewExternOp(op.name, op.tag, op.axis, newInputs,
		op.inputPlaceholders, op.outputPlaceholders, op.body)
}

// replaceTensorReads substitutes tensor reads in e according to rmap.
func replaceTensorReads(e Expr, rmap map[Tensor]Tensor) Expr {
	return MutateExpr(e, func(n Expr) Expr {
		call, ok := n.(*Call)
		if !ok || call.Kind != CallHalide || call.Func == nil {
			return n
		}
		t := Tensor{Op: call.Func, ValueIndex: call.ValueIndex}
		repl, ok := rmap[t]
		if !ok {
			return n
		}
		return &Call{
			T:          call.T,
			Name:       repl.Op.Name(),
			Args:       call.Args,
			Kind:       CallHalide,
			Func:       repl.Op,
			ValueIndex: repl.ValueIndex,
		}
	})
}
