package schedule

import (
	"io"

	cblog "github.com/charmbracelet/log"

	"github.com/JThr3e/heterocl/internal/ir"
	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

// Schedule is the collection of stages for a dataflow graph, ordered so
// every producer precedes its consumers.
type Schedule struct {
	// Outputs are the user-declared sink operations.
	Outputs []ir.Operation
	// Stages holds one stage per operation, in dependency order.
	Stages []*Stage
	// Groups holds the group stages created by CreateGroup.
	Groups []*Stage
	// StageMap maps operations to their stages. New operations created by
	// dataflow rewrites are added; origin operations stay resolvable
	// through the lookup cache.
	StageMap map[ir.Operation]*Stage
	// StageBuffMap maps extern output buffers to their stages.
	StageBuffMap map[*ir.Buffer]*Stage
	// ExternIterVarMap records rebase renamings for external consumers.
	ExternIterVarMap map[*ir.IterVar]*ir.IterVar

	// op2stageCache resolves current and origin operations to stages. It
	// is built on demand and dropped by InvalidateCache.
	op2stageCache map[ir.Operation]*Stage

	log *cblog.Logger
}

// Create builds a schedule for the outputs and every operation they depend
// on, producers first.
func Create(outputs ...ir.Operation) *Schedule {
	sch := &Schedule{
		Outputs:          append([]ir.Operation(nil), outputs...),
		StageMap:         make(map[ir.Operation]*Stage),
		StageBuffMap:     make(map[*ir.Buffer]*Stage),
		ExternIterVarMap: make(map[*ir.IterVar]*ir.IterVar),
		log:              cblog.New(io.Discard),
	}
	isOutput := make(map[ir.Operation]bool, len(outputs))
	for _, op := range outputs {
		isOutput[op] = true
	}
	g := CreateReadGraph(sch.Outputs)
	for _, op := range PostDFSOrder(sch.Outputs, g) {
		stage := NewStage(op)
		stage.IsOutput = isOutput[op]
		sch.Stages = append(sch.Stages, stage)
		sch.StageMap[op] = stage
		if extern, ok := op.(*ir.ExternOp); ok {
			for _, buf := range extern.OutputPlaceholders() {
				sch.StageBuffMap[buf] = stage
			}
		}
	}
	return sch
}

// SetLogger installs a logger used to trace dataflow rewrites.
func (sch *Schedule) SetLogger(log *cblog.Logger) {
	sch.log = log
}

// InvalidateCache drops the on-demand operation lookup cache.
func (sch *Schedule) InvalidateCache() {
	sch.op2stageCache = nil
}

// initCache builds the lookup cache over current and origin operations.
func (sch *Schedule) initCache() {
	if sch.op2stageCache != nil {
		return
	}
	cache := make(map[ir.Operation]*Stage, len(sch.Stages)*2)
	for _, s := range sch.Stages {
		if s.Op != nil {
			cache[s.Op] = s
		}
		if s.OriginOp != nil {
			cache[s.OriginOp] = s
		}
	}
	sch.op2stageCache = cache
}

// StageFor returns the stage scheduling op.
func (sch *Schedule) StageFor(op ir.Operation) (*Stage, error) {
	sch.initCache()
	if s, ok := sch.op2stageCache[op]; ok {
		return s, nil
	}
	return nil, scherrors.NewValidationError("stage", "no stage for operation "+op.Name(), nil)
}

// StageForTensor returns the stage producing the tensor.
func (sch *Schedule) StageForTensor(t ir.Tensor) (*Stage, error) {
	return sch.StageFor(t.Op)
}

func (sch *Schedule) stageIndex(target *Stage) int {
	for i, s := range sch.Stages {
		if s == target {
			return i
		}
	}
	return -1
}

// insertStage places s at index pos, shifting later stages, and drops the
// lookup cache so the new stage resolves.
func (sch *Schedule) insertStage(pos int, s *Stage) {
	sch.Stages = append(sch.Stages, nil)
	copy(sch.Stages[pos+1:], sch.Stages[pos:])
	sch.Stages[pos] = s
	sch.InvalidateCache()
}

// inheritGroup places child in the same group as of, maintaining the child
// count on the group.
func inheritGroup(child, of *Stage) {
	child.Group = of.Group
	if child.Group != nil {
		child.Group.NumChildStages++
	}
}

// Copy deep-copies the schedule shell. Stages are cloned and relinked;
// operations are immutable and shared.
func (sch *Schedule) Copy() *Schedule {
	out := &Schedule{
		Outputs:          append([]ir.Operation(nil), sch.Outputs...),
		StageMap:         make(map[ir.Operation]*Stage, len(sch.StageMap)),
		StageBuffMap:     make(map[*ir.Buffer]*Stage, len(sch.StageBuffMap)),
		ExternIterVarMap: make(map[*ir.IterVar]*ir.IterVar, len(sch.ExternIterVarMap)),
		log:              sch.log,
	}
	smap := make(map[*Stage]*Stage, len(sch.Stages)+len(sch.Groups))
	for _, s := range sch.Stages {
		cp := s.clone()
		smap[s] = cp
		out.Stages = append(out.Stages, cp)
	}
	for _, g := range sch.Groups {
		cp := g.clone()
		smap[g] = cp
		out.Groups = append(out.Groups, cp)
	}
	relink := func(s *Stage) {
		if s.AttachStage != nil {
			if repl, ok := smap[s.AttachStage]; ok {
				s.AttachStage = repl
			}
		}
		if s.Group != nil {
			if repl, ok := smap[s.Group]; ok {
				s.Group = repl
			}
		}
	}
	for _, s := range out.Stages {
		relink(s)
	}
	for _, g := range out.Groups {
		relink(g)
	}
	for op, s := range sch.StageMap {
		if repl, ok := smap[s]; ok {
			out.StageMap[op] = repl
		}
	}
	for buf, s := range sch.StageBuffMap {
		if repl, ok := smap[s]; ok {
			out.StageBuffMap[buf] = repl
		}
	}
	for k, v := range sch.ExternIterVarMap {
		out.ExternIterVarMap[k] = v
	}
	return out
}

// CreateGroup groups the operations between outputs and inputs under a new
// group stage. When includeInputs is set, reachable input producers join
// the group too.
func (sch *Schedule) CreateGroup(outputs, inputs []ir.Tensor, includeInputs bool) (*Stage, error) {
	sch.InvalidateCache()
	inputSet := make(map[ir.Operation]bool, len(inputs))
	for _, t := range inputs {
		inputSet[t.Op] = true
	}
	member := make(map[*Stage]bool)
	var visit func(op ir.Operation) error
	visit = func(op ir.Operation) error {
		s, err := sch.StageFor(op)
		if err != nil {
			return err
		}
		if member[s] {
			return nil
		}
		if inputSet[op] && !includeInputs {
			return nil
		}
		member[s] = true
		if inputSet[op] {
			return nil
		}
		for _, t := range op.InputTensors() {
			if err := visit(t.Op); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range outputs {
		if err := visit(t.Op); err != nil {
			return nil, err
		}
	}
	if len(member) == 0 {
		return nil, scherrors.NewValidationError("create_group", "group has no member stages", nil)
	}
	// The group parent is the common group of all members; membership
	// stays a forest.
	var parent *Stage
	first := true
	for s := range member {
		if first {
			parent = s.Group
			first = false
		} else if parent != s.Group {
			return nil, scherrors.NewValidationError("create_group", "member stages do not share a common group", nil)
		}
	}
	gstage := &Stage{AttachType: AttachGroupRoot, Group: parent}
	if parent != nil {
		parent.NumChildStages++
	}
	for s := range member {
		s.Group = gstage
		gstage.NumChildStages++
		if parent != nil {
			parent.NumChildStages--
		}
	}
	sch.Groups = append(sch.Groups, gstage)
	return gstage, nil
}
