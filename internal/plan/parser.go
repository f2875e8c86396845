package plan

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	scherrors "github.com/JThr3e/heterocl/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParsePlan loads a schedule plan from disk, validates it, and returns the
// resulting model.
func ParsePlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scherrors.NewParseError(path, 0, err)
	}
	return parsePlanBytes(path, data)
}

func parsePlanBytes(path string, data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, scherrors.NewParseError(path, extractLine(err), err)
	}
	if err := ValidatePlan(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidatePlan checks the structural constraints of a parsed plan.
func ValidatePlan(p *Plan) error {
	if err := validatorInstance().Struct(p); err != nil {
		return scherrors.NewValidationError("plan", err.Error(), err)
	}
	for i, prim := range p.Primitives {
		if err := validatePrimitive(&prim); err != nil {
			return scherrors.NewValidationError(fmt.Sprintf("primitives[%d]", i), err.Error(), err)
		}
	}
	return nil
}

func validatePrimitive(prim *Primitive) error {
	requireStage := func() error {
		if prim.Stage == "" {
			return fmt.Errorf("%s requires a stage", prim.Op)
		}
		return nil
	}
	requireAxis := func() error {
		if prim.Axis == "" {
			return fmt.Errorf("%s requires an axis", prim.Op)
		}
		return nil
	}
	requireTensor := func() error {
		if prim.Tensor == "" {
			return fmt.Errorf("%s requires a tensor", prim.Op)
		}
		return nil
	}
	switch prim.Op {
	case "split":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
		if prim.Factor <= 0 {
			return fmt.Errorf("split requires a positive factor")
		}
	case "split_by_nparts":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
		if prim.NParts <= 0 {
			return fmt.Errorf("split_by_nparts requires positive nparts")
		}
	case "fuse", "reorder":
		if err := requireStage(); err != nil {
			return err
		}
		if len(prim.Axes) < 1 {
			return fmt.Errorf("%s requires axes", prim.Op)
		}
	case "tile":
		if err := requireStage(); err != nil {
			return err
		}
		if len(prim.Axes) != 2 {
			return fmt.Errorf("tile requires exactly two axes")
		}
		if prim.XFactor <= 0 || prim.YFactor <= 0 {
			return fmt.Errorf("tile requires positive x_factor and y_factor")
		}
	case "compute_at":
		if err := requireStage(); err != nil {
			return err
		}
		if prim.Parent == "" {
			return fmt.Errorf("compute_at requires a parent")
		}
		if err := requireAxis(); err != nil {
			return err
		}
	case "compute_inline", "compute_root", "double_buffer":
		if err := requireStage(); err != nil {
			return err
		}
	case "bind":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
		if prim.Thread == "" {
			return fmt.Errorf("bind requires a thread")
		}
	case "vectorize", "unroll", "parallel", "pipeline":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
	case "pragma":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
		if prim.Pragma == "" {
			return fmt.Errorf("pragma requires a pragma string")
		}
	case "storage_align":
		if err := requireStage(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
		if prim.AlignFactor <= 0 {
			return fmt.Errorf("storage_align requires a positive align_factor")
		}
	case "cache_read":
		if err := requireTensor(); err != nil {
			return err
		}
		if prim.Scope == "" {
			return fmt.Errorf("cache_read requires a scope")
		}
	case "cache_write":
		if err := requireTensor(); err != nil {
			return err
		}
		if prim.Scope == "" {
			return fmt.Errorf("cache_write requires a scope")
		}
	case "rfactor":
		if err := requireTensor(); err != nil {
			return err
		}
		if err := requireAxis(); err != nil {
			return err
		}
	case "partition":
		if err := requireTensor(); err != nil {
			return err
		}
		if prim.Factor <= 0 {
			return fmt.Errorf("partition requires a positive factor")
		}
	case "reshape":
		if err := requireTensor(); err != nil {
			return err
		}
		if len(prim.Shape) == 0 {
			return fmt.Errorf("reshape requires a shape")
		}
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
