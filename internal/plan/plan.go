// Package plan models declarative schedule plans: a named example graph and
// an ordered list of primitives applied to its schedule.
package plan

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// Plan is the top-level schedule plan document.
type Plan struct {
	Version    string      `yaml:"version" validate:"omitempty"`
	Graph      string      `yaml:"graph" validate:"required,graph_name"`
	Primitives []Primitive `yaml:"primitives" validate:"dive"`
}

// Primitive is one schedule directive. Op selects the primitive; the other
// fields parameterize it and are checked per op by ValidatePlan.
type Primitive struct {
	Op      string   `yaml:"op" validate:"required,oneof=split split_by_nparts fuse reorder tile compute_at compute_inline compute_root bind vectorize unroll parallel pipeline pragma storage_align double_buffer cache_read cache_write rfactor partition reshape"`
	Stage   string   `yaml:"stage"`
	Tensor  string   `yaml:"tensor"`
	Axis    string   `yaml:"axis"`
	Axes    []string `yaml:"axes"`
	Factor  int      `yaml:"factor" validate:"gte=0"`
	NParts  int      `yaml:"nparts" validate:"gte=0"`
	XFactor int      `yaml:"x_factor" validate:"gte=0"`
	YFactor int      `yaml:"y_factor" validate:"gte=0"`
	Scope   string   `yaml:"scope"`
	Readers []string `yaml:"readers"`
	// FactorAxis places the fresh rfactor axis; negative counts from the
	// right.
	FactorAxis *int   `yaml:"factor_axis"`
	Parent     string `yaml:"parent"`
	Thread     string `yaml:"thread"`
	// InitiationInterval applies to pipeline.
	InitiationInterval int     `yaml:"initiation_interval" validate:"gte=0"`
	Pragma             string  `yaml:"pragma"`
	AlignFactor        int     `yaml:"align_factor" validate:"gte=0"`
	AlignOffset        int     `yaml:"align_offset"`
	Dim                int     `yaml:"dim" validate:"gte=0"`
	PartitionType      string  `yaml:"partition_type" validate:"omitempty,oneof=complete block cyclic"`
	Shape              []int64 `yaml:"shape" validate:"dive,gt=0"`
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance configures and returns the shared validator used by the
// plan package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("graph_name", func(fl validator.FieldLevel) bool {
			_, ok := graphBuilders[fl.Field().String()]
			return ok
		})
		validateInst = v
	})
	return validateInst
}
