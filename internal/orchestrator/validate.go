package orchestrator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

var validate = validator.New()

// ValidateSpec checks a ServiceSpec's struct tags before it is ever
// handed to a generator. Generators assume a validated spec and do not
// re-check required fields themselves.
func ValidateSpec(spec *nthlayer.ServiceSpec) error {
	if err := validate.Struct(spec); err != nil {
		return fmt.Errorf("orchestrator: invalid service spec %q: %w", spec.Name, err)
	}
	for i := range spec.SLOs {
		if err := validate.Struct(&spec.SLOs[i]); err != nil {
			return fmt.Errorf("orchestrator: invalid slo %q on %q: %w", spec.SLOs[i].Name, spec.Name, err)
		}
	}
	for i := range spec.Dependencies {
		if err := validate.Struct(&spec.Dependencies[i]); err != nil {
			return fmt.Errorf("orchestrator: invalid dependency on %q: %w", spec.Name, err)
		}
	}
	return nil
}
