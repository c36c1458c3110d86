package agents

import (
	"fmt"

	"secops-orchestrator/core/models"
)

// paramsAs narrows the generic parameters to the type a handler expects
func paramsAs[T models.Parameters](params models.Parameters) (T, error) {
	p, ok := params.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: expected %T, got %T", models.ErrInvalidParameters, zero, params)
	}
	return p, nil
}
