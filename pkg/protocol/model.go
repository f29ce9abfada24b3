package protocol

import (
	"fmt"
	"slices"
)

// ModelConstraints fixes the valid parameter space for one model type.
type ModelConstraints struct {
	MinScalar       float64
	MaxScalar       float64
	MinDistribution float64
	MaxDistribution float64

	DistributionTypes []string
	OutputVariables   []string

	// Default resource demand for a run when the caller does not say.
	DefaultCPUs        int
	DefaultMemoryBytes uint64
}

// Models is the registry of model types this deployment can run.
var Models = map[string]ModelConstraints{
	"nwm": {
		MinScalar:          0,
		MaxScalar:          10,
		MinDistribution:    0,
		MaxDistribution:    10,
		DistributionTypes:  []string{"normal", "lognormal", "gaussian"},
		OutputVariables:    []string{"streamflow", "precipitation", "evapotranspiration"},
		DefaultCPUs:        4,
		DefaultMemoryBytes: 4 << 30,
	},
}

// ValidateModelRequest checks a model-exec request against the registry:
// the model must exist, the output variable must belong to it, and every
// parameter must fall inside the model's scalar or distribution bounds.
func ValidateModelRequest(msg *ModelExecRequestMessage) error {
	constraints, ok := Models[msg.Model]
	if !ok {
		return fmt.Errorf("unknown model %q", msg.Model)
	}

	if !slices.Contains(constraints.OutputVariables, msg.Output) {
		return fmt.Errorf("model %q has no output variable %q", msg.Model, msg.Output)
	}

	for name, param := range msg.Parameters {
		if err := validateParameter(name, param, constraints); err != nil {
			return err
		}
	}

	return nil
}

func validateParameter(name string, param Parameter, c ModelConstraints) error {
	if param.Scalar != nil {
		v := *param.Scalar
		if v < c.MinScalar || v > c.MaxScalar {
			return fmt.Errorf("parameter %q: scalar %v outside [%v, %v]", name, v, c.MinScalar, c.MaxScalar)
		}
		return nil
	}

	if param.Distribution != nil {
		d := param.Distribution
		if !slices.Contains(c.DistributionTypes, d.Type) {
			return fmt.Errorf("parameter %q: unsupported distribution type %q", name, d.Type)
		}
		if d.Min < c.MinDistribution {
			return fmt.Errorf("parameter %q: distribution min %v below %v", name, d.Min, c.MinDistribution)
		}
		if d.Max > c.MaxDistribution {
			return fmt.Errorf("parameter %q: distribution max %v above %v", name, d.Max, c.MaxDistribution)
		}
		if d.Min > d.Max {
			return fmt.Errorf("parameter %q: distribution min %v above max %v", name, d.Min, d.Max)
		}
		return nil
	}

	return fmt.Errorf("parameter %q has no value", name)
}

// ResourceDemand resolves the CPU/memory demand of a scheduler request,
// falling back to the model's defaults when the request leaves them zero.
func ResourceDemand(req *SchedulerRequestMessage) (int, uint64) {
	cpus, memory := req.CPUs, req.MemoryBytes
	if c, ok := Models[req.ModelRequest.Model]; ok {
		if cpus == 0 {
			cpus = c.DefaultCPUs
		}
		if memory == 0 {
			memory = c.DefaultMemoryBytes
		}
	}
	return cpus, memory
}
