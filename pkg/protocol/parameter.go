package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Distribution describes a parameter sampled from a bounded distribution.
type Distribution struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Type string  `json:"type"`
}

// Parameter is either a single scalar value or a distribution. On the wire a
// scalar is a bare JSON number and a distribution is an object with min, max,
// and type.
type Parameter struct {
	Scalar       *float64
	Distribution *Distribution
}

// IsScalar reports whether the parameter carries a scalar value.
func (p Parameter) IsScalar() bool {
	return p.Scalar != nil
}

// UnmarshalJSON accepts either form and rejects everything else. A literal
// null would otherwise unmarshal into a float64 as a silent no-op and turn
// into scalar 0, so it is rejected up front.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("parameter has no value")
	}

	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		p.Scalar = &scalar
		p.Distribution = nil
		return nil
	}

	var dist Distribution
	if err := json.Unmarshal(data, &dist); err == nil {
		if dist.Type == "" {
			return fmt.Errorf("distribution parameter missing type")
		}
		p.Scalar = nil
		p.Distribution = &dist
		return nil
	}

	return fmt.Errorf("parameter must be a number or a distribution object")
}

// MarshalJSON writes the wire form of whichever variant is set.
func (p Parameter) MarshalJSON() ([]byte, error) {
	if p.Scalar != nil {
		return json.Marshal(*p.Scalar)
	}
	if p.Distribution != nil {
		return json.Marshal(*p.Distribution)
	}
	return nil, fmt.Errorf("parameter has neither scalar nor distribution value")
}

// ScalarParam is a convenience constructor used by tests and callers.
func ScalarParam(v float64) Parameter {
	return Parameter{Scalar: &v}
}

// DistributionParam is a convenience constructor used by tests and callers.
func DistributionParam(min, max float64, distType string) Parameter {
	return Parameter{Distribution: &Distribution{Min: min, Max: max, Type: distType}}
}
