package protocol

import (
	"encoding/json"
	"testing"
)

func TestValidateModelRequest(t *testing.T) {
	tests := []struct {
		name    string
		msg     ModelExecRequestMessage
		wantErr bool
	}{
		{
			name: "valid scalar parameters",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"hydraulic_conductivity": ScalarParam(4.2),
				},
			},
		},
		{
			name: "valid distribution parameter",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "precipitation",
				Parameters: map[string]Parameter{
					"land_cover": DistributionParam(0, 10, "normal"),
				},
			},
		},
		{
			name: "unknown model",
			msg: ModelExecRequestMessage{
				Model:      "glacier",
				Version:    1.0,
				Output:     "streamflow",
				Parameters: map[string]Parameter{},
			},
			wantErr: true,
		},
		{
			name: "unknown output variable",
			msg: ModelExecRequestMessage{
				Model:      "nwm",
				Version:    2.0,
				Output:     "soil_acidity",
				Parameters: map[string]Parameter{},
			},
			wantErr: true,
		},
		{
			name: "scalar above maximum",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"hydraulic_conductivity": ScalarParam(10.5),
				},
			},
			wantErr: true,
		},
		{
			name: "scalar below minimum",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"hydraulic_conductivity": ScalarParam(-0.1),
				},
			},
			wantErr: true,
		},
		{
			name: "unsupported distribution type",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"land_cover": DistributionParam(0, 10, "poisson"),
				},
			},
			wantErr: true,
		},
		{
			name: "distribution max above bound",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"land_cover": DistributionParam(0, 11, "normal"),
				},
			},
			wantErr: true,
		},
		{
			name: "distribution min above max",
			msg: ModelExecRequestMessage{
				Model:   "nwm",
				Version: 2.0,
				Output:  "streamflow",
				Parameters: map[string]Parameter{
					"land_cover": DistributionParam(7, 3, "normal"),
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelRequest(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModelRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParameterUnmarshal(t *testing.T) {
	var msg ModelExecRequestMessage
	payload := `{
		"model": "nwm",
		"version": 2.0,
		"output": "streamflow",
		"parameters": {
			"hydraulic_conductivity": 4.2,
			"land_cover": {"min": 0, "max": 10, "type": "lognormal"}
		}
	}`

	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	scalar := msg.Parameters["hydraulic_conductivity"]
	if !scalar.IsScalar() || *scalar.Scalar != 4.2 {
		t.Errorf("hydraulic_conductivity = %+v, want scalar 4.2", scalar)
	}

	dist := msg.Parameters["land_cover"]
	if dist.Distribution == nil {
		t.Fatalf("land_cover = %+v, want distribution", dist)
	}
	if dist.Distribution.Type != "lognormal" || dist.Distribution.Max != 10 {
		t.Errorf("land_cover distribution = %+v", dist.Distribution)
	}
}

func TestParameterUnmarshalRejectsOther(t *testing.T) {
	var p Parameter
	if err := json.Unmarshal([]byte(`"a string"`), &p); err == nil {
		t.Errorf("expected error for string parameter")
	}

	// null must not slip through as scalar 0.
	if err := json.Unmarshal([]byte(`null`), &p); err == nil {
		t.Errorf("expected error for null parameter")
	}

	var msg ModelExecRequestMessage
	payload := `{"model": "nwm", "version": 2.0, "output": "streamflow", "parameters": {"land_cover": null}}`
	if err := json.Unmarshal([]byte(payload), &msg); err == nil {
		t.Errorf("expected error for null parameter inside a request")
	}
}

func TestResourceDemand(t *testing.T) {
	req := &SchedulerRequestMessage{
		ModelRequest: ModelExecRequestMessage{Model: "nwm"},
		UserID:       "alice",
	}

	cpus, memory := ResourceDemand(req)
	if cpus != 4 || memory != 4<<30 {
		t.Errorf("ResourceDemand() = (%d, %d), want model defaults (4, %d)", cpus, memory, uint64(4<<30))
	}

	req.CPUs = 16
	req.MemoryBytes = 1 << 30
	cpus, memory = ResourceDemand(req)
	if cpus != 16 || memory != 1<<30 {
		t.Errorf("ResourceDemand() = (%d, %d), want explicit (16, %d)", cpus, memory, uint64(1<<30))
	}
}

func TestDeserializeSchedulerResponse(t *testing.T) {
	raw := `{"success": true, "reason": "Job Enqueued", "message": "", "data": {"job_id": 7, "node_id": "n1"}}`
	resp, err := DeserializeSchedulerResponse([]byte(raw))
	if err != nil {
		t.Fatalf("DeserializeSchedulerResponse() error = %v", err)
	}
	if !resp.Success || resp.JobID() != 7 {
		t.Errorf("resp = %+v, JobID = %d", resp, resp.JobID())
	}

	if _, err := DeserializeSchedulerResponse([]byte(`{"valid": true}`)); err == nil {
		t.Errorf("expected error for payload without success field")
	}
}
