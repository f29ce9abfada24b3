// Package protocol classifies, validates, and (de)serializes the JSON frames
// exchanged over hydromaas sockets. Classification is schema-driven: each
// message kind is described by an embedded JSON Schema document, so adding a
// kind means adding a schema, not another round of field inspection.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageKind is the classified category of an inbound payload.
type MessageKind string

const (
	KindInvalid          MessageKind = "INVALID"
	KindSessionInit      MessageKind = "SESSION_INIT"
	KindModelExecRequest MessageKind = "MODEL_EXEC_REQUEST"
	KindSchedulerRequest MessageKind = "SCHEDULER_REQUEST"
	KindNodeRegister     MessageKind = "NODE_REGISTER"
	KindNodeHeartbeat    MessageKind = "NODE_HEARTBEAT"
)

// Wire values for the explicit message_type discriminator. The legacy
// protocol discriminated purely by shape; the field is optional on inbound
// frames so old clients keep working.
const (
	TypeSessionInit      = "session_init"
	TypeModelExecRequest = "model_exec_request"
	TypeSchedulerRequest = "scheduler_request"
	TypeNodeRegister     = "node_register"
	TypeNodeHeartbeat    = "node_heartbeat"
)

// DeserializationError signals that a payload classified as some kind could
// not be turned into its typed message.
type DeserializationError struct {
	Kind MessageKind
	Err  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s message: %v", e.Kind, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// SessionInitMessage asks the request service to authenticate a user and
// issue a session.
type SessionInitMessage struct {
	MessageType string `json:"message_type,omitempty"`
	Username    string `json:"username"`
	UserSecret  string `json:"user_secret"`
}

// ModelExecRequestMessage asks for one hydrologic model run.
type ModelExecRequestMessage struct {
	MessageType   string               `json:"message_type,omitempty"`
	Model         string               `json:"model"`
	Version       float64              `json:"version"`
	Output        string               `json:"output"`
	Parameters    map[string]Parameter `json:"parameters"`
	SessionSecret string               `json:"session_secret,omitempty"`
	ClientID      string               `json:"client_id,omitempty"`
}

// SchedulerRequestMessage wraps a validated model-exec request with the
// owning user and its resource demand for the scheduler service.
type SchedulerRequestMessage struct {
	MessageType  string                  `json:"message_type,omitempty"`
	ModelRequest ModelExecRequestMessage `json:"model_request"`
	UserID       string                  `json:"user_id"`
	CPUs         int                     `json:"cpus,omitempty"`
	MemoryBytes  uint64                  `json:"memory_bytes,omitempty"`
}

// NodeRegisterMessage announces a compute node's inventory to the scheduler.
type NodeRegisterMessage struct {
	MessageType string `json:"message_type,omitempty"`
	NodeID      string `json:"node_id"`
	Hostname    string `json:"hostname"`
	CPUCount    int    `json:"cpu_count"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

// NodeHeartbeatMessage refreshes a registered node's liveness and state.
type NodeHeartbeatMessage struct {
	MessageType string `json:"message_type,omitempty"`
	NodeID      string `json:"node_id"`
	State       string `json:"state"`
}

// DeserializeSessionInit builds a typed session-init message.
func DeserializeSessionInit(raw []byte) (*SessionInitMessage, error) {
	var msg SessionInitMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DeserializationError{Kind: KindSessionInit, Err: err}
	}
	return &msg, nil
}

// DeserializeModelExec builds a typed model-exec request and validates its
// parameters against the model registry. Invalid parameter combinations are
// rejected here, before anything reaches the scheduler.
func DeserializeModelExec(raw []byte) (*ModelExecRequestMessage, error) {
	var msg ModelExecRequestMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DeserializationError{Kind: KindModelExecRequest, Err: err}
	}
	if err := ValidateModelRequest(&msg); err != nil {
		return nil, &DeserializationError{Kind: KindModelExecRequest, Err: err}
	}
	return &msg, nil
}

// DeserializeSchedulerRequest builds a typed scheduler request.
func DeserializeSchedulerRequest(raw []byte) (*SchedulerRequestMessage, error) {
	var msg SchedulerRequestMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: err}
	}
	if err := ValidateModelRequest(&msg.ModelRequest); err != nil {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: err}
	}
	return &msg, nil
}

// DeserializeNodeRegister builds a typed node-register message.
func DeserializeNodeRegister(raw []byte) (*NodeRegisterMessage, error) {
	var msg NodeRegisterMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DeserializationError{Kind: KindNodeRegister, Err: err}
	}
	return &msg, nil
}

// DeserializeNodeHeartbeat builds a typed node-heartbeat message.
func DeserializeNodeHeartbeat(raw []byte) (*NodeHeartbeatMessage, error) {
	var msg NodeHeartbeatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &DeserializationError{Kind: KindNodeHeartbeat, Err: err}
	}
	return &msg, nil
}
