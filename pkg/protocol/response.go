package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hydromaas/hydromaas/pkg/models"
)

// Reason strings reused by response constructors. The scheduler-client
// reasons are part of the wire contract and must not change.
const (
	ReasonSendFailure        = "Request Send Failure (ValueError)"
	ReasonInvalidJSON        = "Invalid JSON Response"
	ReasonNotDeserializable  = "Could Not Deserialize Response Object"
	ReasonInvalidMessage     = "Invalid Message"
	ReasonUnsupportedMessage = "Unsupported Message Type"
	ReasonUnauthorized       = "Unauthorized"
)

// Serialize renders any response as its canonical JSON string.
func Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// SessionInitData is the data shape of a SessionInitResponse: the issued
// session on success, structured failure info otherwise.
type SessionInitData struct {
	Session *models.Session               `json:"session,omitempty"`
	Failure *models.FailedSessionInitInfo `json:"failure,omitempty"`
}

// SessionInitResponse answers a session-init message.
type SessionInitResponse struct {
	Success bool            `json:"success"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
	Data    SessionInitData `json:"data"`
}

// NewSessionInitSuccess builds the success response for an issued session.
func NewSessionInitSuccess(session *models.Session) *SessionInitResponse {
	return &SessionInitResponse{
		Success: true,
		Reason:  "Session Init Success",
		Message: "Session created",
		Data:    SessionInitData{Session: session},
	}
}

// NewSessionInitFailure builds the failure response for a refused init.
func NewSessionInitFailure(info *models.FailedSessionInitInfo) *SessionInitResponse {
	return &SessionInitResponse{
		Success: false,
		Reason:  string(info.Reason),
		Message: info.Details,
		Data:    SessionInitData{Failure: info},
	}
}

// ModelExecData is the data shape of a ModelExecResponse.
type ModelExecData struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status,omitempty"`
}

// ModelExecResponse answers a model-exec request with the job outcome.
type ModelExecResponse struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason"`
	Message string        `json:"message"`
	Data    ModelExecData `json:"data"`
}

// SchedulerResponse answers a scheduler request. Data is left loosely typed
// because failure classification in the scheduler client may need to carry
// an arbitrary parsed payload back to the caller.
type SchedulerResponse struct {
	Success bool                   `json:"success"`
	Reason  string                 `json:"reason"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// JobID extracts the assigned job id from the response data, returning the
// unsuccessful sentinel when absent.
func (r *SchedulerResponse) JobID() int64 {
	if r.Data == nil {
		return models.UnsuccessfulJobID
	}
	if v, ok := r.Data["job_id"].(float64); ok {
		return int64(v)
	}
	return models.UnsuccessfulJobID
}

// NewSchedulerResponse builds the scheduler service's answer for a job id.
// Job id 0 is the unsuccessful sentinel, reported as a capacity failure.
func NewSchedulerResponse(jobID int64, nodeID string) *SchedulerResponse {
	if jobID == models.UnsuccessfulJobID {
		return &SchedulerResponse{
			Success: false,
			Reason:  "Insufficient Resources",
			Message: "no node has sufficient capacity",
			Data:    map[string]interface{}{"job_id": float64(models.UnsuccessfulJobID)},
		}
	}
	return &SchedulerResponse{
		Success: true,
		Reason:  "Job Enqueued",
		Data:    map[string]interface{}{"job_id": float64(jobID), "node_id": nodeID},
	}
}

// DeserializeSchedulerResponse parses a reply frame into a typed response.
// The payload must carry at least the success flag and reason to count as a
// SchedulerResponse; arbitrary JSON objects do not.
func DeserializeSchedulerResponse(raw []byte) (*SchedulerResponse, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: err}
	}
	if _, ok := payload["success"].(bool); !ok {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: fmt.Errorf("missing required field success")}
	}
	if _, ok := payload["reason"].(string); !ok {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: fmt.Errorf("missing required field reason")}
	}

	var resp SchedulerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &DeserializationError{Kind: KindSchedulerRequest, Err: err}
	}
	return &resp, nil
}

// InvalidMessageResponse echoes an unclassifiable payload back for diagnosis.
type InvalidMessageResponse struct {
	Success bool                   `json:"success"`
	Reason  string                 `json:"reason"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// NewInvalidMessageResponse builds the invalid-message echo. When the
// offending payload was not even valid JSON it is carried as a string.
func NewInvalidMessageResponse(raw []byte, errs []string) *InvalidMessageResponse {
	data := map[string]interface{}{}
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		data["original_message"] = parsed
	} else {
		data["original_message"] = string(raw)
	}

	return &InvalidMessageResponse{
		Success: false,
		Reason:  ReasonInvalidMessage,
		Message: strings.Join(errs, "; "),
		Data:    data,
	}
}

// UnsupportedMessageTypeResponse rejects a payload whose discriminator names
// a kind this endpoint does not serve.
type UnsupportedMessageTypeResponse struct {
	Success bool                   `json:"success"`
	Reason  string                 `json:"reason"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// NewUnsupportedMessageTypeResponse builds the rejection for messageType.
func NewUnsupportedMessageTypeResponse(messageType string) *UnsupportedMessageTypeResponse {
	return &UnsupportedMessageTypeResponse{
		Success: false,
		Reason:  ReasonUnsupportedMessage,
		Message: "this endpoint does not serve " + messageType + " messages",
		Data:    map[string]interface{}{"message_type": messageType},
	}
}

// AckResponse is the generic acknowledgement for node register/heartbeat.
type AckResponse struct {
	Success bool                   `json:"success"`
	Reason  string                 `json:"reason"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// NewAckResponse builds an acknowledgement for the given node.
func NewAckResponse(success bool, reason, nodeID string) *AckResponse {
	return &AckResponse{
		Success: success,
		Reason:  reason,
		Data:    map[string]interface{}{"node_id": nodeID},
	}
}
