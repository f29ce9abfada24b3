package service

import (
	"context"
	"encoding/json"

	"github.com/hydromaas/hydromaas/pkg/auth"
	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/protocol"
)

// SessionReader is the slice of the session manager the request service
// needs for authenticated traffic.
type SessionReader interface {
	LookupBySecret(secret string) (*models.Session, error)
	RefreshSession(sess *models.Session) error
}

// SchedulerForwarder is the slice of the scheduler client the request
// service uses to relay model-exec requests.
type SchedulerForwarder interface {
	Acquire(ctx context.Context) (func(), error)
	MakeRequest(ctx context.Context, req *protocol.SchedulerRequestMessage) *protocol.SchedulerResponse
}

// RequestService handles the client-facing protocol: session init and
// model-exec requests.
type RequestService struct {
	sessionInit *auth.SessionInitHandler
	sessions    SessionReader
	sched       SchedulerForwarder
	logger      *logger.Logger
}

// NewRequestService wires the client-facing handler.
func NewRequestService(init *auth.SessionInitHandler, sessions SessionReader, sched SchedulerForwarder, log *logger.Logger) *RequestService {
	return &RequestService{
		sessionInit: init,
		sessions:    sessions,
		sched:       sched,
		logger:      log,
	}
}

// HandleRequest classifies one inbound frame and produces its reply.
func (s *RequestService) HandleRequest(ctx context.Context, raw []byte, meta ConnMeta) []byte {
	kind, errs := protocol.Classify(raw, true)

	switch kind {
	case protocol.KindSessionInit:
		return s.handleSessionInit(ctx, raw, meta)
	case protocol.KindModelExecRequest:
		return s.handleModelExec(ctx, raw)
	case protocol.KindSchedulerRequest, protocol.KindNodeRegister, protocol.KindNodeHeartbeat:
		return marshal(protocol.NewUnsupportedMessageTypeResponse(string(kind)), s.logger)
	default:
		if mt := messageType(raw); mt != "" && !protocol.KnownMessageType(mt) {
			return marshal(protocol.NewUnsupportedMessageTypeResponse(mt), s.logger)
		}
		return marshal(protocol.NewInvalidMessageResponse(raw, errs), s.logger)
	}
}

func (s *RequestService) handleSessionInit(ctx context.Context, raw []byte, meta ConnMeta) []byte {
	msg, err := protocol.DeserializeSessionInit(raw)
	if err != nil {
		return marshal(protocol.NewInvalidMessageResponse(raw, []string{err.Error()}), s.logger)
	}

	resp := s.sessionInit.HandleRequest(ctx, msg, meta.RemoteIP)
	return marshal(resp, s.logger)
}

func (s *RequestService) handleModelExec(ctx context.Context, raw []byte) []byte {
	msg, err := protocol.DeserializeModelExec(raw)
	if err != nil {
		return marshal(protocol.NewInvalidMessageResponse(raw, []string{err.Error()}), s.logger)
	}

	// The secret was well-formed at classification; now it has to name a
	// live session.
	sess, err := s.sessions.LookupBySecret(msg.SessionSecret)
	if err != nil {
		s.logger.Error("Session lookup failed", logger.Error(err))
		return marshal(&protocol.ModelExecResponse{
			Success: false,
			Reason:  string(models.ReasonSessionManagerFail),
			Message: "session store unavailable",
		}, s.logger)
	}
	if sess == nil {
		return marshal(&protocol.ModelExecResponse{
			Success: false,
			Reason:  protocol.ReasonUnauthorized,
			Message: "session secret does not match an active session",
		}, s.logger)
	}

	if err := s.sessions.RefreshSession(sess); err != nil {
		s.logger.Warn("Session refresh failed",
			logger.Int64("session_id", sess.SessionID),
			logger.Error(err),
		)
	}

	schedReq := &protocol.SchedulerRequestMessage{
		ModelRequest: *msg,
		UserID:       sess.User,
	}

	release, err := s.sched.Acquire(ctx)
	if err != nil {
		s.logger.Error("Scheduler connection unavailable", logger.Error(err))
		return marshal(&protocol.ModelExecResponse{
			Success: false,
			Reason:  protocol.ReasonSendFailure,
			Message: "could not reach the scheduler service",
		}, s.logger)
	}
	defer release()

	schedResp := s.sched.MakeRequest(ctx, schedReq)

	status := ""
	if schedResp.Success {
		status = string(models.JobStatusAllocated)
	}
	return marshal(&protocol.ModelExecResponse{
		Success: schedResp.Success,
		Reason:  schedResp.Reason,
		Message: schedResp.Message,
		Data: protocol.ModelExecData{
			JobID:  schedResp.JobID(),
			Status: status,
		},
	}, s.logger)
}

// messageType peeks at the discriminator of an otherwise unusable payload.
func messageType(raw []byte) string {
	var probe struct {
		MessageType string `json:"message_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.MessageType
}

// marshal serializes a response, falling back to a bare failure frame if
// serialization itself fails.
func marshal(resp interface{}, log *logger.Logger) []byte {
	data, err := protocol.Serialize(resp)
	if err != nil {
		log.Error("Failed to serialize response", logger.Error(err))
		return []byte(`{"success":false,"reason":"Serialization Failure","message":"","data":{}}`)
	}
	return data
}
