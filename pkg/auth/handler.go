package auth

import (
	"context"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/protocol"
)

// SessionInitHandler turns credentials into an authenticated, authorized
// session or a structured failure reason.
type SessionInitHandler struct {
	authenticator Authenticator
	authorizer    Authorizer
	store         SessionStore
	logger        *logger.Logger
}

// NewSessionInitHandler wires the handler with its capabilities.
func NewSessionInitHandler(an Authenticator, az Authorizer, store SessionStore, log *logger.Logger) *SessionInitHandler {
	return &SessionInitHandler{
		authenticator: an,
		authorizer:    az,
		store:         store,
		logger:        log,
	}
}

// HandleRequest runs the session-init decision tree. Each capability is
// consulted exactly once per request:
//
//  1. not authenticated            -> AUTHENTICATION_DENIED
//  2. authenticated, unauthorized  -> USER_NOT_AUTHORIZED
//  3. authorized, no session       -> create one (store failure -> SESSION_MANAGER_FAIL)
//  4. authorized, session exists   -> refresh and return the existing session
func (h *SessionInitHandler) HandleRequest(ctx context.Context, msg *protocol.SessionInitMessage, clientIP string) *protocol.SessionInitResponse {
	authenticated, err := h.authenticator.Authenticate(ctx, msg.Username, msg.UserSecret)
	if err != nil || !authenticated {
		h.logger.Warn("Authentication denied",
			logger.String("user", msg.Username),
			logger.String("ip", clientIP),
			logger.Error(err),
		)
		return protocol.NewSessionInitFailure(&models.FailedSessionInitInfo{
			User:    msg.Username,
			Reason:  models.ReasonAuthenticationDenied,
			Details: "credentials were not accepted",
		})
	}

	authorized, err := h.authorizer.CheckAuthorized(ctx, msg.Username, "")
	if err != nil || !authorized {
		h.logger.Warn("User not authorized",
			logger.String("user", msg.Username),
			logger.String("ip", clientIP),
			logger.Error(err),
		)
		return protocol.NewSessionInitFailure(&models.FailedSessionInitInfo{
			User:    msg.Username,
			Reason:  models.ReasonUserNotAuthorized,
			Details: "user is not authorized for this access",
		})
	}

	existing, err := h.store.LookupByUsername(msg.Username)
	if err != nil {
		return h.storeFailure(msg.Username, err)
	}

	if existing != nil {
		// One active session per username: hand the existing one back
		// instead of minting a duplicate.
		if err := h.store.RefreshSession(existing); err != nil {
			return h.storeFailure(msg.Username, err)
		}
		h.logger.Info("Existing session returned",
			logger.String("user", msg.Username),
			logger.Int64("session_id", existing.SessionID),
		)
		return protocol.NewSessionInitSuccess(existing)
	}

	sess, err := h.store.CreateSession(clientIP, msg.Username)
	if err != nil {
		return h.storeFailure(msg.Username, err)
	}

	return protocol.NewSessionInitSuccess(sess)
}

func (h *SessionInitHandler) storeFailure(username string, err error) *protocol.SessionInitResponse {
	h.logger.Error("Session manager failure", logger.String("user", username), logger.Error(err))
	return protocol.NewSessionInitFailure(&models.FailedSessionInitInfo{
		User:    username,
		Reason:  models.ReasonSessionManagerFail,
		Details: err.Error(),
	})
}
