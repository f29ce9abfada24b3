// Package service wires the message protocol to the auth, session, and
// scheduling components. Each daemon exposes a RequestHandler; the GUI, CLI
// tools, and other collaborators submit work through that seam without
// depending on transport details.
package service

import (
	"context"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

// ConnMeta carries per-connection context into a handler.
type ConnMeta struct {
	RemoteIP string
}

// RequestHandler is the seam through which requests enter the system,
// whatever their source. It always returns a serialized response frame.
type RequestHandler interface {
	HandleRequest(ctx context.Context, raw []byte, meta ConnMeta) []byte
}

// Loop adapts a RequestHandler to the transport's per-connection hook:
// messages on one connection are processed strictly in arrival order, and
// every request gets exactly one reply on the same connection.
type Loop struct {
	handler RequestHandler
	logger  *logger.Logger
}

// NewLoop wraps handler for use as a transport.Dispatcher.
func NewLoop(handler RequestHandler, log *logger.Logger) *Loop {
	return &Loop{handler: handler, logger: log}
}

// Dispatch serves one connection until the peer goes away or the context is
// cancelled. Transport-level failures end the connection task; they do not
// escalate.
func (l *Loop) Dispatch(ctx context.Context, conn *transport.Conn) error {
	meta := ConnMeta{RemoteIP: conn.RemoteIP()}

	for {
		raw, err := conn.Receive()
		if err != nil {
			if !transport.IsClosed(err) && ctx.Err() == nil {
				l.logger.Warn("Connection receive failed",
					logger.String("remote", meta.RemoteIP),
					logger.Error(err),
				)
			}
			return nil
		}

		resp := l.handler.HandleRequest(ctx, raw, meta)

		if err := conn.Send(resp); err != nil {
			l.logger.Warn("Connection send failed",
				logger.String("remote", meta.RemoteIP),
				logger.Error(err),
			)
			return nil
		}
	}
}
