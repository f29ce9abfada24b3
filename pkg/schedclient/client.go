// Package schedclient is the request service's connection to the scheduler
// service: one physical connection shared by reference counting, and a
// request call that resolves every failure mode to a typed response instead
// of an error. Nothing in this package raises past its own boundary.
package schedclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/protocol"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

const defaultRequestTimeout = 30 * time.Second

// wire is the slice of transport.Conn the client uses; tests substitute a
// scripted implementation.
type wire interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Client multiplexes logical scheduler requests over one shared connection.
// Acquire opens the physical connection only when the active count rises
// from zero; the paired release closes it only when the count returns to
// zero, so nested and concurrent logical requests never tear the connection
// down under each other.
type Client struct {
	timeout time.Duration
	logger  *logger.Logger
	dial    func(ctx context.Context) (wire, error)

	mu     sync.Mutex
	active int
	conn   wire

	// One request/reply exchange on the wire at a time.
	reqMu sync.Mutex
}

// New builds a client over the given transport endpoint. A zero timeout
// selects the default; expiry is treated as "no reply received".
func New(tc *transport.Client, timeout time.Duration, log *logger.Logger) *Client {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		timeout: timeout,
		logger:  log,
		dial: func(ctx context.Context) (wire, error) {
			return tc.Dial(ctx)
		},
	}
}

// Acquire registers a logical user of the shared connection and returns its
// release func. The release func is idempotent.
func (c *Client) Acquire(ctx context.Context) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == 0 {
		conn, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}
	c.active++

	var once sync.Once
	return func() {
		once.Do(c.release)
	}, nil
}

func (c *Client) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active--
	if c.active == 0 && c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// MakeRequest sends one scheduler request and awaits exactly one reply,
// classifying the outcome:
//
//   - send failed or no reply arrived -> "Request Send Failure (ValueError)"
//   - reply was not valid JSON        -> "Invalid JSON Response"
//   - JSON but not a response object  -> "Could Not Deserialize Response Object"
//     (data carries the parsed reply)
//   - a well-formed response          -> returned verbatim
//
// The caller must hold an Acquire for the duration of the call.
func (c *Client) MakeRequest(ctx context.Context, req *protocol.SchedulerRequestMessage) *protocol.SchedulerResponse {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return sendFailure()
	}

	req.MessageType = protocol.TypeSchedulerRequest
	payload, err := protocol.Serialize(req)
	if err != nil {
		c.logger.Error("Failed to serialize scheduler request", logger.Error(err))
		return sendFailure()
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := conn.Send(payload); err != nil {
		c.logger.Warn("Scheduler request send failed", logger.Error(err))
		return sendFailure()
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	raw, err := conn.Receive()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		c.logger.Warn("No reply from scheduler", logger.Error(err))
		return sendFailure()
	}

	return classifyReply(raw)
}

func classifyReply(raw []byte) *protocol.SchedulerResponse {
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &protocol.SchedulerResponse{
			Success: false,
			Reason:  protocol.ReasonInvalidJSON,
			Data:    map[string]interface{}{},
		}
	}

	resp, err := protocol.DeserializeSchedulerResponse(raw)
	if err != nil {
		data, ok := parsed.(map[string]interface{})
		if !ok {
			data = map[string]interface{}{"response": parsed}
		}
		return &protocol.SchedulerResponse{
			Success: false,
			Reason:  protocol.ReasonNotDeserializable,
			Data:    data,
		}
	}

	return resp
}

func sendFailure() *protocol.SchedulerResponse {
	return &protocol.SchedulerResponse{
		Success: false,
		Reason:  protocol.ReasonSendFailure,
		Data:    map[string]interface{}{},
	}
}
