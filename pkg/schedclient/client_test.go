package schedclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/protocol"
)

// fakeWire scripts one request/reply exchange.
type fakeWire struct {
	reply      []byte
	sendErr    error
	receiveErr error

	sent   [][]byte
	closed int
}

func (f *fakeWire) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeWire) Receive() ([]byte, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return f.reply, nil
}

func (f *fakeWire) SetReadDeadline(t time.Time) error { return nil }

func (f *fakeWire) Close() error {
	f.closed++
	return nil
}

func newTestClient(w *fakeWire, dialErr error) *Client {
	return &Client{
		timeout: time.Second,
		logger:  logger.Nop(),
		dial: func(ctx context.Context) (wire, error) {
			if dialErr != nil {
				return nil, dialErr
			}
			return w, nil
		},
	}
}

func testRequest() *protocol.SchedulerRequestMessage {
	return &protocol.SchedulerRequestMessage{
		ModelRequest: protocol.ModelExecRequestMessage{
			Model:  "nwm",
			Output: "streamflow",
		},
		UserID: "alice",
	}
}

func TestMakeRequestClassification(t *testing.T) {
	tests := []struct {
		name       string
		wire       *fakeWire
		wantReason string
		wantOK     bool
	}{
		{
			name:       "send failure",
			wire:       &fakeWire{sendErr: errors.New("broken pipe")},
			wantReason: protocol.ReasonSendFailure,
		},
		{
			name:       "no reply",
			wire:       &fakeWire{receiveErr: errors.New("read timeout")},
			wantReason: protocol.ReasonSendFailure,
		},
		{
			name:       "reply is not json",
			wire:       &fakeWire{reply: []byte("<html>bad gateway</html>")},
			wantReason: protocol.ReasonInvalidJSON,
		},
		{
			name:       "reply is json but not a response",
			wire:       &fakeWire{reply: []byte(`{"job_id": 12}`)},
			wantReason: protocol.ReasonNotDeserializable,
		},
		{
			name:       "well-formed response passes through",
			wire:       &fakeWire{reply: []byte(`{"success": true, "reason": "Job Enqueued", "data": {"job_id": 12}}`)},
			wantReason: "Job Enqueued",
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.wire, nil)

			release, err := c.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			defer release()

			resp := c.MakeRequest(context.Background(), testRequest())
			if resp == nil {
				t.Fatal("MakeRequest() = nil")
			}
			if resp.Success != tt.wantOK {
				t.Errorf("Success = %v, want %v", resp.Success, tt.wantOK)
			}
			if resp.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", resp.Reason, tt.wantReason)
			}
		})
	}
}

func TestMakeRequestCarriesParsedPayloadOnDeserializeFailure(t *testing.T) {
	w := &fakeWire{reply: []byte(`{"job_id": 12, "extra": "x"}`)}
	c := newTestClient(w, nil)

	release, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	resp := c.MakeRequest(context.Background(), testRequest())
	if resp.Reason != protocol.ReasonNotDeserializable {
		t.Fatalf("Reason = %q, want %q", resp.Reason, protocol.ReasonNotDeserializable)
	}
	if got, ok := resp.Data["extra"].(string); !ok || got != "x" {
		t.Errorf("Data = %v, want the parsed reply carried through", resp.Data)
	}
}

func TestMakeRequestSetsMessageType(t *testing.T) {
	w := &fakeWire{reply: []byte(`{"success": true, "reason": "ok", "data": {}}`)}
	c := newTestClient(w, nil)

	release, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	_ = c.MakeRequest(context.Background(), testRequest())
	if len(w.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(w.sent))
	}
	kind, _ := protocol.Classify(w.sent[0], false)
	if kind != protocol.KindSchedulerRequest {
		t.Errorf("sent frame classified as %v, want scheduler request", kind)
	}
}

func TestAcquireSharesOneConnection(t *testing.T) {
	w := &fakeWire{}
	dials := 0
	c := &Client{
		timeout: time.Second,
		logger:  logger.Nop(),
		dial: func(ctx context.Context) (wire, error) {
			dials++
			return w, nil
		},
	}

	rel1, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	rel2, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if dials != 1 {
		t.Errorf("dials = %d after two acquires, want 1", dials)
	}

	rel1()
	if w.closed != 0 {
		t.Errorf("connection closed while a holder remains")
	}

	rel2()
	rel2() // release funcs are idempotent
	if w.closed != 1 {
		t.Errorf("closed = %d, want exactly 1", w.closed)
	}

	// A fresh acquire after full release dials again.
	rel3, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer rel3()
	if dials != 2 {
		t.Errorf("dials = %d after re-acquire, want 2", dials)
	}
}

func TestAcquireDialFailure(t *testing.T) {
	c := newTestClient(nil, errors.New("connection refused"))

	if _, err := c.Acquire(context.Background()); err == nil {
		t.Fatal("Acquire() error = nil, want dial failure")
	}

	// The failed acquire must not leave the client thinking it holds a
	// connection.
	resp := c.MakeRequest(context.Background(), testRequest())
	if resp.Reason != protocol.ReasonSendFailure {
		t.Errorf("Reason = %q, want %q", resp.Reason, protocol.ReasonSendFailure)
	}
}
