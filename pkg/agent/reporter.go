package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/protocol"
	"github.com/hydromaas/hydromaas/pkg/transport"
)

const ackTimeout = 10 * time.Second

// Reporter keeps one connection to the scheduler service, registering the
// node's inventory and heartbeating until the context ends. Lost
// connections are re-dialed after the retry interval.
type Reporter struct {
	node     models.ComputeNode
	client   *transport.Client
	interval time.Duration
	retry    time.Duration
	logger   *logger.Logger
}

// NewReporter builds a reporter for the given node inventory.
func NewReporter(node models.ComputeNode, client *transport.Client, interval, retry time.Duration, log *logger.Logger) *Reporter {
	if interval == 0 {
		interval = 15 * time.Second
	}
	if retry == 0 {
		retry = 5 * time.Second
	}
	return &Reporter{
		node:     node,
		client:   client,
		interval: interval,
		retry:    retry,
		logger:   log,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := r.client.Dial(ctx)
		if err != nil {
			r.logger.Warn("Scheduler unreachable, retrying",
				logger.Error(err),
				logger.Duration("retry", r.retry),
			)
			if !sleep(ctx, r.retry) {
				return
			}
			continue
		}

		err = r.serve(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		r.logger.Warn("Scheduler connection lost, reconnecting",
			logger.Error(err),
			logger.Duration("retry", r.retry),
		)
		if !sleep(ctx, r.retry) {
			return
		}
	}
}

// serve registers and then heartbeats on one connection until it fails.
func (r *Reporter) serve(ctx context.Context, conn *transport.Conn) error {
	register := &protocol.NodeRegisterMessage{
		MessageType: protocol.TypeNodeRegister,
		NodeID:      r.node.NodeID,
		Hostname:    r.node.Hostname,
		CPUCount:    r.node.CPUCount,
		MemoryBytes: r.node.MemoryBytes,
	}
	if err := r.exchange(conn, register); err != nil {
		return fmt.Errorf("register node: %w", err)
	}

	r.logger.Info("Node registered with scheduler",
		logger.String("node_id", r.node.NodeID),
		logger.Int("cpu_count", r.node.CPUCount),
		logger.Uint64("memory_bytes", r.node.MemoryBytes),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			heartbeat := &protocol.NodeHeartbeatMessage{
				MessageType: protocol.TypeNodeHeartbeat,
				NodeID:      r.node.NodeID,
				State:       string(models.NodeStateReady),
			}
			if err := r.exchange(conn, heartbeat); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
			r.logger.Debug("Heartbeat acknowledged", logger.String("node_id", r.node.NodeID))
		}
	}
}

// exchange sends one message and requires a successful acknowledgement.
func (r *Reporter) exchange(conn *transport.Conn, msg interface{}) error {
	payload, err := protocol.Serialize(msg)
	if err != nil {
		return err
	}
	if err := conn.Send(payload); err != nil {
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	raw, err := conn.Receive()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var ack protocol.AckResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("parse acknowledgement: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("scheduler refused: %s", ack.Reason)
	}
	return nil
}

// sleep waits for d or the context, reporting whether to keep running.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
