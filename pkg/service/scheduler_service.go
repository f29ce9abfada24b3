package service

import (
	"context"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/protocol"
	"github.com/hydromaas/hydromaas/pkg/scheduler"
)

// SchedulerService handles the scheduler-side protocol: scheduling requests
// from the request service and register/heartbeat traffic from node agents.
type SchedulerService struct {
	scheduler *scheduler.Scheduler
	resources *scheduler.ResourceManager
	logger    *logger.Logger
}

// NewSchedulerService wires the scheduler-side handler.
func NewSchedulerService(sched *scheduler.Scheduler, rm *scheduler.ResourceManager, log *logger.Logger) *SchedulerService {
	return &SchedulerService{
		scheduler: sched,
		resources: rm,
		logger:    log,
	}
}

// HandleRequest classifies one inbound frame and produces its reply.
func (s *SchedulerService) HandleRequest(ctx context.Context, raw []byte, meta ConnMeta) []byte {
	kind, errs := protocol.Classify(raw, false)

	switch kind {
	case protocol.KindSchedulerRequest:
		return s.handleSchedulerRequest(raw)
	case protocol.KindNodeRegister:
		return s.handleNodeRegister(raw, meta)
	case protocol.KindNodeHeartbeat:
		return s.handleNodeHeartbeat(raw)
	case protocol.KindSessionInit, protocol.KindModelExecRequest:
		return marshal(protocol.NewUnsupportedMessageTypeResponse(string(kind)), s.logger)
	default:
		if mt := messageType(raw); mt != "" && !protocol.KnownMessageType(mt) {
			return marshal(protocol.NewUnsupportedMessageTypeResponse(mt), s.logger)
		}
		return marshal(protocol.NewInvalidMessageResponse(raw, errs), s.logger)
	}
}

func (s *SchedulerService) handleSchedulerRequest(raw []byte) []byte {
	msg, err := protocol.DeserializeSchedulerRequest(raw)
	if err != nil {
		return marshal(protocol.NewInvalidMessageResponse(raw, []string{err.Error()}), s.logger)
	}

	jobID := s.scheduler.Enqueue(msg)

	nodeID := ""
	if job, ok := s.scheduler.Job(jobID); ok && job.Allocation != nil {
		nodeID = job.Allocation.NodeID
	}
	return marshal(protocol.NewSchedulerResponse(jobID, nodeID), s.logger)
}

func (s *SchedulerService) handleNodeRegister(raw []byte, meta ConnMeta) []byte {
	msg, err := protocol.DeserializeNodeRegister(raw)
	if err != nil {
		return marshal(protocol.NewInvalidMessageResponse(raw, []string{err.Error()}), s.logger)
	}

	s.resources.RegisterNode(models.ComputeNode{
		NodeID:      msg.NodeID,
		Hostname:    msg.Hostname,
		CPUCount:    msg.CPUCount,
		MemoryBytes: msg.MemoryBytes,
	})

	s.logger.Info("Node agent registered",
		logger.String("node_id", msg.NodeID),
		logger.String("remote", meta.RemoteIP),
	)
	return marshal(protocol.NewAckResponse(true, "Node Registered", msg.NodeID), s.logger)
}

func (s *SchedulerService) handleNodeHeartbeat(raw []byte) []byte {
	msg, err := protocol.DeserializeNodeHeartbeat(raw)
	if err != nil {
		return marshal(protocol.NewInvalidMessageResponse(raw, []string{err.Error()}), s.logger)
	}

	if err := s.resources.Heartbeat(msg.NodeID, models.NodeState(msg.State)); err != nil {
		return marshal(protocol.NewAckResponse(false, "Unknown Node", msg.NodeID), s.logger)
	}
	return marshal(protocol.NewAckResponse(true, "Heartbeat Accepted", msg.NodeID), s.logger)
}
