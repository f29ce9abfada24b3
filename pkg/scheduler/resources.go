// Package scheduler maintains the compute-node inventory and turns accepted
// requests into resource allocations and job identifiers.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
)

var (
	// ErrUnknownNode reports an allocation or heartbeat against a node id
	// that was never registered.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInsufficientCapacity reports an all-or-nothing allocation that the
	// target node cannot satisfy. No partial side effect occurred.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
)

// nodeState pairs a node record with the mutex that makes allocate/release
// on that node mutually exclusive. The capacity check and decrement are one
// atomic unit under this lock.
type nodeState struct {
	mu   sync.Mutex
	node models.ComputeNode
}

// ResourceManager tracks the cluster's compute-node inventory.
type ResourceManager struct {
	mu     sync.RWMutex
	nodes  map[string]*nodeState
	logger *logger.Logger
}

// NewResourceManager creates an empty inventory.
func NewResourceManager(log *logger.Logger) *ResourceManager {
	return &ResourceManager{
		nodes:  make(map[string]*nodeState),
		logger: log,
	}
}

// RegisterNode adds a node or refreshes a re-registering one. Outstanding
// allocations survive re-registration: available capacity is the new total
// minus what was already handed out.
func (rm *ResourceManager) RegisterNode(node models.ComputeNode) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := rm.nodes[node.NodeID]; ok {
		existing.mu.Lock()
		cpusAllocated := existing.node.CPUCount - existing.node.AvailableCPUs
		memAllocated := existing.node.MemoryBytes - existing.node.AvailableMemory

		existing.node.Hostname = node.Hostname
		existing.node.CPUCount = node.CPUCount
		existing.node.MemoryBytes = node.MemoryBytes
		existing.node.AvailableCPUs = max(node.CPUCount-cpusAllocated, 0)
		if memAllocated > node.MemoryBytes {
			existing.node.AvailableMemory = 0
		} else {
			existing.node.AvailableMemory = node.MemoryBytes - memAllocated
		}
		existing.node.Availability = models.NodeActive
		existing.node.State = models.NodeStateReady
		existing.node.LastHeartbeat = now
		existing.mu.Unlock()

		rm.logger.Info("Node re-registered", logger.String("node_id", node.NodeID))
		return
	}

	node.Availability = models.NodeActive
	node.State = models.NodeStateReady
	node.AvailableCPUs = node.CPUCount
	node.AvailableMemory = node.MemoryBytes
	node.LastHeartbeat = now

	rm.nodes[node.NodeID] = &nodeState{node: node}

	rm.logger.Info("Node registered",
		logger.String("node_id", node.NodeID),
		logger.String("hostname", node.Hostname),
		logger.Int("cpu_count", node.CPUCount),
		logger.Uint64("memory_bytes", node.MemoryBytes),
	)
}

// Heartbeat refreshes a node's liveness and runtime state.
func (rm *ResourceManager) Heartbeat(nodeID string, state models.NodeState) error {
	ns, ok := rm.lookup(nodeID)
	if !ok {
		return ErrUnknownNode
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.node.State = state
	ns.node.Availability = models.NodeActive
	ns.node.LastHeartbeat = time.Now().UTC()
	return nil
}

// Resources returns a snapshot of every node, sorted by node id.
func (rm *ResourceManager) Resources() []models.ComputeNode {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]models.ComputeNode, 0, len(rm.nodes))
	for _, ns := range rm.nodes {
		ns.mu.Lock()
		out = append(out, ns.node)
		ns.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// ResourceIDs returns every node id, sorted.
func (rm *ResourceManager) ResourceIDs() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	ids := make([]string, 0, len(rm.nodes))
	for id := range rm.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SchedulableIDs returns the ids of active, ready nodes in ascending order.
// The ordering is the scheduler's documented first-fit tie-break.
func (rm *ResourceManager) SchedulableIDs() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	ids := make([]string, 0, len(rm.nodes))
	for id, ns := range rm.nodes {
		ns.mu.Lock()
		if ns.node.Availability == models.NodeActive && ns.node.State == models.NodeStateReady {
			ids = append(ids, id)
		}
		ns.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// AvailableCPUCount sums unallocated CPU across active, ready nodes. It is
// a point-in-time snapshot, not a reservation.
func (rm *ResourceManager) AvailableCPUCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	total := 0
	for _, ns := range rm.nodes {
		ns.mu.Lock()
		if ns.node.Availability == models.NodeActive && ns.node.State == models.NodeStateReady {
			total += ns.node.AvailableCPUs
		}
		ns.mu.Unlock()
	}
	return total
}

// Allocate atomically checks and decrements the target node's capacity.
// With partial true, an under-capacity node yields whatever it still has
// instead of failing outright; with partial false the request either fits
// entirely or fails with no side effect.
func (rm *ResourceManager) Allocate(nodeID string, cpus int, memory uint64, partial bool) (*models.ResourceAllocation, error) {
	ns, ok := rm.lookup(nodeID)
	if !ok {
		return nil, ErrUnknownNode
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	grantCPUs, grantMemory := cpus, memory
	if ns.node.AvailableCPUs < cpus || ns.node.AvailableMemory < memory {
		if !partial {
			return nil, ErrInsufficientCapacity
		}
		grantCPUs = min(cpus, ns.node.AvailableCPUs)
		grantMemory = min(memory, ns.node.AvailableMemory)
	}
	if cpus > 0 && grantCPUs == 0 {
		// Nothing left to grant; a zero-CPU partial allocation is useless.
		return nil, ErrInsufficientCapacity
	}

	ns.node.AvailableCPUs -= grantCPUs
	ns.node.AvailableMemory -= grantMemory

	return &models.ResourceAllocation{
		NodeID:          nodeID,
		CPUsAllocated:   grantCPUs,
		MemoryAllocated: grantMemory,
	}, nil
}

// Release atomically restores the allocation's capacity to its node. Safe
// to call after the node has gone inactive: the capacity bookkeeping still
// updates, but the node is not resurrected into the schedulable pool.
func (rm *ResourceManager) Release(alloc *models.ResourceAllocation) error {
	ns, ok := rm.lookup(alloc.NodeID)
	if !ok {
		return ErrUnknownNode
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.node.AvailableCPUs = min(ns.node.AvailableCPUs+alloc.CPUsAllocated, ns.node.CPUCount)
	released := ns.node.AvailableMemory + alloc.MemoryAllocated
	if released > ns.node.MemoryBytes {
		released = ns.node.MemoryBytes
	}
	ns.node.AvailableMemory = released
	return nil
}

// MarkStaleNodes flips nodes whose last heartbeat is older than timeout to
// inactive and returns how many changed.
func (rm *ResourceManager) MarkStaleNodes(timeout time.Duration) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-timeout)
	stale := 0
	for id, ns := range rm.nodes {
		ns.mu.Lock()
		if ns.node.Availability == models.NodeActive && ns.node.LastHeartbeat.Before(cutoff) {
			ns.node.Availability = models.NodeInactive
			stale++
			rm.logger.Warn("Node marked inactive, heartbeat stale",
				logger.String("node_id", id),
				logger.Time("last_heartbeat", ns.node.LastHeartbeat),
			)
		}
		ns.mu.Unlock()
	}
	return stale
}

// StartStaleSweep periodically marks silent nodes inactive until ctx ends.
func (rm *ResourceManager) StartStaleSweep(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rm.MarkStaleNodes(timeout)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rm *ResourceManager) lookup(nodeID string) (*nodeState, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	ns, ok := rm.nodes[nodeID]
	return ns, ok
}
