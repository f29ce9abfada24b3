// Package agent implements the per-node daemon that discovers local compute
// resources and reports them to the scheduler service.
package agent

import (
	"fmt"
	"os"

	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DiscoverInventory probes the local machine for the capacity this node
// contributes to the pool.
func DiscoverInventory(nodeID string) (models.ComputeNode, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return models.ComputeNode{}, fmt.Errorf("get hostname: %w", err)
	}

	counts, err := cpu.Counts(true)
	if err != nil {
		return models.ComputeNode{}, fmt.Errorf("count CPUs: %w", err)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return models.ComputeNode{}, fmt.Errorf("read memory: %w", err)
	}

	return models.ComputeNode{
		NodeID:      nodeID,
		Hostname:    hostname,
		CPUCount:    counts,
		MemoryBytes: vm.Total,
	}, nil
}
