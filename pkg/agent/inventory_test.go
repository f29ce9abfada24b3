package agent

import (
	"os"
	"testing"
)

func TestDiscoverInventory(t *testing.T) {
	node, err := DiscoverInventory("node-test")
	if err != nil {
		t.Fatalf("DiscoverInventory() error = %v", err)
	}

	if node.NodeID != "node-test" {
		t.Errorf("NodeID = %q, want node-test", node.NodeID)
	}
	hostname, _ := os.Hostname()
	if node.Hostname != hostname {
		t.Errorf("Hostname = %q, want %q", node.Hostname, hostname)
	}
	if node.CPUCount < 1 {
		t.Errorf("CPUCount = %d, want at least 1", node.CPUCount)
	}
	if node.MemoryBytes == 0 {
		t.Error("MemoryBytes = 0")
	}
}
