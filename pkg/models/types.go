package models

import "time"

// Session binds a username to a server-issued secret and client IP for the
// duration of authenticated activity. Session records are owned exclusively
// by the session manager; everything else holds only the id or secret.
type Session struct {
	SessionID     int64     `json:"session_id"`
	SessionSecret string    `json:"session_secret"`
	User          string    `json:"user"`
	IPAddress     string    `json:"ip_address"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessed  time.Time `json:"last_accessed"`
}

// FailureReason categorizes why a session-init request was refused.
type FailureReason string

const (
	ReasonAuthenticationDenied FailureReason = "AUTHENTICATION_DENIED"
	ReasonUserNotAuthorized    FailureReason = "USER_NOT_AUTHORIZED"
	ReasonSessionManagerFail   FailureReason = "SESSION_MANAGER_FAIL"
)

// FailedSessionInitInfo is produced in place of a Session when authentication
// or authorization fails. It is never persisted.
type FailedSessionInitInfo struct {
	User    string        `json:"user"`
	Reason  FailureReason `json:"reason"`
	Details string        `json:"details"`
}

// NodeAvailability represents whether a node participates in scheduling
type NodeAvailability string

const (
	NodeActive   NodeAvailability = "active"
	NodeInactive NodeAvailability = "inactive"
)

// NodeState represents the runtime state of a compute node
type NodeState string

const (
	NodeStateReady NodeState = "ready"
	NodeStateBusy  NodeState = "busy"
	NodeStateDown  NodeState = "down"
)

// ComputeNode represents one member of the compute resource pool.
// CPUCount and MemoryBytes are total capacity; the Available fields track
// what remains after outstanding allocations.
type ComputeNode struct {
	NodeID          string           `json:"node_id"`
	Hostname        string           `json:"hostname"`
	Availability    NodeAvailability `json:"availability"`
	State           NodeState        `json:"state"`
	CPUCount        int              `json:"cpu_count"`
	MemoryBytes     uint64           `json:"memory_bytes"`
	AvailableCPUs   int              `json:"available_cpus"`
	AvailableMemory uint64           `json:"available_memory"`
	LastHeartbeat   time.Time        `json:"last_heartbeat"`
}

// ResourceAllocation is a reservation of CPU/memory capacity on a specific
// compute node for one job.
type ResourceAllocation struct {
	NodeID          string `json:"node_id"`
	CPUsAllocated   int    `json:"cpus_allocated"`
	MemoryAllocated uint64 `json:"memory_allocated"`
	JobID           int64  `json:"job_id"`
}

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusAllocated JobStatus = "allocated"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// UnsuccessfulJobID is the sentinel job id meaning no allocation occurred.
const UnsuccessfulJobID int64 = 0

// Job tracks one accepted scheduling request. Dispatch past the allocated
// state happens outside this core.
type Job struct {
	JobID      int64               `json:"job_id"`
	User       string              `json:"user"`
	Status     JobStatus           `json:"status"`
	Allocation *ResourceAllocation `json:"allocation,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
