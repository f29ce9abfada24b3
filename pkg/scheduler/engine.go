package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
	"github.com/hydromaas/hydromaas/pkg/models"
	"github.com/hydromaas/hydromaas/pkg/protocol"
)

// ErrUnknownJob reports a release against a job id the scheduler never
// issued (or already released).
var ErrUnknownJob = errors.New("unknown job")

// Defaults is the deployment-level resource demand applied when neither the
// request nor the model registry supplies one.
type Defaults struct {
	CPUs        int
	MemoryBytes uint64
}

// Scheduler turns accepted scheduler requests into allocations and job ids.
// Placement policy is first-fit over active, ready nodes in ascending
// node-id order, which keeps tie-breaking deterministic.
type Scheduler struct {
	resources *ResourceManager
	defaults  Defaults
	logger    *logger.Logger

	mu        sync.Mutex
	nextJobID int64
	jobs      map[int64]*models.Job
}

// NewScheduler creates a scheduler over the given inventory.
func NewScheduler(rm *ResourceManager, defaults Defaults, log *logger.Logger) *Scheduler {
	return &Scheduler{
		resources: rm,
		defaults:  defaults,
		logger:    log,
		jobs:      make(map[int64]*models.Job),
	}
}

// Enqueue resolves the request's resource demand, allocates a node, and
// returns the assigned job id. Job ids increase monotonically starting at 1;
// 0 is the sentinel meaning no node had sufficient capacity.
func (s *Scheduler) Enqueue(req *protocol.SchedulerRequestMessage) int64 {
	cpus, memory := protocol.ResourceDemand(req)
	if cpus == 0 {
		cpus = s.defaults.CPUs
	}
	if cpus == 0 {
		cpus = 1
	}
	if memory == 0 {
		memory = s.defaults.MemoryBytes
	}

	for _, nodeID := range s.resources.SchedulableIDs() {
		alloc, err := s.resources.Allocate(nodeID, cpus, memory, false)
		if err != nil {
			continue
		}

		job := s.recordJob(req.UserID, alloc)
		s.logger.Info("Job allocated",
			logger.Int64("job_id", job.JobID),
			logger.String("user", req.UserID),
			logger.String("node_id", nodeID),
			logger.Int("cpus", cpus),
			logger.Uint64("memory_bytes", memory),
		)
		return job.JobID
	}

	s.logger.Warn("No node has sufficient capacity",
		logger.String("user", req.UserID),
		logger.String("model", req.ModelRequest.Model),
		logger.Int("cpus", cpus),
	)
	return models.UnsuccessfulJobID
}

// recordJob assigns the next job id and tracks the SUBMITTED -> ALLOCATED
// transitions. Dispatching the allocated job is an external concern.
func (s *Scheduler) recordJob(user string, alloc *models.ResourceAllocation) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	now := time.Now().UTC()

	job := &models.Job{
		JobID:     s.nextJobID,
		User:      user,
		Status:    models.JobStatusSubmitted,
		CreatedAt: now,
	}

	alloc.JobID = job.JobID
	job.Allocation = alloc
	job.Status = models.JobStatusAllocated
	job.UpdatedAt = now

	s.jobs[job.JobID] = job
	return job
}

// Job returns a copy of the tracked job, if any.
func (s *Scheduler) Job(jobID int64) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// Jobs returns a snapshot of all tracked jobs.
func (s *Scheduler) Jobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

// ReleaseJob returns the job's resources to its node and records the
// terminal status reported by the external dispatcher. The allocation is
// detached from the job before capacity is restored, so a repeated release
// (a retrying dispatcher) is a no-op instead of double-crediting the node.
func (s *Scheduler) ReleaseJob(jobID int64, status models.JobStatus) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownJob
	}
	alloc := job.Allocation
	job.Allocation = nil
	s.mu.Unlock()

	if alloc != nil {
		if err := s.resources.Release(alloc); err != nil {
			return err
		}
	}

	s.mu.Lock()
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("Job released",
		logger.Int64("job_id", jobID),
		logger.String("status", string(status)),
	)
	return nil
}
