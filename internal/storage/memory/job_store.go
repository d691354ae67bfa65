// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rodforge/supplier-import/internal/importer"
)

// JobStore keeps import jobs in a map guarded by a RWMutex so status reads
// stay safe while a job is running.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]importer.ImportJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]importer.ImportJob)}
}

// CreateJob stores a new job record.
func (s *JobStore) CreateJob(_ context.Context, job importer.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (importer.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return importer.ImportJob{}, importer.ErrNotFound
	}
	return job, nil
}

// UpdateJobStatus updates the status and counters for a job. Transitions
// out of a terminal state are rejected.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status importer.JobStatus,
	errText string,
	counts importer.JobCounts,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return importer.ErrNotFound
	}
	if job.Status.Terminal() && status != job.Status {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counts = counts
	now := time.Now().UTC()
	if status == importer.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// AppendLog appends one line to the job log.
func (s *JobStore) AppendLog(_ context.Context, jobID string, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return importer.ErrNotFound
	}
	job.Log = append(job.Log, line)
	s.jobs[jobID] = job
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
