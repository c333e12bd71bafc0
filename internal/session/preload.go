// internal/session/preload.go
package session

import (
	"sync"
	"time"
)

// JobStatus is the lifecycle state of a preload job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// PreloadJob tracks the background table preload started at login.
type PreloadJob struct {
	mu       sync.Mutex
	status   JobStatus
	err      error
	tables   []string
	started  time.Time
	finished time.Time
	done     chan struct{}
}

// JobSnapshot is a copy of a job's state at one instant.
type JobSnapshot struct {
	Status     JobStatus
	Err        error
	Tables     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

func newPreloadJob(now time.Time) *PreloadJob {
	return &PreloadJob{status: JobRunning, started: now, done: make(chan struct{})}
}

// Done is closed when the job finishes either way.
func (j *PreloadJob) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns the current state.
func (j *PreloadJob) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		Status:     j.status,
		Err:        j.err,
		Tables:     append([]string(nil), j.tables...),
		StartedAt:  j.started,
		FinishedAt: j.finished,
	}
}

func (j *PreloadJob) finish(tables []string, err error, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobRunning {
		return
	}
	if err != nil {
		j.status = JobFailed
		j.err = err
	} else {
		j.status = JobSucceeded
		j.tables = tables
	}
	j.finished = now
	close(j.done)
}
