package domain

import "time"

// JobStatus represents the processing state of a download job.
type JobStatus string

const (
	StatusReceived    JobStatus = "received"
	StatusDownloading JobStatus = "downloading"
	StatusConverting  JobStatus = "converting"
	StatusDone        JobStatus = "done"
	StatusFailed      JobStatus = "failed"
)

// IsActive returns true while the media pipeline is working on the job.
func (s JobStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusConverting
}

// Unfinished lists the statuses of jobs that were received or in progress.
func Unfinished() []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{StatusReceived, StatusDownloading, StatusConverting, StatusDone, StatusFailed} {
		if s == StatusReceived || s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// IsFinished returns true for terminal states.
func (s JobStatus) IsFinished() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is the worker's record of one link passing through the media pipeline.
// It exists only on the worker side; the broker payload is the bare link.
type Job struct {
	ID        string
	Link      Link
	Status    JobStatus
	Error     string
	File      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
