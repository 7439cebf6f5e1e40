package domain

import "context"

// Publisher is the driven port for handing links to the broker.
// It returns how many subscribers received the message.
type Publisher interface {
	Publish(ctx context.Context, link Link) (int64, error)
}

// JobSource is the driven port delivering raw job payloads.
// The returned channel is closed when ctx is done or the source is closed.
type JobSource interface {
	Jobs(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// ProgressEvent is a status report from the media pipeline.
type ProgressEvent struct {
	Status   string
	Filename string
	Bytes    int64
}

// Progress event statuses the worker reacts to.
const (
	ProgressDownloading = "downloading"
	ProgressFinished    = "finished"
)

// ProgressFunc receives pipeline progress; it may be called from another goroutine.
type ProgressFunc func(ProgressEvent)

// MediaPipeline is the driven port for downloading and transcoding a link.
// It blocks until the job completes and returns the output file, if known.
type MediaPipeline interface {
	Download(ctx context.Context, link Link, progress ProgressFunc) (string, error)
}

// JobLedger is the driven port for recording job outcomes.
type JobLedger interface {
	Create(ctx context.Context, link Link) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Recent(ctx context.Context, limit int) ([]Job, error)
	SetStatus(ctx context.Context, id string, status JobStatus, reason string) error
	Complete(ctx context.Context, id string, file string) error
	FailInterrupted(ctx context.Context) (int64, error)
}
