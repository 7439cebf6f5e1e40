package domain

import "sync"

// Transition is what a progress event means for a job.
type Transition int

const (
	// TransitionNone means the event changes nothing worth reporting.
	TransitionNone Transition = iota
	// TransitionStarted is the first "downloading" event for a file.
	TransitionStarted
	// TransitionConverting is a "finished" download; transcoding follows.
	TransitionConverting
)

// ProgressTracker de-duplicates pipeline progress events for one job.
// It is safe for use from the pipeline's callback goroutine.
type ProgressTracker struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{inFlight: make(map[string]bool)}
}

// Observe records ev and returns the resulting transition.
func (t *ProgressTracker) Observe(ev ProgressEvent) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Status {
	case ProgressDownloading:
		if t.inFlight[ev.Filename] {
			return TransitionNone
		}
		t.inFlight[ev.Filename] = true
		return TransitionStarted
	case ProgressFinished:
		delete(t.inFlight, ev.Filename)
		return TransitionConverting
	}
	return TransitionNone
}
