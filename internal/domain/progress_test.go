package domain

import (
	"sync"
	"testing"
)

func TestProgressTracker_Observe(t *testing.T) {
	tr := NewProgressTracker()
	file := "/usr/files/song.webm"

	steps := []struct {
		ev   ProgressEvent
		want Transition
	}{
		{ProgressEvent{Status: ProgressDownloading, Filename: file}, TransitionStarted},
		{ProgressEvent{Status: ProgressDownloading, Filename: file}, TransitionNone},
		{ProgressEvent{Status: ProgressDownloading, Filename: file}, TransitionNone},
		{ProgressEvent{Status: "post_processing", Filename: file}, TransitionNone},
		{ProgressEvent{Status: ProgressFinished, Filename: file}, TransitionConverting},
		// A new download of the same path starts over.
		{ProgressEvent{Status: ProgressDownloading, Filename: file}, TransitionStarted},
	}

	for i, s := range steps {
		if got := tr.Observe(s.ev); got != s.want {
			t.Errorf("step %d: Observe(%+v) = %v, want %v", i, s.ev, got, s.want)
		}
	}
	if !tr.inFlight[file] {
		t.Error("file not in flight after restart")
	}
}

func TestProgressTracker_SeparateFiles(t *testing.T) {
	tr := NewProgressTracker()
	a := ProgressEvent{Status: ProgressDownloading, Filename: "a"}
	b := ProgressEvent{Status: ProgressDownloading, Filename: "b"}

	if tr.Observe(a) != TransitionStarted {
		t.Error("first event for a should start")
	}
	if tr.Observe(b) != TransitionStarted {
		t.Error("first event for b should start")
	}
	tr.Observe(ProgressEvent{Status: ProgressFinished, Filename: "a"})
	if tr.inFlight["a"] {
		t.Error("a still in flight after finished")
	}
	if !tr.inFlight["b"] {
		t.Error("b not in flight")
	}
}

func TestProgressTracker_Concurrent(t *testing.T) {
	tr := NewProgressTracker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Observe(ProgressEvent{Status: ProgressDownloading, Filename: "x"}) == TransitionStarted {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if started != 1 {
		t.Errorf("started = %d, want 1", started)
	}
}
