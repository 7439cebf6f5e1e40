package domain

import "testing"

func TestJobStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       JobStatus
		wantActive   bool
		wantFinished bool
	}{
		{StatusReceived, false, false},
		{StatusDownloading, true, false},
		{StatusConverting, true, false},
		{StatusDone, false, true},
		{StatusFailed, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.wantActive {
				t.Errorf("IsActive() = %v, want %v", got, tt.wantActive)
			}
			if got := tt.status.IsFinished(); got != tt.wantFinished {
				t.Errorf("IsFinished() = %v, want %v", got, tt.wantFinished)
			}
		})
	}
}

func TestJobStatus_Values(t *testing.T) {
	// Stored as text in the ledger.
	want := map[JobStatus]string{
		StatusReceived:    "received",
		StatusDownloading: "downloading",
		StatusConverting:  "converting",
		StatusDone:        "done",
		StatusFailed:      "failed",
	}
	for status, s := range want {
		if string(status) != s {
			t.Errorf("status = %q, want %q", status, s)
		}
	}
}

func TestUnfinished(t *testing.T) {
	got := Unfinished()
	want := []JobStatus{StatusReceived, StatusDownloading, StatusConverting}
	if len(got) != len(want) {
		t.Fatalf("Unfinished() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Unfinished()[%d] = %q, want %q", i, got[i], want[i])
		}
		if got[i].IsFinished() {
			t.Errorf("%q is finished", got[i])
		}
	}
}
