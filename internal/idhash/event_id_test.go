package idhash

import (
	"testing"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		source    string
		outcome   string
	}{
		{"broadcast confirmed", "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb", "broadcast", "confirmed"},
		{"notification failed", "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb", "notification", "failed"},
		{"empty signature", "", "broadcast", "timed_out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.signature, tt.source, tt.outcome)

			if len(got) != 64 {
				t.Errorf("ComputeEventID() length = %d, want 64", len(got))
			}

			// Determinism
			if again := ComputeEventID(tt.signature, tt.source, tt.outcome); got != again {
				t.Errorf("ComputeEventID() not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeEventID_Distinct(t *testing.T) {
	base := ComputeEventID("sig", "broadcast", "confirmed")

	if ComputeEventID("sig", "notification", "confirmed") == base {
		t.Error("different source produced the same id")
	}
	if ComputeEventID("sig", "broadcast", "failed") == base {
		t.Error("different outcome produced the same id")
	}
	if ComputeEventID("sig2", "broadcast", "confirmed") == base {
		t.Error("different signature produced the same id")
	}
}
