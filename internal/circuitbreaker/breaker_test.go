package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if !b.Allow("assessor") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	// 2 failures = still closed
	b.RecordFailure("assessor")
	b.RecordFailure("assessor")
	if !b.Allow("assessor") {
		t.Fatal("should still allow before threshold")
	}

	// 3rd failure = open
	b.RecordFailure("assessor")
	if b.Allow("assessor") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("assessor") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("assessor"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("assessor")
	b.RecordFailure("assessor")
	if b.Allow("assessor") {
		t.Fatal("should be open")
	}

	// Wait for open duration.
	time.Sleep(60 * time.Millisecond)

	// Should transition to half-open and allow one probe.
	if !b.Allow("assessor") {
		t.Fatal("should allow probe in half-open")
	}
	if b.State("assessor") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("assessor"))
	}

	// Second request while half-open should be rejected.
	if b.Allow("assessor") {
		t.Fatal("should reject second request in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("assessor")
	b.RecordFailure("assessor")
	time.Sleep(60 * time.Millisecond)
	b.Allow("assessor") // Transitions to half-open

	b.RecordSuccess("assessor")
	if b.State("assessor") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("assessor"))
	}
	if !b.Allow("assessor") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)

	b.RecordFailure("assessor")
	b.RecordFailure("assessor")
	time.Sleep(60 * time.Millisecond)
	b.Allow("assessor") // half-open probe

	b.RecordFailure("assessor")
	if b.State("assessor") != StateOpen {
		t.Fatalf("expected StateOpen after failed probe, got %v", b.State("assessor"))
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := New(1, time.Minute)
	b.RecordFailure("assessor")
	if b.Allow("assessor") {
		t.Fatal("assessor circuit should be open")
	}
	if !b.Allow("geoip") {
		t.Fatal("geoip circuit should be unaffected")
	}
}
