package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestCancelTokenLifecycle(t *testing.T) {
	tok := NewCancelToken()

	if tok.Requested() {
		t.Error("fresh token reports requested")
	}
	if tok.State() != CancelNone {
		t.Errorf("state = %v, want %v", tok.State(), CancelNone)
	}

	select {
	case <-tok.Done():
		t.Error("Done closed before Cancel")
	default:
	}

	tok.Cancel()

	if !tok.Requested() {
		t.Error("token not requested after Cancel")
	}
	if tok.State() != CancelRequested {
		t.Errorf("state = %v, want %v", tok.State(), CancelRequested)
	}
	select {
	case <-tok.Done():
	default:
		t.Error("Done not closed after Cancel")
	}

	// Cancel is idempotent.
	tok.Cancel()
	if tok.State() != CancelRequested {
		t.Errorf("state after second Cancel = %v, want %v", tok.State(), CancelRequested)
	}

	tok.MarkHonored()
	if tok.State() != CancelHonored {
		t.Errorf("state = %v, want %v", tok.State(), CancelHonored)
	}
	if !tok.Requested() {
		t.Error("honored token no longer reports requested")
	}
}

func TestMarkHonoredBeforeRequest(t *testing.T) {
	tok := NewCancelToken()
	tok.MarkHonored()
	if tok.State() != CancelNone {
		t.Errorf("state = %v, want %v (honoring nothing is a no-op)", tok.State(), CancelNone)
	}
}

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrCancelled, true},
		{"wrapped sentinel", fmt.Errorf("turn 3: %w", ErrCancelled), true},
		{"matching text", errors.New("stream aborted: conversation cancelled by user"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCancellation(tt.err); got != tt.want {
				t.Errorf("IsCancellation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
