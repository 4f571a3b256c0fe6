package engine

import (
	"errors"
	"strings"
	"sync"
)

// ErrCancelled is the stable cancellation signature shared by the token, the
// turn executor, and the loop. Cancellation is detected by matching this
// signature rather than a dedicated error type, so the text must not change.
var ErrCancelled = errors.New("conversation cancelled by user")

// IsCancellation reports whether err carries the cancellation signature.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) || strings.Contains(err.Error(), "cancelled by user")
}

// CancelState is the tri-state of a cancellation token.
type CancelState int

const (
	// CancelNone means cancellation has not been requested.
	CancelNone CancelState = iota
	// CancelRequested means a caller asked for cancellation and the loop has
	// not yet observed it.
	CancelRequested
	// CancelHonored means the loop observed the request and terminated.
	CancelHonored
)

// CancelToken is a cooperative, level-triggered cancellation signal owned by
// one conversation for its lifetime. Once requested it stays requested. The
// loop checks it at two sites: between stream fragments and between turns.
type CancelToken struct {
	mu    sync.Mutex
	state CancelState
	done  chan struct{}
}

// NewCancelToken returns a token in the not-requested state.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel requests cancellation. Safe to call from any goroutine, idempotent.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != CancelNone {
		return
	}
	t.state = CancelRequested
	close(t.done)
}

// Requested reports whether cancellation has been requested (in either the
// requested or honored state).
func (t *CancelToken) Requested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != CancelNone
}

// MarkHonored records that the loop acted on the request.
func (t *CancelToken) MarkHonored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == CancelRequested {
		t.state = CancelHonored
	}
}

// State returns the current state.
func (t *CancelToken) State() CancelState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done returns a channel closed when cancellation is requested.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
