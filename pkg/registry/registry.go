// Package registry holds the single source of truth for conversation state.
// It is an injected, mutex-owned store: every mutation is a read-modify-write
// under the lock, so no partial update is ever visible to another reader.
package registry

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nstogner/dispatch/pkg/domain"
)

// Canceller is the cancellation controller handle stored with an in-flight
// conversation. MarkCancelled fires it; this is the registry's only write
// path with a side effect beyond the record itself.
type Canceller interface {
	Cancel()
}

type record struct {
	conv      domain.Conversation
	history   []domain.HistoryEntry
	canceller Canceller
}

// Registry is a keyed store of conversation records. IDs are ULIDs assigned
// from a monotonic source, so listing in ID order is creation order.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
	entropy *ulid.MonotonicEntropy

	subMu       sync.RWMutex
	subscribers []chan string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*record),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Register creates a record for a new conversation and returns its ID. The
// caller fills the immutable fields; status, turn, and token counters are
// initialized here.
func (r *Registry) Register(conv domain.Conversation) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	conv.ID = ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
	conv.Status = domain.StatusStarted
	conv.Turn = 0
	conv.TokensUsed = 0
	conv.CreatedAt = now
	conv.UpdatedAt = now

	r.records[conv.ID] = &record{conv: conv}
	r.notify(conv.ID)
	return conv.ID
}

// Update applies fn to the conversation record under the lock and publishes
// the result. fn sees the latest value and must not block.
func (r *Registry) Update(id string, fn func(*domain.Conversation)) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("conversation not found: %s", id)
	}
	fn(&rec.conv)
	rec.conv.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	r.notify(id)
	return nil
}

// SetCanceller attaches the cancellation controller for an in-flight run.
func (r *Registry) SetCanceller(id string, c Canceller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("conversation not found: %s", id)
	}
	rec.canceller = c
	return nil
}

// MarkCancelled flips the conversation to cancel-requested, sets the
// cancelled flag, and fires the stored canceller.
func (r *Registry) MarkCancelled(id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("conversation not found: %s", id)
	}
	rec.conv.Cancelled = true
	if !rec.conv.Status.Terminal() {
		rec.conv.Status = domain.StatusCancelRequested
	}
	rec.conv.UpdatedAt = time.Now().UTC()
	canceller := rec.canceller
	r.mu.Unlock()

	if canceller != nil {
		canceller.Cancel()
	}
	r.notify(id)
	return nil
}

// Get returns a copy of the conversation record.
func (r *Registry) Get(id string) (domain.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return rec.conv, true
}

// List returns copies of all conversation records in creation order.
func (r *Registry) List() []domain.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]domain.Conversation, 0, len(r.records))
	for _, rec := range r.records {
		convs = append(convs, rec.conv)
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	return convs
}

// Delete removes a conversation record. Removing an in-flight conversation
// is a caller error condition and is not handled specially.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("conversation not found: %s", id)
	}
	delete(r.records, id)
	r.mu.Unlock()

	r.notify(id)
	return nil
}

// AppendHistory adds one entry to the conversation's append-only history.
// Entries are never edited once appended.
func (r *Registry) AppendHistory(id string, entry domain.HistoryEntry) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("conversation not found: %s", id)
	}
	rec.history = append(rec.history, entry)
	r.mu.Unlock()

	r.notify(id)
	return nil
}

// History returns a copy of the conversation's history.
func (r *Registry) History(id string) []domain.HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	out := make([]domain.HistoryEntry, len(rec.history))
	copy(out, rec.history)
	return out
}

// Subscribe returns a channel that emits conversation IDs whenever a record
// changes, plus an unsubscribe func. Subscribers re-read the registry for the
// current state. The channel is closed on unsubscribe.
func (r *Registry) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			for i, sub := range r.subscribers {
				if sub == ch {
					r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
					break
				}
			}
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Registry) notify(id string) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- id:
		default:
			// Drop if subscriber is not consuming fast enough.
		}
	}
}
