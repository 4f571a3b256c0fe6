package registry

import (
	"testing"
	"time"

	"github.com/nstogner/dispatch/pkg/domain"
)

type fakeCanceller struct {
	fired chan struct{}
}

func (c *fakeCanceller) Cancel() { close(c.fired) }

func TestRegisterAndGet(t *testing.T) {
	r := New()

	id := r.Register(domain.Conversation{Goal: "g", Model: "m", MaxTurns: 3})
	if id == "" {
		t.Fatal("empty ID from Register")
	}

	conv, ok := r.Get(id)
	if !ok {
		t.Fatal("registered conversation not found")
	}
	if conv.Status != domain.StatusStarted {
		t.Errorf("status = %q, want %q", conv.Status, domain.StatusStarted)
	}
	if conv.Turn != 0 || conv.TokensUsed != 0 {
		t.Errorf("counters = (%d, %d), want zeroes", conv.Turn, conv.TokensUsed)
	}
	if conv.Goal != "g" || conv.MaxTurns != 3 {
		t.Errorf("immutable fields not preserved: %+v", conv)
	}
	if conv.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestListIsCreationOrder(t *testing.T) {
	r := New()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, r.Register(domain.Conversation{Goal: "g"}))
	}

	convs := r.List()
	if len(convs) != 5 {
		t.Fatalf("list length = %d, want 5", len(convs))
	}
	for i, conv := range convs {
		if conv.ID != ids[i] {
			t.Errorf("list[%d].ID = %s, want %s (creation order)", i, conv.ID, ids[i])
		}
	}
}

func TestUpdate(t *testing.T) {
	r := New()
	id := r.Register(domain.Conversation{Goal: "g"})

	if err := r.Update(id, func(c *domain.Conversation) {
		c.Status = domain.StatusWorking
		c.Turn = 2
		c.TokensUsed += 100
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	conv, _ := r.Get(id)
	if conv.Status != domain.StatusWorking || conv.Turn != 2 || conv.TokensUsed != 100 {
		t.Errorf("update not applied: %+v", conv)
	}

	if err := r.Update("missing", func(c *domain.Conversation) {}); err == nil {
		t.Error("Update on missing ID did not fail")
	}
}

func TestMarkCancelledFiresCanceller(t *testing.T) {
	r := New()
	id := r.Register(domain.Conversation{Goal: "g"})

	c := &fakeCanceller{fired: make(chan struct{})}
	if err := r.SetCanceller(id, c); err != nil {
		t.Fatalf("SetCanceller failed: %v", err)
	}

	if err := r.MarkCancelled(id); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	select {
	case <-c.fired:
	case <-time.After(time.Second):
		t.Fatal("canceller not fired")
	}

	conv, _ := r.Get(id)
	if conv.Status != domain.StatusCancelRequested {
		t.Errorf("status = %q, want %q", conv.Status, domain.StatusCancelRequested)
	}
	if !conv.Cancelled {
		t.Error("cancelled flag not set")
	}
}

func TestMarkCancelledOnTerminalKeepsStatus(t *testing.T) {
	r := New()
	id := r.Register(domain.Conversation{Goal: "g"})
	r.Update(id, func(c *domain.Conversation) { c.Status = domain.StatusTaskComplete })

	if err := r.MarkCancelled(id); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	conv, _ := r.Get(id)
	if conv.Status != domain.StatusTaskComplete {
		t.Errorf("status = %q, want unchanged %q", conv.Status, domain.StatusTaskComplete)
	}
	if !conv.Cancelled {
		t.Error("cancelled flag not recorded")
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	r := New()
	id := r.Register(domain.Conversation{Goal: "g"})

	for turn := 1; turn <= 3; turn++ {
		if err := r.AppendHistory(id, domain.HistoryEntry{
			Kind:      domain.EntryAssistant,
			Turn:      turn,
			Assistant: &domain.AssistantEntry{Text: "t"},
		}); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	history := r.History(id)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, entry := range history {
		if entry.Turn != i+1 {
			t.Errorf("history[%d].Turn = %d, want %d", i, entry.Turn, i+1)
		}
	}

	// The returned slice is a copy.
	history[0].Turn = 99
	if r.History(id)[0].Turn != 1 {
		t.Error("History returned a live reference")
	}
}

func TestDelete(t *testing.T) {
	r := New()
	id := r.Register(domain.Conversation{Goal: "g"})

	if err := r.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := r.Get(id); ok {
		t.Error("conversation still present after Delete")
	}
	if err := r.Delete(id); err == nil {
		t.Error("second Delete did not fail")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	r := New()
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	id := r.Register(domain.Conversation{Goal: "g"})

	select {
	case got := <-ch:
		if got != id {
			t.Errorf("notification = %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification for Register")
	}

	r.Update(id, func(c *domain.Conversation) { c.Turn = 1 })

	select {
	case got := <-ch:
		if got != id {
			t.Errorf("notification = %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification for Update")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	r := New()
	ch, unsubscribe := r.Subscribe()
	keep, keepUnsub := r.Subscribe()
	defer keepUnsub()

	unsubscribe()
	unsubscribe() // idempotent

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}

	id := r.Register(domain.Conversation{Goal: "g"})

	// The remaining subscriber still gets notified.
	select {
	case got := <-keep:
		if got != id {
			t.Errorf("notification = %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification for Register")
	}
}
