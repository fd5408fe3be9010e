package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestPublishNeverBlocks(t *testing.T) {
	b := New(2)
	for i := 0; i < 2; i++ {
		if !b.PublishInbound(InboundMessage{EventID: fmt.Sprint(i)}) {
			t.Fatalf("publish %d rejected", i)
		}
	}

	done := make(chan bool, 1)
	go func() { done <- b.PublishInbound(InboundMessage{EventID: "overflow"}) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("publish into full queue should report false")
		}
	case <-time.After(time.Second):
		t.Fatal("PublishInbound blocked on a full queue")
	}
	if b.Dropped() != 1 || b.Pending() != 2 {
		t.Errorf("dropped = %d, pending = %d", b.Dropped(), b.Pending())
	}

	msg, ok := b.ConsumeInbound(context.Background())
	if !ok || msg.EventID != "0" {
		t.Errorf("consume = %+v, %v", msg, ok)
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound should return false after cancel")
	}
}

func TestDedupeCache(t *testing.T) {
	d := NewDedupeCache(time.Minute, 3)
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	if d.IsDuplicate("a") {
		t.Fatal("first sighting is not a duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second sighting within TTL is a duplicate")
	}
	if d.IsDuplicate("") || d.IsDuplicate("") {
		t.Error("empty keys are never duplicates")
	}

	now = now.Add(2 * time.Minute)
	if d.IsDuplicate("a") {
		t.Error("key should expire after TTL")
	}

	for _, k := range []string{"b", "c", "d", "e"} {
		now = now.Add(time.Second)
		d.IsDuplicate(k)
	}
	if d.Len() > 3 {
		t.Errorf("Len = %d, cap 3", d.Len())
	}
	if !d.IsDuplicate("e") {
		t.Error("most recent key must survive eviction")
	}
}
