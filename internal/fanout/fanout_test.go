package fanout

import (
	"testing"

	"github.com/37miners/concord/internal/codec"
)

func TestSetListenerInterestStoresSendSlotWhenNoPending(t *testing.T) {
	t.Parallel()
	var local [32]byte
	f := New(local, nil)

	slot := make(SendSlot, 1)
	listenerID := [16]byte{1}
	interest := Interest{ServerPubkey: local, ServerID: [8]byte{1}}

	drainedSlot, drained := f.SetListenerInterest(listenerID, slot, []Interest{interest}, 0, 1000)
	if drainedSlot != nil || drained != nil {
		t.Fatal("expected nothing to drain on first registration")
	}

	env := &codec.Envelope{Event: &codec.PingEvent{TimestampMs: 1}}
	deliveries := f.AddEvent(env, interest)
	if len(deliveries) != 1 || deliveries[0].ListenerID != listenerID {
		t.Fatalf("expected exactly one delivery to %v, got %#v", listenerID, deliveries)
	}
}

func TestAddEventQueuesWhenNoSendSlot(t *testing.T) {
	t.Parallel()
	var local [32]byte
	f := New(local, nil)
	listenerID := [16]byte{2}
	interest := Interest{ServerPubkey: local, ServerID: [8]byte{2}}

	f.SetListenerInterest(listenerID, nil, []Interest{interest}, 0, 1000)

	env := &codec.Envelope{Event: &codec.PingEvent{TimestampMs: 1}}
	deliveries := f.AddEvent(env, interest)
	if len(deliveries) != 0 {
		t.Fatalf("expected no immediate delivery without a send slot, got %d", len(deliveries))
	}

	slot := make(SendSlot, 1)
	drainedSlot, drained := f.SetListenerInterest(listenerID, slot, []Interest{interest}, 0, 1500)
	if drainedSlot != nil {
		t.Fatal("expected nil slot returned (none was registered before)")
	}
	if len(drained) != 1 {
		t.Fatalf("expected 1 queued event drained, got %d", len(drained))
	}
}

func TestPurgeEvictsPastPurgeTimeout(t *testing.T) {
	t.Parallel()
	var local [32]byte
	f := New(local, nil)
	listenerID := [16]byte{3}
	interest := Interest{ServerPubkey: local, ServerID: [8]byte{3}}
	f.SetListenerInterest(listenerID, nil, []Interest{interest}, 0, 0)

	keepalive := f.Purge(61_000)
	if len(keepalive) != 0 {
		t.Fatalf("expected no keepalive candidates once evicted, got %d", len(keepalive))
	}
	if f.Len() != 0 {
		t.Fatalf("expected listener evicted, Len=%d", f.Len())
	}
}

func TestPurgeReclaimsSlotPastPingTimeout(t *testing.T) {
	t.Parallel()
	var local [32]byte
	f := New(local, nil)
	listenerID := [16]byte{4}
	interest := Interest{ServerPubkey: local, ServerID: [8]byte{4}}
	slot := make(SendSlot, 1)
	f.SetListenerInterest(listenerID, slot, []Interest{interest}, 0, 0)

	keepalive := f.Purge(31_000)
	if len(keepalive) != 1 || keepalive[0].ListenerID != listenerID {
		t.Fatalf("expected slot reclaimed for keepalive, got %#v", keepalive)
	}
	if f.Len() != 1 {
		t.Fatalf("expected listener still tracked (not yet past purge timeout), Len=%d", f.Len())
	}
}

func TestForeignInterestTriggersCallback(t *testing.T) {
	t.Parallel()
	var local [32]byte
	local[0] = 1
	var peer [32]byte
	peer[0] = 2

	var called []Interest
	f := New(local, func(i Interest, torPort uint16) { called = append(called, i) })

	interest := Interest{ServerPubkey: peer, ServerID: [8]byte{1}}
	f.SetListenerInterest([16]byte{5}, nil, []Interest{interest}, 19901, 0)

	if len(called) != 1 || called[0] != interest {
		t.Fatalf("expected one foreign-interest callback, got %#v", called)
	}
}
