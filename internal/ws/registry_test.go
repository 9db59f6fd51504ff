package ws

import (
	"testing"
)

type fakeChannel struct {
	open     bool
	received [][]byte
}

func (f *fakeChannel) Send(payload []byte) bool {
	if !f.open {
		return false
	}
	f.received = append(f.received, payload)
	return true
}

func (f *fakeChannel) Open() bool { return f.open }

func TestBroadcastSkipsClosedChannels(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{open: true}
	b := &fakeChannel{open: false}
	r.Add("u1", a)
	r.Add("u1", b)
	r.Add("u2", &fakeChannel{open: true})

	r.Broadcast("u1", []byte("snap"))

	if len(a.received) != 1 {
		t.Fatalf("open channel got %d payloads, want 1", len(a.received))
	}
	if len(b.received) != 0 {
		t.Fatalf("closed channel received a payload")
	}
}

func TestHasOtherOpen(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{open: true}
	b := &fakeChannel{open: true}
	r.Add("u1", a)

	if r.HasOtherOpen("u1", a) {
		t.Fatalf("single channel must not count as other")
	}

	r.Add("u1", b)
	if !r.HasOtherOpen("u1", a) {
		t.Fatalf("expected another open channel")
	}

	b.open = false
	if r.HasOtherOpen("u1", a) {
		t.Fatalf("closed channel must not count as other open")
	}
}

func TestRemoveDeletesEmptyUserEntry(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{open: true}
	r.Add("u1", a)
	r.Remove("u1", a)

	if _, ok := r.channels["u1"]; ok {
		t.Fatalf("empty user entry was not deleted")
	}

	// Removing an unknown channel is harmless.
	r.Remove("u1", a)
	r.Remove("ghost", a)
}

func TestEachVisitsAllChannels(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", &fakeChannel{open: true})
	r.Add("u1", &fakeChannel{open: true})
	r.Add("u2", &fakeChannel{open: true})

	visits := 0
	r.Each(func(string, Channel) { visits++ })
	if visits != 3 {
		t.Fatalf("visited %d channels, want 3", visits)
	}
}
