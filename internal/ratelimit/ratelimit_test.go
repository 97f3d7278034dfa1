package ratelimit

import "testing"

func TestAllowRespectsBurst(t *testing.T) {
	l := New(1, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow(1) {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if l.Allow(1) {
		t.Fatal("expected request beyond burst to be denied")
	}
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	l := New(1, 1)
	if !l.Allow(1) {
		t.Fatal("expected first request from client 1 to be allowed")
	}
	if !l.Allow(2) {
		t.Fatal("expected client 2's bucket to be independent of client 1's")
	}
	if l.Allow(1) {
		t.Fatal("expected client 1's second immediate request to be denied")
	}
}

func TestRemoveClientResetsBucket(t *testing.T) {
	l := New(1, 1)
	l.Allow(1)
	if l.Allow(1) {
		t.Fatal("expected bucket to be exhausted")
	}
	l.RemoveClient(1)
	if !l.Allow(1) {
		t.Fatal("expected a fresh bucket after RemoveClient")
	}
}
