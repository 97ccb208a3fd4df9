package server

import (
	"testing"

	"jaysonic/config"
)

// TestExclusiveRejectsPortSharing is the spec §6.2 "exclusive: bool
// (disallow port sharing)" default: two servers cannot bind the same
// address when Exclusive is true (the default).
func TestExclusiveRejectsPortSharing(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.Exclusive = true
	s1 := New(cfg)
	l1, err := s1.listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()

	s2 := New(cfg)
	if _, err := s2.listen("tcp", l1.Addr().String()); err == nil {
		t.Fatal("expect binding an already-bound exclusive address to fail")
	}
}

// TestNonExclusiveAllowsPortSharing verifies Exclusive: false sets
// SO_REUSEPORT so a second server process can bind the same address.
func TestNonExclusiveAllowsPortSharing(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.Exclusive = false
	s1 := New(cfg)
	l1, err := s1.listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()

	s2 := New(cfg)
	l2, err := s2.listen("tcp", l1.Addr().String())
	if err != nil {
		t.Fatalf("expect a second non-exclusive bind to the same address to succeed, got %v", err)
	}
	defer l2.Close()
}
