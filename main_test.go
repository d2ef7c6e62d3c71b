package main

import "testing"

func TestVersionDefault(t *testing.T) {
	// Version is overridden via -ldflags at release builds; the default must
	// stay non-empty so logs always carry something.
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
