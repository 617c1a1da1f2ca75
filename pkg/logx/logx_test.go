package logx

import "testing"

func TestDebugToggle(t *testing.T) {
	orig := IsDebugEnabled()
	defer SetDebug(orig)

	SetDebug(true)
	if !IsDebugEnabled() {
		t.Error("Expected debug enabled after SetDebug(true)")
	}

	SetDebug(false)
	if IsDebugEnabled() {
		t.Error("Expected debug disabled after SetDebug(false)")
	}
}

func TestWithComponent(t *testing.T) {
	base := NewLogger("router")
	child := base.WithComponent("breaker")

	if base.Component() != "router" {
		t.Errorf("base component = %q, want router", base.Component())
	}
	if child.Component() != "breaker" {
		t.Errorf("child component = %q, want breaker", child.Component())
	}
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("backend %s failed", "anthropic")
	if err == nil {
		t.Fatal("Errorf returned nil")
	}
	if err.Error() != "backend anthropic failed" {
		t.Errorf("unexpected error text: %v", err)
	}
}
