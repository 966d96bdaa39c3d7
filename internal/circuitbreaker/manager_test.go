package circuitbreaker

import (
	"testing"
	"time"
)

func TestManager_PerPrinterIsolation(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 2, ResetTimeout: time.Hour})

	m.RecordFailure(1)
	m.RecordFailure(1)

	if m.State(1) != StateOpen {
		t.Fatal("Expected printer 1 to be open")
	}
	if m.Allow(1, "r") {
		t.Error("Expected printer 1 to be rejected")
	}
	if !m.Allow(2, "r") {
		t.Error("Expected printer 2 to be unaffected")
	}
}

func TestManager_SuccessDoesNotTrack(t *testing.T) {
	m := NewManager(Config{})

	m.RecordSuccess(7)
	if _, ok := m.breakers[7]; ok {
		t.Error("Expected success on an untracked printer not to allocate a breaker")
	}
	if m.State(7) != StateClosed {
		t.Error("Expected untracked printer to be closed")
	}
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 1, ResetTimeout: time.Hour})

	m.RecordFailure(3)
	m.Remove(3)
	if m.State(3) != StateClosed {
		t.Error("Expected removed printer to read closed")
	}
}

func TestManager_Nil(t *testing.T) {
	var m *Manager
	if !m.Allow(1, "r") {
		t.Error("Expected nil manager to admit")
	}
	m.RecordFailure(1)
	m.RecordSuccess(1)
	m.Remove(1)
	if m.State(1) != StateClosed {
		t.Error("Expected nil manager to report closed")
	}
}
