package generator

import (
	"testing"
	"time"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, 30*time.Second)
	cb.now = func() time.Time { return now }

	cb.recordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after one failure, got %s", cb.State())
	}
	cb.recordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected open after threshold, got %s", cb.State())
	}
	if cb.canProceed() {
		t.Error("Open breaker must block requests before timeout")
	}

	// Таймаут истек: пробный запрос
	now = now.Add(31 * time.Second)
	if !cb.canProceed() {
		t.Fatal("Expected half-open breaker to allow a probe")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open, got %s", cb.State())
	}

	cb.recordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Failed probe should reopen breaker, got %s", cb.State())
	}

	now = now.Add(31 * time.Second)
	cb.canProceed()
	cb.recordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Successful probe should close breaker, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Second)
	cb.recordFailure()
	cb.recordSuccess()
	cb.recordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, failures are not consecutive; got %s", cb.State())
	}
}
