package runtime

import (
	"testing"
	"time"
)

func TestNewStaticIntervalGenerator(t *testing.T) {
	gen := NewStaticIntervalGenerator(5 * time.Second)
	for attempt := 1; attempt <= 3; attempt++ {
		d, ok := gen(attempt)
		if !ok || d != 5*time.Second {
			t.Fatalf("attempt %d: got (%v,%v) want (5s,true)", attempt, d, ok)
		}
	}
}

func TestNewQuadraticIntervalGeneratorGrowsAndCaps(t *testing.T) {
	gen := NewQuadraticIntervalGenerator(time.Second, 10*time.Second)

	d1, ok := gen(1)
	if !ok || d1 != time.Second {
		t.Fatalf("attempt 1: got %v want 1s", d1)
	}
	d2, _ := gen(2)
	if d2 != 4*time.Second {
		t.Fatalf("attempt 2: got %v want 4s", d2)
	}
	d5, _ := gen(5)
	if d5 != 10*time.Second {
		t.Fatalf("attempt 5: got %v want capped at 10s", d5)
	}
}

func TestNewNullIntervalGeneratorNeverReArms(t *testing.T) {
	gen := NewNullIntervalGenerator()
	if _, ok := gen(1); ok {
		t.Fatalf("null generator should never re-arm")
	}
}
