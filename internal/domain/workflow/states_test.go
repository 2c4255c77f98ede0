package workflow

import "testing"

func TestCanTransit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to State
		want     bool
	}{
		{Created, Ready, true},
		{Created, Running, false},
		{Ready, Running, true},
		{Ready, Blocked, false},
		{Running, Blocked, true},
		{Blocked, Ready, true},
		{Suspended, Ready, true},
		{Suspended, Blocked, false},
		{Finished, Ready, false},
	}

	for _, c := range cases {
		if got := CanTransit(c.from, c.to); got != c.want {
			t.Fatalf("CanTransit(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	if !LowerPriority(Created, Finished) {
		t.Fatalf("CREATED must sort below FINISHED")
	}
	if !LowerPriority(Revoked, Suspended) {
		t.Fatalf("REVOKED must sort below SUSPENDED")
	}
	if !LowerPriority(Suspended, Finished) {
		t.Fatalf("SUSPENDED must sort below FINISHED")
	}
	if LowerPriority(Finished, Failed) || LowerPriority(Failed, Finished) {
		t.Fatalf("FINISHED and FAILED must share priority")
	}
}

func TestIsArchived(t *testing.T) {
	t.Parallel()
	for _, s := range []State{Finished, Failed, Revoked} {
		if !IsArchived(s) {
			t.Fatalf("%s should be archived", s)
		}
	}
	for _, s := range []State{Created, Ready, Running, Blocked, Suspended} {
		if IsArchived(s) {
			t.Fatalf("%s should not be archived", s)
		}
	}
}
