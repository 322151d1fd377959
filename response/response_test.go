package response

import "testing"

func TestGrantCanProceed(t *testing.T) {
	r := Grant(1, "ok", []int64{1, 2})
	if !r.CanProceed() {
		t.Error("Grant response should CanProceed")
	}
	if r.ShouldRetry() || r.ShouldRollback() {
		t.Error("Grant response should not retry or rollback")
	}
}

func TestWaitShouldRetry(t *testing.T) {
	r := Wait(1, "blocked", []int64{2}, []int64{1, 2})
	if !r.ShouldRetry() {
		t.Error("Waiting response should ShouldRetry")
	}
	if r.CanProceed() || r.ShouldRollback() {
		t.Error("Waiting response should not proceed or rollback")
	}
	if len(r.BlockedBy) != 1 || r.BlockedBy[0] != 2 {
		t.Errorf("BlockedBy = %v, want [2]", r.BlockedBy)
	}
}

func TestFailShouldRollback(t *testing.T) {
	r := Fail(1, "deadlock", []int64{2, 3}, []int64{1, 2, 3})
	if !r.ShouldRollback() {
		t.Error("Failed response should ShouldRollback")
	}
	if r.CanProceed() || r.ShouldRetry() {
		t.Error("Failed response should not proceed or retry")
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{Granted: "Granted", Waiting: "Waiting", Failed: "Failed"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
