package scheduler

import (
	"context"
	"testing"
)

func TestRegisterAll_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil, nil, nil, nil)
	err := s.RegisterAll("not a cron spec", "0 */15 * * * *", "0 30 7 * * *",
		"0 0 2 1 * *", "0 */30 * * * *", "0 0 22 * * *")
	if err == nil {
		t.Fatal("expected an error for a malformed cron spec")
	}
}

func TestRegisterAll_AcceptsDefaults(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil, nil, nil, nil)
	err := s.RegisterAll("0 0 7 * * *", "0 */15 * * * *", "0 30 7 * * *",
		"0 0 2 1 * *", "0 */30 * * * *", "0 0 22 * * *")
	if err != nil {
		t.Fatalf("expected default specs to register: %v", err)
	}
}
