package instance

import "testing"

func TestGetIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("SHIPWALLET_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv("SHIPWALLET_INSTANCE_ID", "")
	t.Setenv("DYNO", "worker.2")
	if got := GetID(); got != "worker.2" {
		t.Fatalf("expected worker.2, got %q", got)
	}
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv("SHIPWALLET_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "")
	if GetID() == "" {
		t.Fatal("expected a non-empty instance id")
	}
}
