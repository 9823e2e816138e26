package application

import (
	"context"
	"testing"
	"time"

	"porter/contexts/messaging-core/circuit-breaker/ports"
)

func TestRegistryLazyCreationReturnsSameInstance(t *testing.T) {
	registry := NewRegistry(ports.Config{}, nil, nil)

	first := registry.Get("ticket-api")
	second := registry.Get("ticket-api")
	if first != second {
		t.Fatal("expected one breaker instance per name")
	}
	if registry.Get("equipment-api") == first {
		t.Fatal("different names must get different breakers")
	}
}

func TestRegistryGetWithKeepsOriginalConfig(t *testing.T) {
	registry := NewRegistry(ports.Config{FailureThreshold: 3, Cooldown: time.Minute}, nil, nil)

	breaker := registry.Get("ticket-api")
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}
	if got := breaker.Snapshot().State; got != ports.StateOpen {
		t.Fatalf("expected open, got %s", got)
	}

	// A later GetWith must not reconfigure or replace the tripped breaker.
	same := registry.GetWith("ticket-api", ports.Config{FailureThreshold: 100})
	if same.Snapshot().State != ports.StateOpen {
		t.Fatal("existing breaker state must survive GetWith")
	}
}

func TestRegistryResetAll(t *testing.T) {
	registry := NewRegistry(ports.Config{FailureThreshold: 1}, nil, nil)
	_ = registry.Get("a").Execute(context.Background(), failing, nil)
	_ = registry.Get("b").Execute(context.Background(), failing, nil)

	registry.ResetAll()
	for _, snapshot := range registry.Snapshots() {
		if snapshot.State != ports.StateClosed {
			t.Fatalf("breaker %s not reset: %s", snapshot.Name, snapshot.State)
		}
	}
}

func TestRegistrySnapshotsSorted(t *testing.T) {
	registry := NewRegistry(ports.Config{}, nil, nil)
	registry.Get("zeta")
	registry.Get("alpha")

	snapshots := registry.Snapshots()
	if len(snapshots) != 2 || snapshots[0].Name != "alpha" || snapshots[1].Name != "zeta" {
		t.Fatalf("unexpected snapshot order: %+v", snapshots)
	}
}
