package deployevents

import (
	"context"
	"testing"
	"time"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertIsIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	ev := nthlayer.DeploymentEvent{
		Provider: "github_actions", ExternalEventID: "123", Service: "checkout",
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}

	id1, inserted1, err := store.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted1 {
		t.Fatalf("expected first insert to report inserted=true")
	}

	id2, inserted2, err := store.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if inserted2 {
		t.Fatalf("expected duplicate delivery to report inserted=false")
	}
	if id1 != id2 {
		t.Fatalf("expected duplicate to return the original id: %d != %d", id1, id2)
	}
}

func TestInWindowFiltersByService(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, service := range []string{"checkout", "payments", "checkout"} {
		_, _, err := store.Insert(ctx, nthlayer.DeploymentEvent{
			Provider: "github_actions", ExternalEventID: string(rune('a' + i)),
			Service: service, StartedAt: now, FinishedAt: now,
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	events, err := store.InWindow(ctx, "checkout", now, time.Hour)
	if err != nil {
		t.Fatalf("in window: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 checkout events, got %d", len(events))
	}
}
