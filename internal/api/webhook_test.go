package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/rsionnach/nthlayer/internal/deployevents"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

type fakeAdapter struct {
	name      string
	verifyErr error
	event     *nthlayer.DeploymentEvent
	parseErr  error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Verify(signatureHeader string, body []byte) error { return a.verifyErr }

func (a *fakeAdapter) Parse(ctx context.Context, body []byte) (*nthlayer.DeploymentEvent, error) {
	return a.event, a.parseErr
}

func testServer(t *testing.T, adapter *fakeAdapter) (*httptest.Server, *deployevents.Store) {
	t.Helper()
	return testServerWithLimit(t, adapter, defaultWebhookMaxConcurrent)
}

func testServerWithLimit(t *testing.T, adapter *fakeAdapter, limit int) (*httptest.Server, *deployevents.Store) {
	t.Helper()
	store, err := deployevents.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handlers := NewWebhookHandlersWithLimit(store, limit)
	handlers.Register(adapter.name, "X-Signature", adapter)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	adapter := &fakeAdapter{name: "github_actions", verifyErr: deployevents.ErrSignatureMismatch}
	server, _ := testServer(t, adapter)

	resp, err := http.Post(server.URL+"/webhooks/deployments/github_actions", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhookHandlerAcceptsInProgressEventWithoutPersisting(t *testing.T) {
	adapter := &fakeAdapter{name: "github_actions", event: nil}
	server, store := testServer(t, adapter)

	resp, err := http.Post(server.URL+"/webhooks/deployments/github_actions", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	events, err := store.InWindow(context.Background(), "checkout", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("in window: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no persisted events, got %d", len(events))
	}
}

func TestWebhookHandlerPersistsTerminalEvent(t *testing.T) {
	now := time.Now()
	adapter := &fakeAdapter{
		name: "github_actions",
		event: &nthlayer.DeploymentEvent{
			Provider: "github_actions", ExternalEventID: "42", Service: "checkout",
			StartedAt: now, FinishedAt: now,
		},
	}
	server, store := testServer(t, adapter)

	resp, err := http.Post(server.URL+"/webhooks/deployments/github_actions", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	events, err := store.InWindow(context.Background(), "checkout", now, time.Hour)
	if err != nil {
		t.Fatalf("in window: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
}

type blockingAdapter struct {
	name    string
	release chan struct{}
}

func (a *blockingAdapter) Name() string { return a.name }

func (a *blockingAdapter) Verify(signatureHeader string, body []byte) error { return nil }

func (a *blockingAdapter) Parse(ctx context.Context, body []byte) (*nthlayer.DeploymentEvent, error) {
	<-a.release
	return nil, nil
}

func TestWebhookHandlerRejectsOverCapacityDeliveries(t *testing.T) {
	release := make(chan struct{})
	adapter := &blockingAdapter{name: "github_actions", release: release}

	store, err := deployevents.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handlers := NewWebhookHandlersWithLimit(store, 1)
	handlers.Register(adapter.name, "X-Signature", adapter)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	done := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(server.URL+"/webhooks/deployments/github_actions", "application/json", nil)
		if err != nil {
			t.Error(err)
			return
		}
		done <- resp
	}()

	// Give the first request time to take the single slot before firing
	// the second, which must be rejected rather than queued.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(server.URL+"/webhooks/deployments/github_actions", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	close(release)
	first := <-done
	first.Body.Close()
}

func TestWebhookHandlerUnknownProvider404s(t *testing.T) {
	adapter := &fakeAdapter{name: "github_actions"}
	server, _ := testServer(t, adapter)

	resp, err := http.Post(server.URL+"/webhooks/deployments/unknown", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
