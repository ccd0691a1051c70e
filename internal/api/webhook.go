package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rsionnach/nthlayer/internal/deployevents"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// WebhookAdapter is satisfied by each deployevents provider adapter;
// Parse takes a context so the TFE adapter can hydrate a run over the
// network while the GitHub adapter's simpler signature still complies
// by ignoring it.
type WebhookAdapter interface {
	Name() string
	Verify(signatureHeader string, body []byte) error
	Parse(ctx context.Context, body []byte) (*nthlayer.DeploymentEvent, error)
}

// defaultWebhookMaxConcurrent bounds in-flight webhook deliveries when
// the caller doesn't configure one explicitly.
const defaultWebhookMaxConcurrent = 32

// WebhookHandlers registers one POST route per configured provider
// adapter under /webhooks/deployments/{provider}.
type WebhookHandlers struct {
	store     *deployevents.Store
	adapters  map[string]WebhookAdapter
	sigHeader map[string]string
	slots     chan struct{}
}

// NewWebhookHandlers builds handlers with the default concurrency cap.
// Use NewWebhookHandlersWithLimit to override it.
func NewWebhookHandlers(store *deployevents.Store) *WebhookHandlers {
	return NewWebhookHandlersWithLimit(store, defaultWebhookMaxConcurrent)
}

// NewWebhookHandlersWithLimit builds handlers that reject deliveries
// beyond maxConcurrent in-flight requests with 503, per §5's
// backpressure requirement on the webhook endpoint.
func NewWebhookHandlersWithLimit(store *deployevents.Store, maxConcurrent int) *WebhookHandlers {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultWebhookMaxConcurrent
	}
	return &WebhookHandlers{
		store:     store,
		adapters:  make(map[string]WebhookAdapter),
		sigHeader: make(map[string]string),
		slots:     make(chan struct{}, maxConcurrent),
	}
}

// Register wires an adapter under path segment name, reading its
// signature from the named HTTP header.
func (h *WebhookHandlers) Register(name, signatureHeader string, adapter WebhookAdapter) {
	h.adapters[name] = adapter
	h.sigHeader[name] = signatureHeader
}

func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/deployments/{provider}", h.handle).Methods(http.MethodPost)
}

func (h *WebhookHandlers) handle(w http.ResponseWriter, r *http.Request) {
	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
	default:
		if t := telemetry.Get(); t != nil {
			t.WebhookOverload.Inc()
		}
		http.Error(w, "webhook delivery concurrency limit exceeded", http.StatusServiceUnavailable)
		return
	}

	provider := mux.Vars(r)["provider"]
	adapter, ok := h.adapters[provider]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if t := telemetry.Get(); t != nil {
		t.WebhooksReceived.WithLabelValues(provider).Inc()
	}

	header := r.Header.Get(h.sigHeader[provider])
	if err := adapter.Verify(header, body); err != nil {
		logging.GetLogger().Warning("webhook signature rejected", logging.String("provider", provider), logging.Err(err))
		http.Error(w, "signature invalid", http.StatusUnauthorized)
		return
	}

	ev, err := adapter.Parse(r.Context(), body)
	if err != nil {
		logging.GetLogger().Error("webhook parse failed", logging.String("provider", provider), logging.Err(err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if ev == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	_, inserted, err := h.store.Insert(r.Context(), *ev)
	if err != nil {
		logging.GetLogger().Error("webhook persist failed", logging.String("provider", provider), logging.Err(err))
		http.Error(w, "persist failed", http.StatusInternalServerError)
		return
	}
	if !inserted {
		if t := telemetry.Get(); t != nil {
			t.WebhookDuplicates.Inc()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"inserted": inserted})
}
