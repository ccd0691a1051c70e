package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rsionnach/nthlayer/internal/dashboard"
	"github.com/rsionnach/nthlayer/internal/drift"
	"github.com/rsionnach/nthlayer/internal/graph"
	"github.com/rsionnach/nthlayer/internal/ownership"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// SpecLookup resolves a service name to its declared ServiceSpec.
type SpecLookup func(service string) (*nthlayer.ServiceSpec, bool)

// QueryHandlers exposes read endpoints over the graph, ownership,
// drift, and dashboard components.
type QueryHandlers struct {
	graph      *graph.Graph
	owners     *ownership.Resolver
	analyzer   *drift.Analyzer
	dashboards *dashboard.Generator
	specs      SpecLookup
}

func NewQueryHandlers(g *graph.Graph, owners *ownership.Resolver, analyzer *drift.Analyzer, dashboards *dashboard.Generator, specs SpecLookup) *QueryHandlers {
	return &QueryHandlers{graph: g, owners: owners, analyzer: analyzer, dashboards: dashboards, specs: specs}
}

func (h *QueryHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/services/{name}/blast-radius", h.blastRadius).Methods(http.MethodGet)
	router.HandleFunc("/services/{name}/ownership", h.ownership).Methods(http.MethodGet)
	router.HandleFunc("/services/{name}/drift/{slo}", h.drift).Methods(http.MethodGet)
	router.HandleFunc("/services/{name}/dashboard", h.dashboard).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *QueryHandlers) blastRadius(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeJSON(w, http.StatusOK, h.graph.CalculateBlastRadius(name))
}

func (h *QueryHandlers) ownership(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	spec, ok := h.specs(name)
	if !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}

	attribution := h.owners.Resolve(r.Context(), spec.Name, spec.Team, spec.Repository)
	writeJSON(w, http.StatusOK, attribution)
}

func (h *QueryHandlers) drift(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	spec, ok := h.specs(vars["name"])
	if !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}

	var slo *nthlayer.SLO
	for i := range spec.SLOs {
		if spec.SLOs[i].Name == vars["slo"] {
			slo = &spec.SLOs[i]
			break
		}
	}
	if slo == nil {
		http.Error(w, "unknown slo", http.StatusNotFound)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), spec, *slo)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QueryHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	spec, ok := h.specs(name)
	if !ok {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}

	dash, err := h.dashboards.Generate(r.Context(), spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
