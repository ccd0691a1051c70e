package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/rsionnach/nthlayer/internal/graph"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

func testQueryHandlers(t *testing.T, specs SpecLookup) (*httptest.Server, *QueryHandlers) {
	t.Helper()
	dg := &nthlayer.DependencyGraph{
		Identities: map[string]*nthlayer.ServiceIdentity{
			"checkout": {CanonicalName: "checkout"},
			"payments": {CanonicalName: "payments"},
		},
		Edges: []nthlayer.ResolvedDependency{
			{
				Source: &nthlayer.ServiceIdentity{CanonicalName: "checkout"},
				Target: &nthlayer.ServiceIdentity{CanonicalName: "payments"},
			},
		},
	}

	handlers := NewQueryHandlers(graph.Build(dg), nil, nil, nil, specs)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, handlers
}

func TestBlastRadiusEndpointReturnsAffectedServices(t *testing.T) {
	server, _ := testQueryHandlers(t, func(string) (*nthlayer.ServiceSpec, bool) { return nil, false })

	resp, err := http.Get(server.URL + "/services/payments/blast-radius")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestOwnershipEndpointReturns404ForUnknownService(t *testing.T) {
	server, _ := testQueryHandlers(t, func(string) (*nthlayer.ServiceSpec, bool) { return nil, false })

	resp, err := http.Get(server.URL + "/services/ghost/ownership")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDriftEndpointReturns404ForUnknownSLO(t *testing.T) {
	spec := &nthlayer.ServiceSpec{Name: "checkout"}
	server, _ := testQueryHandlers(t, func(name string) (*nthlayer.ServiceSpec, bool) {
		if name == "checkout" {
			return spec, true
		}
		return nil, false
	})

	resp, err := http.Get(server.URL + "/services/checkout/drift/availability")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
