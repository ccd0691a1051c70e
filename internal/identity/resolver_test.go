package identity

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{"PaymentsService-prod", "com.acme.orders.OrderApi-v2", "checkout_svc", "svc-billing"}
	for _, c := range cases {
		once := Normalize(c)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize(%q) = %q, Normalize(that) = %q; want idempotent", c, once, twice)
		}
	}
}

func TestNormalizeStripsEnvAndVersion(t *testing.T) {
	if got := Normalize("orders-api-prod"); got != "orders" {
		t.Errorf("got %q, want %q", got, "orders")
	}
	if got := Normalize("orders-svc-v2"); got != "orders" {
		t.Errorf("got %q, want %q", got, "orders")
	}
}

func TestResolveExplicitOverrideWins(t *testing.T) {
	r := New(0, 0)
	r.RegisterFromDiscovery("payments-api", "consul", nil)
	r.RegisterFromDiscovery("billing-api", "portal", nil)
	r.SetOverride("ambiguous", "consul", "billing")

	match := r.Resolve("ambiguous", "consul", nil)
	if !match.Resolved() || match.MatchType != "explicit" {
		t.Fatalf("expected explicit match, got %+v", match)
	}
	if match.Identity.CanonicalName != "billing" {
		t.Errorf("got canonical %q, want billing", match.Identity.CanonicalName)
	}
}

func TestResolveUnresolvedOnEmpty(t *testing.T) {
	r := New(0, 0)
	match := r.Resolve("   ", "consul", nil)
	if match.Resolved() {
		t.Fatalf("expected unresolved match for blank input")
	}
}

func TestRegisterFromDiscoveryIsIdempotent(t *testing.T) {
	r := New(0, 0)
	first := r.RegisterFromDiscovery("orders-api", "consul", map[string]any{"team": "checkout"})
	second := r.RegisterFromDiscovery("orders-api", "consul", map[string]any{"owner": "checkout-team"})

	if first.CanonicalName != second.CanonicalName {
		t.Fatalf("expected same identity, got %q and %q", first.CanonicalName, second.CanonicalName)
	}
	if _, ok := second.Attributes["owner"]; !ok {
		t.Errorf("expected merged attribute owner to be present")
	}
}

func TestFuzzyMatchAboveThreshold(t *testing.T) {
	r := New(0.6, 0)
	r.RegisterFromDiscovery("checkout-service", "consul", nil)

	match := r.Resolve("checkot-service", "portal", nil)
	if !match.Resolved() {
		t.Fatalf("expected fuzzy match to resolve")
	}
	if match.MatchType != "fuzzy" && match.MatchType != "normalized" {
		t.Errorf("expected fuzzy or normalized match, got %s", match.MatchType)
	}
}

func TestCorrelateByAttributesRespectsConfiguredWeakMatchCount(t *testing.T) {
	r := New(0, 0)
	r.SetCorrelationConfig(nil, []string{"owner", "team"}, 1)
	r.RegisterFromDiscovery("checkout-api", "consul", map[string]any{"owner": "checkout-team"})

	match := r.Resolve("unrelated-raw-name", "portal", map[string]any{"owner": "checkout-team"})
	if !match.Resolved() || match.MatchType != "attribute_correlation" {
		t.Fatalf("expected attribute match with weak_match_count=1, got %+v", match)
	}
}

func TestLoadExplicitMappingsRegistersOverrides(t *testing.T) {
	r := New(0, 0)
	r.RegisterFromDiscovery("billing-api", "portal", nil)
	r.LoadExplicitMappings(map[string]string{"legacy-billing@consul": "billing"})

	match := r.Resolve("legacy-billing", "consul", nil)
	if !match.Resolved() || match.MatchType != "explicit" {
		t.Fatalf("expected explicit match from loaded mapping, got %+v", match)
	}
}

func TestSimilarityIdentical(t *testing.T) {
	if Similarity("checkout", "checkout") != 1 {
		t.Errorf("expected identical strings to have similarity 1")
	}
}

func TestSimilarityEmpty(t *testing.T) {
	if Similarity("", "checkout") != 0 {
		t.Errorf("expected empty string to have similarity 0")
	}
}
