// Package identity maps heterogeneous raw service identifiers from
// registries, portals, and metric labels onto a single canonical
// ServiceIdentity, via the fixed resolution ladder of explicit override,
// external-ID, canonical name, alias, normalized name, fuzzy match, and
// attribute correlation.
package identity

import (
	"strings"
	"sync"
	"time"

	"github.com/rsionnach/nthlayer/internal/cache"
	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	confidenceExplicit   = 1.00
	confidenceExternalID = 0.95
	confidenceCanonical  = 1.00
	confidenceAlias      = 0.90
	confidenceNormalized = 0.85
	confidenceAttribute  = 0.75
	confidenceDiscovered = 0.70
)

// DefaultFuzzyThreshold is the minimum Ratcliff/Obershelp similarity
// accepted at ladder step 6.
const DefaultFuzzyThreshold = 0.85

// StrongAttributes are attribute keys where a single match is sufficient
// for correlation (step 7).
var StrongAttributes = []string{"repository", "repository_url"}

// WeakAttributes are attribute keys where DefaultWeakMatchCount of them
// must agree for correlation.
var WeakAttributes = []string{"owner", "team", "chat_channel"}

// DefaultWeakMatchCount is the number of weak attributes that must agree.
const DefaultWeakMatchCount = 2

// Resolver holds the canonical identity store and resolves raw queries
// against it using the fixed ladder.
type Resolver struct {
	mu        sync.RWMutex
	byName    map[string]*nthlayer.ServiceIdentity // canonical name -> identity
	overrides map[string]string                    // "raw@provider" -> canonical name
	cacheTTL  time.Duration
	matches   *cache.TTLCache

	fuzzyThreshold float64
	strongAttrs    []string
	weakAttrs      []string
	weakMatchCount int
}

// New builds a Resolver with its own query cache, applying the package
// defaults for attribute correlation (§4.1 step 7); use
// SetCorrelationConfig to override them from `identity.correlation.*`.
// cacheTTL governs the match cache and defaults to the top-level
// `cache_ttl` config value (cache.DefaultTTL) when zero.
func New(fuzzyThreshold float64, cacheTTL time.Duration) *Resolver {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}
	return &Resolver{
		byName:         make(map[string]*nthlayer.ServiceIdentity),
		overrides:      make(map[string]string),
		cacheTTL:       cacheTTL,
		matches:        cache.New(cacheTTL, 20000),
		fuzzyThreshold: fuzzyThreshold,
		strongAttrs:    StrongAttributes,
		weakAttrs:      WeakAttributes,
		weakMatchCount: DefaultWeakMatchCount,
	}
}

// SetCorrelationConfig overrides the strong/weak attribute sets and the
// weak-match count used by step 7 of the resolution ladder. Zero-value
// arguments leave the corresponding field at its current value.
func (r *Resolver) SetCorrelationConfig(strongAttrs, weakAttrs []string, weakMatchCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(strongAttrs) > 0 {
		r.strongAttrs = strongAttrs
	}
	if len(weakAttrs) > 0 {
		r.weakAttrs = weakAttrs
	}
	if weakMatchCount > 0 {
		r.weakMatchCount = weakMatchCount
	}
}

// LoadExplicitMappings registers a batch of "raw@provider" -> canonical
// overrides from `identity.explicit_mappings`.
func (r *Resolver) LoadExplicitMappings(mappings map[string]string) {
	for key, canonical := range mappings {
		raw, provider := splitOverrideKey(key)
		r.SetOverride(raw, provider, canonical)
	}
}

func splitOverrideKey(key string) (raw, provider string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '@' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// SetOverride registers an explicit "raw@provider" -> canonical mapping
// that takes absolute precedence over every other ladder step.
func (r *Resolver) SetOverride(raw, provider, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[overrideKey(raw, provider)] = canonical
	r.matches.Delete(cacheKey(raw, provider))
}

func overrideKey(raw, provider string) string { return raw + "@" + provider }
func cacheKey(raw, provider string) string    { return raw + "\x00" + provider }

// Resolve runs the resolution ladder for a (raw, provider) pair, with
// optional attributes used at the correlation step. Empty/whitespace
// input is always unresolved.
func (r *Resolver) Resolve(raw, provider string, attributes map[string]any) nthlayer.IdentityMatch {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nthlayer.IdentityMatch{Query: raw, Provider: provider, MatchType: nthlayer.MatchUnresolved}
	}

	if cached, ok := r.matches.Get(cacheKey(trimmed, provider)); ok {
		return cached.(nthlayer.IdentityMatch)
	}

	match := r.resolveLadder(trimmed, provider, attributes)
	r.matches.Set(cacheKey(trimmed, provider), match)
	return match
}

func (r *Resolver) resolveLadder(raw, provider string, attributes map[string]any) nthlayer.IdentityMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// 1. explicit override
	if canonical, ok := r.overrides[overrideKey(raw, provider)]; ok {
		if id, ok := r.byName[canonical]; ok {
			return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchExplicit, Confidence: confidenceExplicit}
		}
	}

	// 2. external-ID match for the supplied provider
	if provider != "" {
		for _, id := range r.byName {
			if id.ExternalIDs[provider] == raw {
				return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchExternalID, Confidence: confidenceExternalID}
			}
		}
	}

	// 3. exact canonical-name match
	if id, ok := r.byName[raw]; ok {
		return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchCanonical, Confidence: confidenceCanonical}
	}

	// 4. alias match
	for _, id := range r.byName {
		if _, ok := id.Aliases[raw]; ok {
			return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchAlias, Confidence: confidenceAlias}
		}
	}

	// 5. normalized-name match
	normalized := Normalize(raw)
	if normalized != "" {
		if id, ok := r.byName[normalized]; ok {
			return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchNormalized, Confidence: confidenceNormalized}
		}
		for _, id := range r.byName {
			for alias := range id.Aliases {
				if Normalize(alias) == normalized {
					return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchNormalized, Confidence: confidenceNormalized}
				}
			}
		}
	}

	// 6. fuzzy match against canonical names and normalized aliases
	if best, score := r.bestFuzzyMatch(normalized); best != nil && score >= r.fuzzyThreshold {
		return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: best, MatchType: nthlayer.MatchFuzzy, Confidence: score}
	}

	// 7. attribute correlation
	if len(attributes) > 0 {
		if id := r.correlateByAttributes(attributes); id != nil {
			return nthlayer.IdentityMatch{Query: raw, Provider: provider, Identity: id, MatchType: nthlayer.MatchAttribute, Confidence: confidenceAttribute}
		}
	}

	return nthlayer.IdentityMatch{Query: raw, Provider: provider, MatchType: nthlayer.MatchUnresolved}
}

func (r *Resolver) bestFuzzyMatch(normalized string) (*nthlayer.ServiceIdentity, float64) {
	if normalized == "" {
		return nil, 0
	}
	var best *nthlayer.ServiceIdentity
	bestScore := 0.0

	for name, id := range r.byName {
		if score := Similarity(normalized, name); score > bestScore {
			best, bestScore = id, score
		}
		for alias := range id.Aliases {
			if score := Similarity(normalized, Normalize(alias)); score > bestScore {
				best, bestScore = id, score
			}
		}
	}
	return best, bestScore
}

func (r *Resolver) correlateByAttributes(attributes map[string]any) *nthlayer.ServiceIdentity {
	for _, id := range r.byName {
		for _, key := range r.strongAttrs {
			if matchesAttribute(id, key, attributes) {
				return id
			}
		}

		weakMatches := 0
		for _, key := range r.weakAttrs {
			if matchesAttribute(id, key, attributes) {
				weakMatches++
			}
		}
		if weakMatches >= r.weakMatchCount {
			return id
		}
	}
	return nil
}

func matchesAttribute(id *nthlayer.ServiceIdentity, key string, attributes map[string]any) bool {
	want, ok := attributes[key]
	if !ok {
		return false
	}
	have, ok := id.Attributes[key]
	if !ok {
		return false
	}
	return want == have
}

// RegisterFromDiscovery is idempotent: it resolves raw first, and if
// already bound, merges external IDs, aliases, attributes, and bumps
// LastSeen; otherwise it creates a new identity at confidence 0.7.
func (r *Resolver) RegisterFromDiscovery(raw, provider string, attributes map[string]any) *nthlayer.ServiceIdentity {
	match := r.Resolve(raw, provider, attributes)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if match.Resolved() {
		id := match.Identity
		if provider != "" {
			id.ExternalIDs[provider] = raw
		}
		id.Aliases[raw] = struct{}{}
		for k, v := range attributes {
			id.Attributes[k] = v
		}
		id.LastSeen = now
		r.invalidateCacheFor(raw, provider)
		return id
	}

	canonical := Normalize(raw)
	if canonical == "" {
		canonical = raw
	}
	id := &nthlayer.ServiceIdentity{
		CanonicalName: canonical,
		Aliases:       map[string]struct{}{raw: {}},
		ExternalIDs:   map[string]string{},
		Attributes:    copyAttributes(attributes),
		Confidence:    confidenceDiscovered,
		Source:        nthlayer.IdentityDiscovered,
		CreatedAt:     now,
		LastSeen:      now,
	}
	if provider != "" {
		id.ExternalIDs[provider] = raw
	}
	r.byName[canonical] = id
	r.invalidateCacheFor(raw, provider)

	logging.GetLogger().Debug("registered identity from discovery",
		logging.String("canonical_name", canonical), logging.String("provider", provider))

	return id
}

// Register inserts identity, or merges it into an existing identity with
// the same canonical name when merge is true (higher confidence wins,
// aliases union).
func (r *Resolver) Register(id *nthlayer.ServiceIdentity, merge bool) *nthlayer.ServiceIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byName[id.CanonicalName]
	if !ok || !merge {
		r.byName[id.CanonicalName] = id
		return id
	}

	if id.Confidence > existing.Confidence {
		existing.Confidence = id.Confidence
		existing.Source = id.Source
	}
	for alias := range id.Aliases {
		existing.Aliases[alias] = struct{}{}
	}
	for provider, raw := range id.ExternalIDs {
		existing.ExternalIDs[provider] = raw
	}
	for k, v := range id.Attributes {
		existing.Attributes[k] = v
	}
	if id.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = id.LastSeen
	}
	return existing
}

// All returns every registered identity, for graph/report builds.
func (r *Resolver) All() map[string]*nthlayer.ServiceIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*nthlayer.ServiceIdentity, len(r.byName))
	for k, v := range r.byName {
		out[k] = v
	}
	return out
}

func (r *Resolver) invalidateCacheFor(raw, provider string) {
	r.matches.Delete(cacheKey(raw, provider))
}

func copyAttributes(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
