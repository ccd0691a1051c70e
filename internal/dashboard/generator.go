package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Generator turns a resolved set of Intents into a deterministic
// Dashboard: one panel per intent, sorted by intent name so repeated
// runs against an unchanged service produce byte-identical artifacts.
type Generator struct {
	resolver *Resolver
}

func NewGenerator(resolver *Resolver) *Generator {
	return &Generator{resolver: resolver}
}

// Generate resolves every intent applicable to tech and returns the
// assembled dashboard. A Panel is only ever emitted for a resolved or
// fallback expression, or as an explicit guidance panel when
// unresolved — never one referencing a metric that was never observed.
func (g *Generator) Generate(ctx context.Context, spec *nthlayer.ServiceSpec) (nthlayer.Dashboard, error) {
	intents := intentsForSpec(spec)
	sort.Slice(intents, func(i, j int) bool { return intents[i].Name < intents[j].Name })

	dash := nthlayer.Dashboard{Service: spec.Name, Title: fmt.Sprintf("%s — generated reliability overview", spec.Name)}

	for _, intent := range intents {
		result, err := g.resolver.Resolve(ctx, spec.Name, intent, spec.CustomMetrics)
		if err != nil {
			return nthlayer.Dashboard{}, err
		}
		dash.Panels = append(dash.Panels, panelFor(result))
	}
	return dash, nil
}

// baseTechnology maps a service's declared type to the technology the
// catalog's generic HTTP/worker intents key off of.
var baseTechnology = map[nthlayer.ServiceType]string{
	nthlayer.ServiceTypeAPI:    "http",
	nthlayer.ServiceTypeWorker: "worker",
	nthlayer.ServiceTypeStream: "kafka",
	nthlayer.ServiceTypeBatch:  "worker",
	nthlayer.ServiceTypeOther:  "generic",
}

// intentsForSpec unions the intents for the service's own type with
// the intents for every declared dependency's technology, so a service
// with a Postgres dependency gets both its HTTP panels and its
// connection-pool/replication-lag panels. The spec's TechOverride map
// is not read here; technologies come only from the service type and
// the dependencies' Technology fields.
func intentsForSpec(spec *nthlayer.ServiceSpec) []nthlayer.Intent {
	techs := map[string]struct{}{}
	if t, ok := baseTechnology[spec.Type]; ok {
		techs[t] = struct{}{}
	} else {
		techs["generic"] = struct{}{}
	}
	for _, dep := range spec.Dependencies {
		if dep.Technology != "" {
			techs[dep.Technology] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	var out []nthlayer.Intent
	for tech := range techs {
		for _, intent := range ForTechnology(tech) {
			if _, dup := seen[intent.Name]; dup {
				continue
			}
			seen[intent.Name] = struct{}{}
			out = append(out, intent)
		}
	}
	return out
}

func panelFor(r nthlayer.ResolutionResult) nthlayer.Panel {
	if r.Status == nthlayer.ResolutionUnresolved {
		return nthlayer.Panel{
			Title:      r.Intent.Name,
			IsGuidance: true,
			Guidance:   r.Guidance,
		}
	}
	return nthlayer.Panel{
		Title:         r.Intent.Name,
		Expression:    r.Expression,
		Visualization: visualizationFor(r.Intent.ExpectedType),
	}
}

func visualizationFor(t nthlayer.MetricCandidateType) string {
	switch t {
	case nthlayer.MetricTypeHistogram, nthlayer.MetricTypeSummary:
		return "heatmap"
	case nthlayer.MetricTypeGauge:
		return "gauge"
	default:
		return "graph"
	}
}

// artifactPanel is the stable on-disk shape of a Panel, decoupled from
// the in-memory nthlayer.Panel so field renames there don't silently
// change the artifact's wire format.
type artifactPanel struct {
	Title         string `yaml:"title" json:"title"`
	Expression    string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Visualization string `yaml:"visualization,omitempty" json:"visualization,omitempty"`
	Guidance      string `yaml:"guidance,omitempty" json:"guidance,omitempty"`
	IsGuidance    bool   `yaml:"is_guidance,omitempty" json:"is_guidance,omitempty"`
}

type artifactDashboard struct {
	Service string          `yaml:"service" json:"service"`
	Title   string          `yaml:"title" json:"title"`
	Panels  []artifactPanel `yaml:"panels" json:"panels"`
}

func toArtifact(d nthlayer.Dashboard) artifactDashboard {
	out := artifactDashboard{Service: d.Service, Title: d.Title}
	for _, p := range d.Panels {
		out.Panels = append(out.Panels, artifactPanel{
			Title: p.Title, Expression: p.Expression,
			Visualization: p.Visualization, Guidance: p.Guidance, IsGuidance: p.IsGuidance,
		})
	}
	return out
}

// MarshalYAML renders the dashboard as the YAML document written to
// the orchestrator's sink.
func MarshalYAML(d nthlayer.Dashboard) ([]byte, error) {
	return yaml.Marshal(toArtifact(d))
}

// MarshalJSON renders the dashboard as JSON for the query API surface.
func MarshalJSON(d nthlayer.Dashboard) ([]byte, error) {
	return json.MarshalIndent(toArtifact(d), "", "  ")
}
