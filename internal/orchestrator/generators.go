package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rsionnach/nthlayer/internal/dashboard"
	"github.com/rsionnach/nthlayer/internal/graph"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Generator produces zero or more Artifacts from a ResourceIndex. The
// orchestrator runs generators in a fixed order — recording rules,
// alerts, dashboards, directory entries — so a diff between two plans
// reads the same way every time.
type Generator interface {
	Name() string
	Generate(ctx context.Context, idx *nthlayer.ResourceIndex) ([]nthlayer.Artifact, error)
}

// Generators returns the fixed-order generator pipeline.
func Generators(dashGen *dashboard.Generator, depGraph *graph.Graph) []Generator {
	return []Generator{
		&RecordingRuleGenerator{},
		&AlertRuleGenerator{graph: depGraph},
		&DashboardGenerator{gen: dashGen},
		&DirectoryEntryGenerator{},
	}
}

func hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func seal(kind nthlayer.ArtifactKind, service string, content []byte) nthlayer.Artifact {
	return nthlayer.Artifact{
		Kind: kind, Service: service, Content: content, ContentHash: hash(content),
	}
}

// recordingRule is the on-disk shape of one generated Prometheus
// recording rule, one per declared SLO so the drift analyzer and
// dashboards share a single precomputed budget series.
type recordingRule struct {
	Record string `yaml:"record"`
	Expr   string `yaml:"expr"`
}

type recordingRuleGroup struct {
	Groups []struct {
		Name  string          `yaml:"name"`
		Rules []recordingRule `yaml:"rules"`
	} `yaml:"groups"`
}

// RecordingRuleGenerator emits one recording rule per SLO, precomputing
// the error-budget-remaining expression so the drift analyzer and
// dashboards query a stable series instead of re-deriving it.
type RecordingRuleGenerator struct{}

func (g *RecordingRuleGenerator) Name() string { return "recording_rules" }

func (g *RecordingRuleGenerator) Generate(ctx context.Context, idx *nthlayer.ResourceIndex) ([]nthlayer.Artifact, error) {
	slos := idx.Get(nthlayer.ResourceKindSLO)
	if len(slos) == 0 {
		return nil, nil
	}

	var group recordingRuleGroup
	group.Groups = []struct {
		Name  string          `yaml:"name"`
		Rules []recordingRule `yaml:"rules"`
	}{{Name: fmt.Sprintf("%s.budget", idx.Spec.Name)}}

	for _, r := range slos {
		slo := r.Ref.(*nthlayer.SLO)
		expr := slo.SuccessCondition
		if expr == "" {
			expr = fmt.Sprintf(`1 - (sum(rate(http_requests_total{service=%q,code=~"5.."}[5m])) / sum(rate(http_requests_total{service=%q}[5m])))`, idx.Spec.Name, idx.Spec.Name)
		}
		group.Groups[0].Rules = append(group.Groups[0].Rules, recordingRule{
			Record: fmt.Sprintf("nthlayer:budget:%s:%s", idx.Spec.Name, slo.Name),
			Expr:   expr,
		})
	}

	content, err := yaml.Marshal(group)
	if err != nil {
		return nil, err
	}
	return []nthlayer.Artifact{seal(nthlayer.ArtifactRecordingRule, idx.Spec.Name, content)}, nil
}

// alertRule is the on-disk shape of a generated Prometheus alert,
// scoped to one dependency's blast radius.
type alertRule struct {
	Alert  string            `yaml:"alert"`
	Expr   string            `yaml:"expr"`
	For    string            `yaml:"for"`
	Labels map[string]string `yaml:"labels"`
}

type alertRuleGroup struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

// AlertRuleGenerator emits a dependency-down alert for every declared
// dependency, labeled with the transitive blast radius so on-call sees
// downstream impact at alert time rather than having to look it up.
type AlertRuleGenerator struct {
	graph *graph.Graph
}

func (g *AlertRuleGenerator) Name() string { return "alert_rules" }

func (g *AlertRuleGenerator) Generate(ctx context.Context, idx *nthlayer.ResourceIndex) ([]nthlayer.Artifact, error) {
	deps := idx.Get(nthlayer.ResourceKindDependency)
	if len(deps) == 0 {
		return nil, nil
	}

	var group alertRuleGroup
	group.Groups = []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	}{{Name: fmt.Sprintf("%s.dependencies", idx.Spec.Name)}}

	blastRadius := 0
	if g.graph != nil {
		blastRadius = g.graph.CalculateBlastRadius(idx.Spec.Name).TotalAffected
	}

	for _, r := range deps {
		dep := r.Ref.(*nthlayer.DependencyDecl)
		group.Groups[0].Rules = append(group.Groups[0].Rules, alertRule{
			Alert: fmt.Sprintf("%sDependencyDown_%s", idx.Spec.Name, dep.Target),
			Expr:  fmt.Sprintf(`up{service=%q} == 0`, dep.Target),
			For:   "5m",
			Labels: map[string]string{
				"service": idx.Spec.Name, "dependency": dep.Target,
				"blast_radius": fmt.Sprintf("%d", blastRadius),
			},
		})
	}

	content, err := yaml.Marshal(group)
	if err != nil {
		return nil, err
	}
	return []nthlayer.Artifact{seal(nthlayer.ArtifactAlertRule, idx.Spec.Name, content)}, nil
}

// DashboardGenerator delegates to the Intent-Based Dashboard Generator
// and seals its YAML rendering as an artifact.
type DashboardGenerator struct {
	gen *dashboard.Generator
}

func (g *DashboardGenerator) Name() string { return "dashboards" }

func (g *DashboardGenerator) Generate(ctx context.Context, idx *nthlayer.ResourceIndex) ([]nthlayer.Artifact, error) {
	if len(idx.Get(nthlayer.ResourceKindDashboard)) == 0 {
		return nil, nil
	}

	dash, err := g.gen.Generate(ctx, idx.Spec)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate dashboard for %s: %w", idx.Spec.Name, err)
	}
	content, err := dashboard.MarshalYAML(dash)
	if err != nil {
		return nil, err
	}
	return []nthlayer.Artifact{seal(nthlayer.ArtifactDashboard, idx.Spec.Name, content)}, nil
}

// directoryEntry is the service-directory JSON record written
// alongside the monitoring artifacts for every service that declares
// at least one SLO.
type directoryEntry struct {
	Name         string   `json:"name"`
	Tier         string   `json:"tier"`
	Type         string   `json:"type"`
	Team         string   `json:"team,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	SLOs         []string `json:"slos,omitempty"`
	GeneratedAt  string   `json:"generated_at"`
}

// DirectoryEntryGenerator emits a single JSON record into the service
// directory for any service whose SLO declarations earned it a
// dashboard.
type DirectoryEntryGenerator struct{}

func (g *DirectoryEntryGenerator) Name() string { return "directory_entries" }

func (g *DirectoryEntryGenerator) Generate(ctx context.Context, idx *nthlayer.ResourceIndex) ([]nthlayer.Artifact, error) {
	if len(idx.Get(nthlayer.ResourceKindDashboard)) == 0 {
		return nil, nil
	}

	entry := directoryEntry{
		Name: idx.Spec.Name, Tier: string(idx.Spec.EffectiveTier()), Type: string(idx.Spec.Type),
		Team: idx.Spec.Team, GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range idx.Get(nthlayer.ResourceKindDependency) {
		entry.Dependencies = append(entry.Dependencies, r.Ref.(*nthlayer.DependencyDecl).Target)
	}
	for _, r := range idx.Get(nthlayer.ResourceKindSLO) {
		entry.SLOs = append(entry.SLOs, r.Ref.(*nthlayer.SLO).Name)
	}

	content, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	return []nthlayer.Artifact{seal(nthlayer.ArtifactDirectoryEntry, idx.Spec.Name, content)}, nil
}
