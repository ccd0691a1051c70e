package orchestrator

import (
	"context"
	"testing"
	"time"

	nthlayererrors "github.com/rsionnach/nthlayer/internal/errors"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

type memorySink struct {
	written map[string]nthlayer.Artifact
}

func newMemorySink() *memorySink {
	return &memorySink{written: map[string]nthlayer.Artifact{}}
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) PriorHash(ctx context.Context, artifact nthlayer.Artifact) (string, error) {
	prior, ok := s.written[artifactPath(artifact)]
	if !ok {
		return "", nil
	}
	return prior.ContentHash, nil
}

func (s *memorySink) Write(ctx context.Context, artifact nthlayer.Artifact) error {
	s.written[artifactPath(artifact)] = artifact
	return nil
}

func testSpec() *nthlayer.ServiceSpec {
	return &nthlayer.ServiceSpec{
		Name: "checkout", Tier: nthlayer.TierCritical, Type: nthlayer.ServiceTypeAPI,
		Dependencies: []nthlayer.DependencyDecl{{Target: "payments", Type: nthlayer.DepTypeService, Technology: "http"}},
		SLOs:         []nthlayer.SLO{{Name: "availability", Target: 0.999, Window: 30 * 24 * time.Hour}},
	}
}

func TestBuildIndexClassifiesResources(t *testing.T) {
	idx := BuildIndex(testSpec())
	if len(idx.Get(nthlayer.ResourceKindSLO)) != 1 {
		t.Fatalf("expected 1 slo resource")
	}
	if len(idx.Get(nthlayer.ResourceKindDashboard)) != 1 {
		t.Fatalf("expected dashboard request generated from slo presence")
	}
	if len(idx.Get(nthlayer.ResourceKindAlertRule)) != 1 {
		t.Fatalf("expected alert rule request generated from dependency presence")
	}
}

func TestRecordingRuleGeneratorEmitsOnePerSLO(t *testing.T) {
	gen := &RecordingRuleGenerator{}
	idx := BuildIndex(testSpec())

	artifacts, err := gen.Generate(context.Background(), idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(artifacts))
	}
	if artifacts[0].ContentHash == "" {
		t.Fatalf("expected content hash to be populated")
	}
}

func TestPlanReportsCreateThenUnchanged(t *testing.T) {
	sink := newMemorySink()
	o := New([]Generator{&RecordingRuleGenerator{}}, sink)
	spec := testSpec()

	plan, err := o.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].DiffSummary != "create" {
		t.Fatalf("expected a single create entry, got %+v", plan.Entries)
	}

	if _, err := o.Apply(context.Background(), spec); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	plan2, err := o.Plan(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan2.Entries[0].DiffSummary != "unchanged" {
		t.Fatalf("expected unchanged after apply, got %s", plan2.Entries[0].DiffSummary)
	}
}

// selectiveFailSink fails writes for one artifact kind only, so tests
// can assert that the rest of an apply still lands.
type selectiveFailSink struct {
	memorySink
	failKind  nthlayer.ArtifactKind
	retryable bool
	attempts  int
}

func (s *selectiveFailSink) Write(ctx context.Context, artifact nthlayer.Artifact) error {
	if artifact.Kind == s.failKind {
		s.attempts++
		return nthlayererrors.New(nthlayererrors.KindSink, "forced failure").
			WithRetry(s.retryable, 0).
			Error()
	}
	return s.memorySink.Write(ctx, artifact)
}

func TestApplyIsolatesFailureToOneArtifact(t *testing.T) {
	sink := &selectiveFailSink{memorySink: *newMemorySink(), failKind: nthlayer.ArtifactRecordingRule}
	o := New([]Generator{&RecordingRuleGenerator{}, &DirectoryEntryGenerator{}}, sink)
	spec := testSpec()

	applied, err := o.Apply(context.Background(), spec)
	if err != nil {
		t.Fatalf("expected apply to report success despite one artifact failing, got %v", err)
	}
	if len(applied.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(applied.Artifacts))
	}

	var sawFailure, sawSuccess bool
	for _, a := range applied.Artifacts {
		if a.Artifact.Kind == nthlayer.ArtifactRecordingRule {
			if a.Err == nil {
				t.Fatalf("expected recording rule artifact to carry its write error")
			}
			sawFailure = true
			continue
		}
		if a.Err != nil {
			t.Fatalf("unexpected error on non-failing artifact: %v", a.Err)
		}
		if _, ok := sink.written[artifactPath(a.Artifact)]; !ok {
			t.Fatalf("expected artifact %s to have been written despite sibling failure", a.Artifact.Kind)
		}
		sawSuccess = true
	}
	if !sawFailure || !sawSuccess {
		t.Fatalf("expected both a failing and a succeeding artifact, got %+v", applied.Artifacts)
	}
}

func TestApplyRetriesTransientSinkFailure(t *testing.T) {
	sink := &selectiveFailSink{memorySink: *newMemorySink(), failKind: nthlayer.ArtifactRecordingRule, retryable: true}
	o := New([]Generator{&RecordingRuleGenerator{}}, sink)
	spec := testSpec()

	applied, err := o.Apply(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if sink.attempts <= 1 {
		t.Fatalf("expected retry to re-attempt the write, got %d attempt(s)", sink.attempts)
	}
	if applied.Artifacts[0].Err == nil {
		t.Fatalf("expected the artifact to still carry an error once retries are exhausted")
	}
}

func TestValidateSpecRejectsMissingName(t *testing.T) {
	spec := &nthlayer.ServiceSpec{}
	if err := ValidateSpec(spec); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}
