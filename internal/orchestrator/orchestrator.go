package orchestrator

import (
	"context"
	"fmt"

	"github.com/rsionnach/nthlayer/internal/logging"
	"github.com/rsionnach/nthlayer/internal/resilience"
	"github.com/rsionnach/nthlayer/internal/telemetry"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Orchestrator runs the fixed-order generator pipeline against a
// validated ServiceSpec and either previews (Plan) or commits (Apply)
// the resulting artifacts through a Sink.
type Orchestrator struct {
	generators []Generator
	sink       Sink
}

func New(generators []Generator, sink Sink) *Orchestrator {
	return &Orchestrator{generators: generators, sink: sink}
}

// Plan runs every generator and diffs each artifact's content hash
// against what the sink already holds, without writing anything.
func (o *Orchestrator) Plan(ctx context.Context, spec *nthlayer.ServiceSpec) (nthlayer.Plan, error) {
	if err := ValidateSpec(spec); err != nil {
		return nthlayer.Plan{}, err
	}

	idx := BuildIndex(spec)
	plan := nthlayer.Plan{Service: spec.Name}

	for _, gen := range o.generators {
		artifacts, err := gen.Generate(ctx, idx)
		if err != nil {
			return nthlayer.Plan{}, fmt.Errorf("orchestrator: generator %s: %w", gen.Name(), err)
		}
		for _, artifact := range artifacts {
			prior, err := o.sink.PriorHash(ctx, artifact)
			if err != nil {
				return nthlayer.Plan{}, fmt.Errorf("orchestrator: read prior hash for %s: %w", gen.Name(), err)
			}
			plan.Entries = append(plan.Entries, nthlayer.PlanEntry{
				Kind: artifact.Kind, Service: artifact.Service,
				ContentHash: artifact.ContentHash, DiffSummary: diffSummary(prior, artifact.ContentHash),
			})
		}
	}
	return plan, nil
}

func diffSummary(prior, current string) string {
	switch {
	case prior == "":
		return "create"
	case prior == current:
		return "unchanged"
	default:
		return "update"
	}
}

// Apply runs every generator in order and writes each artifact to the
// sink as it's produced. A generator failure aborts the remaining
// generators in the pipeline; artifacts already written by earlier
// generators are left in place rather than rolled back, since the sink
// has no transaction primitive to roll back with.
//
// A write failure never aborts the whole apply: transient SinkErrors
// are retried with bounded backoff via resilience.Retry, and whatever
// the outcome, only that one artifact's AppliedArtifact carries the
// error — every other artifact for this spec still gets written.
func (o *Orchestrator) Apply(ctx context.Context, spec *nthlayer.ServiceSpec) (nthlayer.AppliedSet, error) {
	if err := ValidateSpec(spec); err != nil {
		return nthlayer.AppliedSet{}, err
	}

	idx := BuildIndex(spec)
	applied := nthlayer.AppliedSet{Service: spec.Name}
	logger := logging.GetLogger()

	for _, gen := range o.generators {
		if err := ctx.Err(); err != nil {
			return applied, fmt.Errorf("orchestrator: apply cancelled before generator %s: %w", gen.Name(), err)
		}

		artifacts, err := gen.Generate(ctx, idx)
		if err != nil {
			return applied, fmt.Errorf("orchestrator: generator %s: %w", gen.Name(), err)
		}

		for _, artifact := range artifacts {
			if err := ctx.Err(); err != nil {
				return applied, fmt.Errorf("orchestrator: apply cancelled before writing %s artifact: %w", artifact.Kind, err)
			}
			writeErr := o.writeArtifact(ctx, artifact)
			applied.Artifacts = append(applied.Artifacts, nthlayer.AppliedArtifact{
				Artifact: artifact, SinkName: o.sink.Name(), Err: writeErr,
			})
			if writeErr != nil {
				logger.Error("apply write failed, aborting this artifact only", logging.String("service", spec.Name),
					logging.String("kind", string(artifact.Kind)), logging.Err(writeErr))
				if t := telemetry.Get(); t != nil {
					t.DiscoveryErrors.WithLabelValues("orchestrator_sink").Inc()
				}
			}
		}
	}

	logger.Info("apply complete", logging.String("service", spec.Name), logging.Int("artifacts", len(applied.Artifacts)))
	return applied, nil
}

// writeArtifact retries a sink write with bounded backoff when the
// sink classifies its own failure as transient (SinkError.Retryable);
// a permanent SinkError returns after the first attempt.
func (o *Orchestrator) writeArtifact(ctx context.Context, artifact nthlayer.Artifact) error {
	result := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		return o.sink.Write(ctx, artifact)
	})
	return result.LastErr
}
