// Package orchestrator turns a declarative ServiceSpec into generated
// monitoring artifacts: recording rules, alert rules, dashboards, and
// service-directory entries, planned and applied through a pluggable
// content-addressable sink.
package orchestrator

import "github.com/rsionnach/nthlayer/pkg/nthlayer"

// BuildIndex does a single pass over spec, classifying every declared
// element into the ResourceIndex generators read from. Nothing past
// this point re-walks the spec directly.
func BuildIndex(spec *nthlayer.ServiceSpec) *nthlayer.ResourceIndex {
	idx := &nthlayer.ResourceIndex{
		Spec:      spec,
		Resources: make(map[nthlayer.ResourceKind][]nthlayer.Resource),
	}

	for i := range spec.SLOs {
		idx.Resources[nthlayer.ResourceKindSLO] = append(idx.Resources[nthlayer.ResourceKindSLO],
			nthlayer.Resource{Kind: nthlayer.ResourceKindSLO, Ref: &spec.SLOs[i]})
	}
	for i := range spec.Dependencies {
		idx.Resources[nthlayer.ResourceKindDependency] = append(idx.Resources[nthlayer.ResourceKindDependency],
			nthlayer.Resource{Kind: nthlayer.ResourceKindDependency, Ref: &spec.Dependencies[i]})
	}

	// Every service with at least one SLO gets a dashboard request;
	// every service with at least one dependency gets alert rules for
	// its blast radius.
	if len(spec.SLOs) > 0 {
		idx.Resources[nthlayer.ResourceKindDashboard] = append(idx.Resources[nthlayer.ResourceKindDashboard],
			nthlayer.Resource{Kind: nthlayer.ResourceKindDashboard, Ref: spec})
		idx.Resources[nthlayer.ResourceKindRecordingRule] = append(idx.Resources[nthlayer.ResourceKindRecordingRule],
			nthlayer.Resource{Kind: nthlayer.ResourceKindRecordingRule, Ref: spec})
	}
	if len(spec.Dependencies) > 0 {
		idx.Resources[nthlayer.ResourceKindAlertRule] = append(idx.Resources[nthlayer.ResourceKindAlertRule],
			nthlayer.Resource{Kind: nthlayer.ResourceKindAlertRule, Ref: spec})
	}

	return idx
}
