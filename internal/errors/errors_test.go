package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuildSetsDefaults(t *testing.T) {
	err := New(KindSink, "write failed").Build()
	if err.Kind != KindSink {
		t.Errorf("got kind %s, want %s", err.Kind, KindSink)
	}
	if err.Severity != SeverityMedium {
		t.Errorf("expected default severity medium, got %s", err.Severity)
	}
	if err.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestFluentBuilderSetsAllFields(t *testing.T) {
	wrapped := errors.New("connection reset")
	err := New(KindSink, "gcs write failed").
		WithSeverity(SeverityHigh).
		WithService("checkout").
		WithProvider("gcs").
		WithOperation("write_artifact").
		WithDetails("bucket", "nthlayer-artifacts").
		WithWrapped(wrapped).
		WithRetry(true, 2*time.Second).
		Build()

	if err.Severity != SeverityHigh || err.Service != "checkout" || err.Provider != "gcs" {
		t.Fatalf("unexpected fields: %+v", err)
	}
	if !err.Retryable || err.RetryAfter != 2*time.Second {
		t.Errorf("expected retryable after 2s, got retryable=%v after=%v", err.Retryable, err.RetryAfter)
	}
	if err.Details["bucket"] != "nthlayer-artifacts" {
		t.Errorf("expected detail to be set, got %+v", err.Details)
	}
	if !errors.Is(err, wrapped) {
		t.Errorf("expected Unwrap to surface the wrapped error")
	}
}

func TestIsComparesByKind(t *testing.T) {
	a := New(KindWebhook, "bad signature").Build()
	sameKind := &NthLayerError{Kind: KindWebhook}
	otherKind := &NthLayerError{Kind: KindSink}

	if !errors.Is(a, sameKind) {
		t.Error("expected errors of the same kind to match via Is")
	}
	if errors.Is(a, otherKind) {
		t.Error("expected errors of different kinds not to match via Is")
	}
}

func TestOfIdentifiesWrappedKind(t *testing.T) {
	inner := New(KindMetricDiscovery, "backend unreachable").Build()
	wrapped := fmt.Errorf("wrapper: %w", inner)

	if !Of(inner, KindMetricDiscovery) {
		t.Error("expected Of to recognize the error's own kind")
	}
	if !Of(wrapped, KindMetricDiscovery) {
		t.Error("expected Of to recognize the kind through a wrapping error")
	}
	if Of(wrapped, KindSink) {
		t.Error("expected Of to reject a mismatched kind")
	}
}

func TestRetryableReflectsBuilderFlag(t *testing.T) {
	transient := New(KindSink, "timeout").WithRetry(true, time.Second).Build()
	permanent := New(KindSink, "permission denied").WithRetry(false, 0).Build()

	if !Retryable(transient) {
		t.Error("expected transient error to report retryable")
	}
	if Retryable(permanent) {
		t.Error("expected permanent error to report non-retryable")
	}
	if Retryable(errors.New("plain error")) {
		t.Error("expected a non-NthLayerError to report non-retryable")
	}
}

func TestToJSONOmitsWrappedError(t *testing.T) {
	err := New(KindSpecValidation, "missing tier").WithWrapped(errors.New("internal")).Build()
	data := err.ToJSON()
	if data == "" {
		t.Fatal("expected non-empty JSON")
	}
	if strings.Contains(data, "internal") {
		t.Errorf("expected wrapped error to be omitted from JSON, got %s", data)
	}
}
