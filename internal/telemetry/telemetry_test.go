package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	t1, err := Init(context.Background(), Config{ServiceName: "nthlayer-test"})
	require.NoError(t, err)
	require.NotNil(t, t1)

	t2, err := Init(context.Background(), Config{ServiceName: "ignored-on-second-call"})
	require.NoError(t, err)
	assert.Same(t, t1, t2)
	assert.Same(t, t1, Get())
}

func TestStartSpanWithoutOTLPEndpointStillReturnsASpan(t *testing.T) {
	tel, err := Init(context.Background(), Config{ServiceName: "nthlayer-test"})
	require.NoError(t, err)

	ctx, span := tel.StartSpan(context.Background(), "discover")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
}

func TestRecordDiscoveryToleratesNilTelemetry(t *testing.T) {
	var tel *Telemetry
	tel.RecordDiscovery("consul", time.Millisecond, 3, errors.New("boom"))
}

func TestRecordDiscoveryIncrementsCounters(t *testing.T) {
	tel, err := Init(context.Background(), Config{ServiceName: "nthlayer-test"})
	require.NoError(t, err)

	before := testutil.ToFloat64(tel.DiscoveryErrors.WithLabelValues("promtraffic"))
	tel.RecordDiscovery("promtraffic", 10*time.Millisecond, 2, errors.New("unreachable"))
	after := testutil.ToFloat64(tel.DiscoveryErrors.WithLabelValues("promtraffic"))
	assert.Equal(t, before+1, after)
}

func TestShutdownWithoutTracingProviderIsANoop(t *testing.T) {
	tel, err := Init(context.Background(), Config{ServiceName: "nthlayer-test"})
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
