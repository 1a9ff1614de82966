package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe/fhetest"
)

func TestObserveCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCall("evaluate", time.Millisecond, nil)
	m.ObserveCall("evaluate", time.Millisecond, errs.NotFound("ciphertext", "x"))
	m.ObserveCall("evaluate", time.Millisecond, errors.New("opaque"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("evaluate", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("evaluate", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("evaluate", "INTERNAL_CRYPTO")))
}

func TestComputeGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ComputeAcquired(0)
	m.ComputeAcquired(time.Millisecond)
	m.ComputeReleased()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.computeBusy))
}

func TestWatchRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	r := registry.New()
	m.WatchRegistry(r)

	b := fhetest.New()
	ck, sk, err := b.GenerateKeys(fhe.ParamsDefault)
	require.NoError(t, err)
	_, err = r.Put(registry.ClientKey{Key: ck})
	require.NoError(t, err)
	_, err = r.Put(registry.ServerKey{Key: sk})
	require.NoError(t, err)

	expected := `
# HELP fhe_registry_objects Number of objects in the handle registry
# TYPE fhe_registry_objects gauge
fhe_registry_objects{kind="boolean"} 0
fhe_registry_objects{kind="client key"} 1
fhe_registry_objects{kind="integer"} 0
fhe_registry_objects{kind="server key"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fhe_registry_objects"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveCall("x", 0, nil)
	m.ObserveEvaluation("ADD", nil)
	m.ComputeAcquired(0)
	m.ComputeReleased()
	m.JobFinished("completed")
	m.WatchRegistry(registry.New())
}
