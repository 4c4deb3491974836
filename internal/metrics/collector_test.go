package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_RegistersWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	require.NotNil(t, c)

	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestCollector_GaugesAndCountersMove(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ServersRegistered.Set(3)
	c.PeersBanned.Set(1)
	c.PacketsReceived.WithLabelValues("accepted").Inc()
	c.PacketsSent.WithLabelValues("MasterServerListResponse").Inc()
	c.RegistrySweepDrops.Add(2)

	require.Equal(t, float64(3), gaugeValue(t, c.ServersRegistered))
	require.Equal(t, float64(1), counterValue(t, c.PacketsReceived.WithLabelValues("accepted")))
	require.Equal(t, float64(2), counterValue(t, c.RegistrySweepDrops))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
