package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestUpdatePoolStatsAuthority(t *testing.T) {
	c := New()

	c.UpdatePoolStats(3, 5, 2, 10, 1)
	if v := getGaugeValue(c.nodesIdle); v != 3 {
		t.Errorf("idle = %v, want 3", v)
	}
	if v := getGaugeValue(c.nodesInUse); v != 5 {
		t.Errorf("in_use = %v, want 5", v)
	}

	// A second call replaces, not accumulates.
	c.UpdatePoolStats(1, 1, 0, 10, 0)
	if v := getGaugeValue(c.nodesIdle); v != 1 {
		t.Errorf("idle after update = %v, want 1", v)
	}
}

func TestAcquireDuration(t *testing.T) {
	c := New()

	c.AcquireDuration(100 * time.Millisecond)

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "mysqlcore_pool_acquire_duration_seconds" {
			found = true
			if f.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("sample count = %v, want 1", f.GetMetric()[0].GetHistogram().GetSampleCount())
			}
		}
	}
	if !found {
		t.Fatal("acquire duration histogram not registered")
	}
}

func TestPingAndResetResults(t *testing.T) {
	c := New()

	c.PingCompleted(true)
	c.PingCompleted(false)
	c.ResetCompleted(true)

	if v := getCounterValue(c.pingResults.WithLabelValues("success")); v != 1 {
		t.Errorf("ping success = %v, want 1", v)
	}
	if v := getCounterValue(c.pingResults.WithLabelValues("failure")); v != 1 {
		t.Errorf("ping failure = %v, want 1", v)
	}
	if v := getCounterValue(c.resetResults.WithLabelValues("success")); v != 1 {
		t.Errorf("reset success = %v, want 1", v)
	}
}

func TestCommandErrorsAndDirtyReturns(t *testing.T) {
	c := New()

	c.CommandFailed("query", "server")
	c.CommandFailed("query", "server")
	c.DirtyReturn()

	if v := getCounterValue(c.commandErrors.WithLabelValues("query", "server")); v != 2 {
		t.Errorf("command errors = %v, want 2", v)
	}
	if v := getCounterValue(c.dirtyReturns); v != 1 {
		t.Errorf("dirty returns = %v, want 1", v)
	}
}
