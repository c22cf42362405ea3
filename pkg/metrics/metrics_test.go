package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	// Vectors only show up once a child exists.
	GenerationTierTotal.WithLabelValues("fallback").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"auditsim_sink_inflight":           false,
		"auditsim_virtual_time_seconds":    false,
		"auditsim_agents_running":          false,
		"auditsim_generation_errors_total": false,
		"auditsim_generation_tier_total":   false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestActionsTotal_Increments(t *testing.T) {
	c := ActionsTotal.WithLabelValues("analyst", "select", "success")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("ActionsTotal = %v; want %v", got, before+1)
	}
}
