package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusRecorder(reg)

	p.ObserveOperation("ensure_workspace", 10*time.Millisecond, nil)
	p.ObserveOperation("ensure_workspace", 5*time.Millisecond, nil)
	p.ObserveOperation("commit_and_push", time.Millisecond, errors.New("push rejected"))
	p.IncClone(true)
	p.SetActiveWorkspaces(3)

	if got := testutil.ToFloat64(p.operations.WithLabelValues("ensure_workspace", ResultSuccess)); got != 2 {
		t.Errorf("ensure_workspace success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.operations.WithLabelValues("commit_and_push", ResultError)); got != 1 {
		t.Errorf("commit_and_push error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.clones.WithLabelValues(ResultSuccess)); got != 1 {
		t.Errorf("clones success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.active); got != 3 {
		t.Errorf("active_workspaces = %v, want 3", got)
	}

	expected := `
# HELP docsagent_active_workspaces Workspaces currently held in the registry
# TYPE docsagent_active_workspaces gauge
docsagent_active_workspaces 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "docsagent_active_workspaces"); err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var p *PrometheusRecorder
	p.ObserveOperation("cleanup", time.Second, nil)
	p.IncClone(false)
	p.SetActiveWorkspaces(1)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveOperation("cleanup", time.Second, nil)
	r.IncClone(true)
	r.SetActiveWorkspaces(0)
}
