// Package metrics records workspace lifecycle metrics. Managers depend on the
// Recorder interface; PrometheusRecorder backs it in the server and NoopRecorder
// everywhere else.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder receives one call per finished manager operation.
type Recorder interface {
	ObserveOperation(op string, d time.Duration, err error)
	IncClone(success bool)
	SetActiveWorkspaces(n int)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperation(string, time.Duration, error) {}
func (NoopRecorder) IncClone(bool)                                 {}
func (NoopRecorder) SetActiveWorkspaces(int)                       {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	operations *prom.CounterVec
	duration   *prom.HistogramVec
	clones     *prom.CounterVec
	active     prom.Gauge
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	p := &PrometheusRecorder{
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsagent",
			Name:      "operations_total",
			Help:      "Workspace operations by outcome",
		}, []string{"operation", "result"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docsagent",
			Name:      "operation_duration_seconds",
			Help:      "Duration of workspace operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		clones: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docsagent",
			Name:      "clones_total",
			Help:      "Repository clones by outcome",
		}, []string{"result"}),
		active: prom.NewGauge(prom.GaugeOpts{
			Namespace: "docsagent",
			Name:      "active_workspaces",
			Help:      "Workspaces currently held in the registry",
		}),
	}
	reg.MustRegister(p.operations, p.duration, p.clones, p.active)
	return p
}

func (p *PrometheusRecorder) ObserveOperation(op string, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.operations.WithLabelValues(op, resultLabel(err == nil)).Inc()
	p.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncClone(success bool) {
	if p == nil {
		return
	}
	p.clones.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) SetActiveWorkspaces(n int) {
	if p == nil {
		return
	}
	p.active.Set(float64(n))
}

func resultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultError
}
