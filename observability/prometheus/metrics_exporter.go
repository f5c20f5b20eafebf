// Package prometheus adapts asyncronaut queue and pool snapshots to
// Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/patrickhulce/asyncronaut"
)

// QueueExporter exports [asyncronaut.QueueStats] snapshots as gauges.
type QueueExporter struct {
	tasks    *prom.GaugeVec
	draining *prom.GaugeVec
}

// NewQueueExporter creates and registers the queue collectors.
func NewQueueExporter(namespace string, reg prom.Registerer) (*QueueExporter, error) {
	if namespace == "" {
		namespace = "asyncronaut"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	tasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_tasks",
		Help:      "Tasks per queue and state.",
	}, []string{"queue", "state"})
	draining := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_draining",
		Help:      "Queue drain state (1=draining or drained, 0=live).",
	}, []string{"queue"})

	var err error
	if tasks, err = registerCollector(reg, tasks); err != nil {
		return nil, err
	}
	if draining, err = registerCollector(reg, draining); err != nil {
		return nil, err
	}

	return &QueueExporter{tasks: tasks, draining: draining}, nil
}

// Record exports one stats snapshot under the given queue name.
func (e *QueueExporter) Record(name string, stats asyncronaut.QueueStats) {
	if e == nil {
		return
	}
	name = normalizeLabel(name, "queue")

	e.tasks.WithLabelValues(name, asyncronaut.TaskQueued.String()).Set(float64(stats.Queued))
	e.tasks.WithLabelValues(name, asyncronaut.TaskActive.String()).Set(float64(stats.Active))
	e.tasks.WithLabelValues(name, asyncronaut.TaskSucceeded.String()).Set(float64(stats.Succeeded))
	e.tasks.WithLabelValues(name, asyncronaut.TaskFailed.String()).Set(float64(stats.Failed))
	e.tasks.WithLabelValues(name, asyncronaut.TaskCancelled.String()).Set(float64(stats.Cancelled))

	if stats.State == asyncronaut.QueueDraining || stats.State == asyncronaut.QueueDrained {
		e.draining.WithLabelValues(name).Set(1)
	} else {
		e.draining.WithLabelValues(name).Set(0)
	}
}

// PoolExporter exports [asyncronaut.PoolStats] snapshots as gauges.
type PoolExporter struct {
	resources      *prom.GaugeVec
	retired        *prom.GaugeVec
	destroying     *prom.GaugeVec
	activeLeases   *prom.GaugeVec
	queuedAcquires *prom.GaugeVec
}

// NewPoolExporter creates and registers the pool collectors.
func NewPoolExporter(namespace string, reg prom.Registerer) (*PoolExporter, error) {
	if namespace == "" {
		namespace = "asyncronaut"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	resources := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_resources",
		Help:      "Resource records per pool.",
	}, []string{"pool"})
	retired := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_retired",
		Help:      "Retired resource records per pool.",
	}, []string{"pool"})
	destroying := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_destroying",
		Help:      "Resource records being destroyed per pool.",
	}, []string{"pool"})
	activeLeases := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_active_leases",
		Help:      "Active leases per pool.",
	}, []string{"pool"})
	queuedAcquires := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_queued_acquires",
		Help:      "Acquire requests waiting for capacity per pool.",
	}, []string{"pool"})

	var err error
	if resources, err = registerCollector(reg, resources); err != nil {
		return nil, err
	}
	if retired, err = registerCollector(reg, retired); err != nil {
		return nil, err
	}
	if destroying, err = registerCollector(reg, destroying); err != nil {
		return nil, err
	}
	if activeLeases, err = registerCollector(reg, activeLeases); err != nil {
		return nil, err
	}
	if queuedAcquires, err = registerCollector(reg, queuedAcquires); err != nil {
		return nil, err
	}

	return &PoolExporter{
		resources:      resources,
		retired:        retired,
		destroying:     destroying,
		activeLeases:   activeLeases,
		queuedAcquires: queuedAcquires,
	}, nil
}

// Record exports one stats snapshot under the given pool name.
func (e *PoolExporter) Record(name string, stats asyncronaut.PoolStats) {
	if e == nil {
		return
	}
	name = normalizeLabel(name, "pool")

	e.resources.WithLabelValues(name).Set(float64(stats.Resources))
	e.retired.WithLabelValues(name).Set(float64(stats.Retired))
	e.destroying.WithLabelValues(name).Set(float64(stats.Destroying))
	e.activeLeases.WithLabelValues(name).Set(float64(stats.ActiveLeases))
	e.queuedAcquires.WithLabelValues(name).Set(float64(stats.QueuedAcquires))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
