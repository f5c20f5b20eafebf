package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickhulce/asyncronaut"
)

func TestQueueExporterRecordsStats(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewQueueExporter("test", reg)
	require.NoError(t, err)

	exporter.Record("jobs", asyncronaut.QueueStats{
		State:     asyncronaut.QueueRunning,
		Queued:    4,
		Active:    2,
		Succeeded: 10,
		Failed:    1,
		Cancelled: 3,
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(exporter.tasks.WithLabelValues("jobs", "queued")))
	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.tasks.WithLabelValues("jobs", "active")))
	assert.Equal(t, 10.0, testutil.ToFloat64(exporter.tasks.WithLabelValues("jobs", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.tasks.WithLabelValues("jobs", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(exporter.tasks.WithLabelValues("jobs", "cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(exporter.draining.WithLabelValues("jobs")))

	exporter.Record("jobs", asyncronaut.QueueStats{State: asyncronaut.QueueDrained})
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.draining.WithLabelValues("jobs")))
}

func TestPoolExporterRecordsStats(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewPoolExporter("test", reg)
	require.NoError(t, err)

	exporter.Record("conns", asyncronaut.PoolStats{
		Resources:      3,
		Retired:        1,
		Destroying:     1,
		ActiveLeases:   5,
		QueuedAcquires: 2,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(exporter.resources.WithLabelValues("conns")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.retired.WithLabelValues("conns")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.destroying.WithLabelValues("conns")))
	assert.Equal(t, 5.0, testutil.ToFloat64(exporter.activeLeases.WithLabelValues("conns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.queuedAcquires.WithLabelValues("conns")))
}

func TestExporterRegistrationIsIdempotent(t *testing.T) {
	reg := prom.NewRegistry()

	first, err := NewQueueExporter("dup", reg)
	require.NoError(t, err)
	second, err := NewQueueExporter("dup", reg)
	require.NoError(t, err, "re-registering the same collectors should reuse them")

	assert.Same(t, first.tasks, second.tasks)
}

func TestSnapshotPollerExportsQueueStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("poll", reg, 5*time.Millisecond)
	require.NoError(t, err)

	q := asyncronaut.NewQueue(func(ctx context.Context, task *asyncronaut.Task[int, struct{}]) (struct{}, error) {
		return struct{}{}, nil
	})
	poller.AddQueue("background", q)

	task, err := q.Enqueue(1)
	require.NoError(t, err)
	require.NoError(t, q.Start())
	require.NoError(t, task.Wait(context.Background()))

	poller.Start(context.Background())
	defer poller.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(poller.queueExporter.tasks.WithLabelValues("background", "succeeded")) == 1.0
	}, time.Second, 5*time.Millisecond, "the poller should export the queue snapshot")
}
