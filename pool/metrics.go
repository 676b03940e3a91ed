package pool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names and label shared across every BufferPool instance in the
// process; individual pools are distinguished by the "pool" label so tests
// constructing several pools don't collide on registration.
var (
	metricsOnce sync.Once

	totalBytesGauge *prometheus.GaugeVec
	numResourcesGauge *prometheus.GaugeVec
)

func registerMetrics() {
	totalBytesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gpubuf",
		Subsystem: "pool",
		Name:      "total_gpu_size_in_bytes",
		Help:      "Total size in bytes of all PhysicalBuffers currently owned by the pool, free or live.",
	}, []string{"pool"})

	numResourcesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gpubuf",
		Subsystem: "pool",
		Name:      "num_resources",
		Help:      "Number of PhysicalBuffers currently owned by the pool, free or live.",
	}, []string{"pool"})

	prometheus.MustRegister(totalBytesGauge, numResourcesGauge)
}

// poolMetrics binds the process-wide gauge vectors to one pool's label.
type poolMetrics struct {
	label string
}

func newPoolMetrics(label string) *poolMetrics {
	metricsOnce.Do(registerMetrics)
	return &poolMetrics{label: label}
}

// observe updates this pool's telemetry gauges. Called with the pool's
// write lock held, after every mutation to totalBytes/live.
func (m *poolMetrics) observe(totalBytes uint64, numResources int) {
	totalBytesGauge.WithLabelValues(m.label).Set(float64(totalBytes))
	numResourcesGauge.WithLabelValues(m.label).Set(float64(numResources))
}
