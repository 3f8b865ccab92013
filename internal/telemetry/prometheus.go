package telemetry

import "github.com/prometheus/client_golang/prometheus"

const syncflowNamespace string = "syncflow"

var (
	promSessionActive       prometheus.Gauge
	promEgressActive        prometheus.Gauge
	promEgressBatchFailures prometheus.Counter
	ServiceOperationCounter *prometheus.CounterVec
)

func init() {
	promSessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: syncflowNamespace,
		Subsystem: "session",
		Name:      "active",
	})

	promEgressActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: syncflowNamespace,
		Subsystem: "egress",
		Name:      "active",
	})

	promEgressBatchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: syncflowNamespace,
		Subsystem: "egress",
		Name:      "stop_failures_total",
	})

	ServiceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: syncflowNamespace,
			Subsystem: "media",
			Name:      "service_operation",
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promSessionActive)
	prometheus.MustRegister(promEgressActive)
	prometheus.MustRegister(promEgressBatchFailures)
	prometheus.MustRegister(ServiceOperationCounter)
}

func SessionStarted() {
	promSessionActive.Inc()
}

func SessionStopped() {
	promSessionActive.Dec()
}

func EgressStarted() {
	promEgressActive.Inc()
}

func EgressEnded() {
	promEgressActive.Dec()
}

func EgressStopFailed() {
	promEgressBatchFailures.Inc()
}

// MediaOperation records the outcome of one media server call.
func MediaOperation(op string, err error, reason string) {
	if err != nil {
		ServiceOperationCounter.WithLabelValues(op, "error", reason).Inc()
		return
	}
	ServiceOperationCounter.WithLabelValues(op, "success", "").Inc()
}
