package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waypool",
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	pinVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waypool",
			Name:      "pickup_verifications_total",
			Help:      "Pickup PIN verification attempts by result",
		},
		[]string{"result"},
	)
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(transitions, pinVerifications)
}
