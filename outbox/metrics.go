package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

var dispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "waypool",
		Name:      "outbox_dispatched_total",
		Help:      "Outbox events handled by the dispatcher, by kind and result",
	},
	[]string{"kind", "result"},
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(dispatched)
}
