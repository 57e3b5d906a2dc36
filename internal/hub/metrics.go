package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_total",
			Help: "Total number of messages persisted and broadcast, by room kind.",
		},
		[]string{"kind"},
	)

	sosTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_sos_total",
			Help: "Total number of SOS alerts, by action (raised, resolved).",
		},
		[]string{"action"},
	)

	rejectedJoinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_rejected_joins_total",
			Help: "Total number of refused room joins, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(messagesTotal, sosTotal, rejectedJoinsTotal)
}
