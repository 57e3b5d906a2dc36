package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	// roomsGauge tracks open rooms, including the global room.
	roomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_rooms_open",
		Help: "Current number of open broadcast rooms.",
	})

	// connectionsGauge tracks connections that belong to at least one room.
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Current number of connections joined to at least one room.",
	})

	// broadcastsTotal counts fan-outs by room kind ("global" or "ticket").
	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total number of room broadcasts.",
		},
		[]string{"kind"},
	)

	// deliveryFailures counts per-member send failures during broadcasts.
	deliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_delivery_failures_total",
		Help: "Total number of member deliveries that failed and caused eviction.",
	})
)

func init() {
	prometheus.MustRegister(roomsGauge, connectionsGauge, broadcastsTotal, deliveryFailures)
}
