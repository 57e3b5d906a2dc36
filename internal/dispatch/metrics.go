package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	ticketsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tickets_created_total",
		Help: "Total number of tickets created and assigned to a responder.",
	})

	ticketsClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tickets_closed_total",
		Help: "Total number of tickets closed.",
	})

	noResponderTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_no_responder_total",
		Help: "Total number of ticket creations rejected because no responder was available.",
	})

	// openTicketsGauge is seeded by Restore and tracks opens/closes afterwards.
	openTicketsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_open_tickets",
		Help: "Current number of open tickets known to the dispatcher.",
	})
)

func init() {
	prometheus.MustRegister(ticketsCreatedTotal, ticketsClosedTotal, noResponderTotal, openTicketsGauge)
}
