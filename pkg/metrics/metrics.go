package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_messages_total", Help: "Chat messages processed, by outcome"},
		[]string{"outcome"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_deliveries_total", Help: "Order deliveries per endpoint, by status"},
		[]string{"status"},
	)
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_cycles_total", Help: "Completed poll cycles"},
	)
)

func init() {
	prometheus.MustRegister(MessagesTotal, DeliveriesTotal, CyclesTotal)
}

func Handler() http.Handler { return promhttp.Handler() }
