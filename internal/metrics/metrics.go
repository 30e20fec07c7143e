package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DeliveryOutcomes counts resolved delivery attempts partitioned by their
// terminal queue status (sent, skipped, failed).
var DeliveryOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "email_deliveries_total",
		Help: "Delivery attempts by terminal outcome",
	},
	[]string{"outcome"},
)
