package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout counts order-fulfillment outcomes.
type Checkout struct {
	OrdersCreated     prometheus.Counter
	CheckoutFailures  *prometheus.CounterVec
	StatusTransitions prometheus.Counter
}

func NewCheckout(reg prometheus.Registerer) *Checkout {
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "glowshop",
		Subsystem: "checkout",
		Name:      "orders_created_total",
		Help:      "Orders successfully assembled from carts.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glowshop",
		Subsystem: "checkout",
		Name:      "checkout_failures_total",
		Help:      "Failed checkout attempts by reason.",
	}, []string{"reason"})
	transitions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "glowshop",
		Subsystem: "checkout",
		Name:      "status_transitions_total",
		Help:      "Order status log entries appended.",
	})

	reg.MustRegister(created, failures, transitions)
	return &Checkout{
		OrdersCreated:     created,
		CheckoutFailures:  failures,
		StatusTransitions: transitions,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
