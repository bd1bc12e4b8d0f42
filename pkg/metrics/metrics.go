package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "im_ws_connections",
		Help: "Open websocket connections",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "im_online_users",
		Help: "Users present in the presence registry",
	})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "im_events_published_total",
		Help: "Events written to broadcast groups, by type",
	}, []string{"type"})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_events_dropped_total",
		Help: "Frames dropped because a client send buffer was full",
	})

	OutboxFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "im_outbox_failures_total",
		Help: "Deferred tasks that failed or were rejected, by task",
	}, []string{"task"})

	ReceiptRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_receipt_retries_total",
		Help: "Read receipt writes retried after lock contention",
	})
)

func init() {
	prometheus.MustRegister(Connections, OnlineUsers, EventsPublished, EventsDropped, OutboxFailures, ReceiptRetries)
}

// Handler serves the default registry for gin
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
