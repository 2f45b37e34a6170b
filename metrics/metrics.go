package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_messages_stored_total",
		Help: "Messages appended to the durable log, by kind.",
	}, []string{"kind"})

	DeliveriesPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_deliveries_pushed_total",
		Help: "Live deliveries pushed to at least one connection.",
	})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_deliveries_dropped_total",
		Help: "Live deliveries dropped because the recipient had no reachable connection.",
	})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_live_connections",
		Help: "Currently registered websocket connections.",
	})

	ThreadsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_threads_deleted_total",
		Help: "Threads deleted after both participants cleared them.",
	})
)
