package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPortsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extbridge",
		Subsystem: "relay",
		Name:      "ports_connected",
		Help:      "Number of auxiliary ports currently registered.",
	})
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "relay",
		Name:      "messages_total",
		Help:      "Requests received from auxiliary ports, by channel.",
	}, []string{"channel"})
	metricUnhandled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "relay",
		Name:      "unhandled_total",
		Help:      "Requests no handler accepted.",
	})
	metricRepliesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "relay",
		Name:      "replies_dropped_total",
		Help:      "Replies discarded because their port had disconnected.",
	})
	metricBroken = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "relay",
		Name:      "broken_total",
		Help:      "Framework messages bounced because the destination port was gone.",
	}, []string{"what"})
)
