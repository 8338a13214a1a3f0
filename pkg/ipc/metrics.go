package ipc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPortsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extbridge",
		Subsystem: "ipc",
		Name:      "ports_open",
		Help:      "Websocket and bus ports currently open.",
	})
	metricEventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extbridge",
		Subsystem: "ipc",
		Name:      "event_streams",
		Help:      "Connected telemetry event stream clients.",
	})
	metricPortFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "ipc",
		Name:      "port_frames_total",
		Help:      "Frames carried by ports, by substrate and direction.",
	}, []string{"substrate", "direction"})
	metricPortSendDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "ipc",
		Name:      "port_send_dropped_total",
		Help:      "Messages dropped because a port's send queue was full.",
	})
	metricRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "ipc",
		Name:      "connections_rejected_total",
		Help:      "Rejected port and event stream connections, by reason.",
	}, []string{"reason"})
)
