package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics shared across the service

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"service", "error_type"},
	)

	CandlesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_processed_total",
			Help: "Total number of candles routed through the indicator engine",
		},
		[]string{"timeframe"},
	)

	StrategiesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strategies_evaluated_total",
			Help: "Total number of strategy evaluations",
		},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"symbol", "timeframe"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"notifier", "result"}, // result: sent, failed, dropped
	)

	EventHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_failures_total",
			Help: "Event bus subscriber failures (errors and panics)",
		},
		[]string{"event_type"},
	)

	ActiveSeries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indicator_active_series",
			Help: "Number of (symbol, timeframe) series held by the indicator engine",
		},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	WebsocketMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Event messages dropped because a client's send buffer was full",
		},
	)
)
