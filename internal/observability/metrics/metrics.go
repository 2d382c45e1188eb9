package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "shuttle_gateway_"

// Command result labels.
const (
	CommandResultAcked   = "acked"
	CommandResultFailed  = "failed"
	CommandResultTimeout = "timeout"
)

var (
	registerOnce sync.Once

	commandsSent       *prometheus.CounterVec
	commandResults     *prometheus.CounterVec
	queueSize          prometheus.Gauge
	messagesReceived   *prometheus.CounterVec
	shuttleErrors      *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	batteryLevel       *prometheus.GaugeVec
	heartbeatStatus    *prometheus.GaugeVec
	reconnectAttempts  *prometheus.CounterVec
	wmsCommands        *prometheus.CounterVec
	wmsStatusUpdates   *prometheus.CounterVec
	wmsAPIErrors       *prometheus.CounterVec
	wmsRequestDuration *prometheus.HistogramVec
	wmsRetries         *prometheus.CounterVec
)

// Init registers the gateway metrics once.
func Init() {
	registerOnce.Do(func() {
		commandsSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_sent_total",
				Help: "Commands sent to shuttles by result",
			},
			[]string{"shuttle_id", "verb", "status"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Terminal command results by status",
			},
			[]string{"status"},
		)
		queueSize = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "command_queue_size",
				Help: "Commands waiting in the dispatch queue",
			},
		)
		messagesReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_received_total",
				Help: "Messages received from shuttles by type",
			},
			[]string{"shuttle_id", "message_type"},
		)
		shuttleErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shuttle_errors_total",
				Help: "Fault codes reported by shuttles",
			},
			[]string{"shuttle_id", "f_code"},
		)
		activeConnections = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_shuttle_connections",
				Help: "Open TCP connections from shuttles",
			},
		)
		batteryLevel = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "battery_level_percent",
				Help: "Last reported battery level per shuttle",
			},
			[]string{"shuttle_id"},
		)
		heartbeatStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "heartbeat_status",
				Help: "Shuttle liveness (1=active, 0=unresponsive)",
			},
			[]string{"shuttle_id"},
		)
		reconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconnection_attempts_total",
				Help: "Reconnection probes by result",
			},
			[]string{"shuttle_id", "result"},
		)
		wmsCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wms_commands_total",
				Help: "Commands fetched from the WMS by source and outcome",
			},
			[]string{"source", "status"},
		)
		wmsStatusUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wms_status_updates_total",
				Help: "Status updates pushed back to the WMS",
			},
			[]string{"source", "result"},
		)
		wmsAPIErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wms_api_errors_total",
				Help: "WMS API failures by endpoint and type",
			},
			[]string{"endpoint", "error_type"},
		)
		wmsRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "wms_request_duration_seconds",
				Help:    "WMS request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "result"},
		)
		wmsRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "wms_retries_total",
				Help: "WMS request retries by endpoint",
			},
			[]string{"endpoint"},
		)

		prometheus.MustRegister(
			commandsSent, commandResults, queueSize, messagesReceived,
			shuttleErrors, activeConnections, batteryLevel, heartbeatStatus,
			reconnectAttempts, wmsCommands, wmsStatusUpdates, wmsAPIErrors,
			wmsRequestDuration, wmsRetries,
		)
	})
}

// IncCommandSent counts a send attempt outcome.
func IncCommandSent(shuttleID, verb, status string) {
	if commandsSent != nil {
		commandsSent.WithLabelValues(shuttleID, verb, status).Inc()
	}
}

// IncCommandResult counts a terminal command result.
func IncCommandResult(status string) {
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// SetQueueSize records the dispatch queue depth.
func SetQueueSize(size int) {
	if queueSize != nil {
		queueSize.Set(float64(size))
	}
}

// IncMessageReceived counts an inbound shuttle message.
func IncMessageReceived(shuttleID, messageType string) {
	if messagesReceived != nil {
		messagesReceived.WithLabelValues(shuttleID, messageType).Inc()
	}
}

// IncShuttleError counts a shuttle fault code.
func IncShuttleError(shuttleID, fCode string) {
	if shuttleErrors != nil {
		shuttleErrors.WithLabelValues(shuttleID, fCode).Inc()
	}
}

// AddActiveConnections moves the open-connection gauge.
func AddActiveConnections(delta int) {
	if activeConnections != nil {
		activeConnections.Add(float64(delta))
	}
}

// SetBatteryLevel records a parsed battery percentage.
func SetBatteryLevel(shuttleID string, level float64) {
	if batteryLevel != nil {
		batteryLevel.WithLabelValues(shuttleID).Set(level)
	}
}

// SetHeartbeat records liveness for a shuttle.
func SetHeartbeat(shuttleID string, alive bool) {
	if heartbeatStatus != nil {
		value := 0.0
		if alive {
			value = 1.0
		}
		heartbeatStatus.WithLabelValues(shuttleID).Set(value)
	}
}

// IncReconnectAttempt counts a reconnection probe.
func IncReconnectAttempt(shuttleID, result string) {
	if reconnectAttempts != nil {
		reconnectAttempts.WithLabelValues(shuttleID, result).Inc()
	}
}

// IncWMSCommand counts a fetched WMS command outcome.
func IncWMSCommand(source, status string) {
	if wmsCommands != nil {
		wmsCommands.WithLabelValues(source, status).Inc()
	}
}

// IncWMSStatusUpdate counts a pushed status update.
func IncWMSStatusUpdate(source, result string) {
	if wmsStatusUpdates != nil {
		wmsStatusUpdates.WithLabelValues(source, result).Inc()
	}
}

// IncWMSAPIError counts a WMS API failure.
func IncWMSAPIError(endpoint, errorType string) {
	if wmsAPIErrors != nil {
		wmsAPIErrors.WithLabelValues(endpoint, errorType).Inc()
	}
}

// ObserveWMSRequest records WMS request latency.
func ObserveWMSRequest(endpoint, result string, seconds float64) {
	if wmsRequestDuration != nil {
		wmsRequestDuration.WithLabelValues(endpoint, result).Observe(seconds)
	}
}

// IncWMSRetry counts a retried WMS request.
func IncWMSRetry(endpoint string) {
	if wmsRetries != nil {
		wmsRetries.WithLabelValues(endpoint).Inc()
	}
}
