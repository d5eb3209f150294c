package handlers

import (
	"net/http"
	"runtime"

	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/gin-gonic/gin"
)

// QueueStats reports the dispatch backlog
type QueueStats interface {
	QueueDepth() int
}

// MetricsHandler handles metrics-related HTTP requests
type MetricsHandler struct {
	metrics *metrics.Metrics
	tracer  tracing.Tracer
	queue   QueueStats
}

// NewMetricsHandler creates a new metrics handler. queue may be nil.
func NewMetricsHandler(m *metrics.Metrics, tracer tracing.Tracer, queue QueueStats) *MetricsHandler {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	return &MetricsHandler{
		metrics: m,
		tracer:  tracer,
		queue:   queue,
	}
}

// HandleGetMetrics returns all metrics
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	txn := h.tracer.StartTransaction("get-metrics")
	defer h.tracer.EndTransaction(txn)

	h.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	if h.queue != nil {
		h.metrics.SetGauge(metrics.DispatchQueueSize, int64(h.queue.QueueDepth()))
	}

	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleGetHealthCheck returns a simplified health status
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	healthChecks := h.metrics.GetHealthChecks()

	healthy := true
	for _, status := range healthChecks {
		if !status {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  healthy,
		"details": healthChecks,
	})
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/metrics", h.HandleGetMetrics)
	router.GET("/health", h.HandleGetHealthCheck)
}
