package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // RouteRequests counts routing service calls by outcome (ok, failed, cleared)
    RouteRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_requests_total", Help: "Route recomputations by outcome."},
        []string{"outcome"},
    )
    // RouteStale counts resolved route responses dropped because a newer generation was issued
    RouteStale = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "route_stale_discarded_total", Help: "Route responses discarded as stale."},
    )
    // RoutingLatency tracks routing service round trips in milliseconds
    RoutingLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "routing_latency_ms", Help: "Routing service latency in ms.", Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"provider", "status"},
    )

    // StatusTransitions counts task status transitions by origin (auto, operator, server)
    StatusTransitions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "task_status_transitions_total", Help: "Task status transitions."},
        []string{"to", "source"},
    )
    // StatusWriteFailures counts failed status writes to the task service
    StatusWriteFailures = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "task_status_write_failures_total", Help: "Failed task status writes."},
    )
    // GeofenceSignals counts raised per-driver geofence flags
    GeofenceSignals = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "geofence_signals_total", Help: "Rising edges of driver geofence flags."},
        []string{"kind"},
    )
    // ActiveSessions is the number of open planner and monitor sessions
    ActiveSessions = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "active_sessions", Help: "Open sessions by kind."},
        []string{"kind"},
    )

    // WebhookDeliveries counts notification delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(RouteRequests)
        Registry.MustRegister(RouteStale)
        Registry.MustRegister(RoutingLatency)
        Registry.MustRegister(StatusTransitions)
        Registry.MustRegister(StatusWriteFailures)
        Registry.MustRegister(GeofenceSignals)
        Registry.MustRegister(ActiveSessions)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
