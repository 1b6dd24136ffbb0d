// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for the nacos
// client. It exposes package-level collectors so internal packages can
// report without an import cycle back here; an embedding application
// registers this package's collectors alongside its own and exposes them
// however it already does (this package mounts no HTTP handler of its own).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// Gauge metrics ---------------------------------------------------------

	ActiveHost = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nacos_client",
		Subsystem: "conn",
		Name:      "active_host",
		Help:      "1 for the currently active server host, 0 for every other known host.",
	}, []string{"host"})

	BreakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nacos_client",
		Subsystem: "conn",
		Name:      "breaker_open",
		Help:      "1 if the named host's circuit breaker is currently open.",
	}, []string{"host"})

	ConfigWatchedKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nacos_client",
		Subsystem: "config",
		Name:      "watched_keys",
		Help:      "Current number of distinct config keys with at least one listener.",
	})

	NamingWatchedServices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nacos_client",
		Subsystem: "naming",
		Name:      "watched_services",
		Help:      "Current number of distinct services with at least one subscriber.",
	})

	// Counter metrics -------------------------------------------------------

	BreakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nacos_client",
		Subsystem: "conn",
		Name:      "breaker_trips_total",
		Help:      "Total number of times a host's circuit breaker has tripped open.",
	}, []string{"host"})

	FailoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nacos_client",
		Subsystem: "conn",
		Name:      "failovers_total",
		Help:      "Total number of times the connection manager switched its active host.",
	})

	ConfigChangeNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nacos_client",
		Subsystem: "config",
		Name:      "change_notifications_total",
		Help:      "Total number of config-change notifications delivered to listeners.",
	})

	NamingChangeNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nacos_client",
		Subsystem: "naming",
		Name:      "change_notifications_total",
		Help:      "Total number of service-membership change notifications delivered to listeners.",
	})

	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nacos_client",
		Subsystem: "naming",
		Name:      "heartbeats_total",
		Help:      "Total number of v1 instance heartbeats sent.",
	})
)

// Register exports all metrics to the default registerer; safe to call
// multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ActiveHost,
			BreakerOpen,
			ConfigWatchedKeys,
			NamingWatchedServices,
			BreakerTripsTotal,
			FailoversTotal,
			ConfigChangeNotificationsTotal,
			NamingChangeNotificationsTotal,
			HeartbeatsTotal,
		)
	})
}

// SetActiveHost marks host as the sole active member of known, zeroing
// every other host in known. Labels not in known are left untouched.
func SetActiveHost(host string, known []string) {
	for _, h := range known {
		if h == host {
			ActiveHost.WithLabelValues(h).Set(1)
		} else {
			ActiveHost.WithLabelValues(h).Set(0)
		}
	}
}
