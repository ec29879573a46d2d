// Package metrics exports filesystem and HTTP metrics to Prometheus.
package metrics
