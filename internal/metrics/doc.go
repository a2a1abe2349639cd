// Package metrics defines the Prometheus instruments exported on /metrics.
// All recording methods are safe to call on a nil *Metrics.
package metrics
