// Package metrics exposes trap, rule and delivery counters for Prometheus
// on a private registry, served at /metrics by the API server.
package metrics
