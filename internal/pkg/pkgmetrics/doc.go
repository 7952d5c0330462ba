// Package pkgmetrics exposes Prometheus instrumentation for the transfer
// pipeline: upload/download counters, spooled byte totals, and parse
// latency. The registry is private so tests can build isolated instances.
package pkgmetrics
