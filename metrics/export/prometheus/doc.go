// Package prometheus exposes authority metrics as a client_golang
// [prometheus.Collector].
//
// [NewCollector] reads a metrics snapshot on every scrape. Counter names are
// prefixed albumauth_*_total; the single histogram is
// albumauth_rotate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     collector where they want it.
//   - Mutate authority state.
package prometheus
