// Package observability records rule evaluation events and derives
// metrics and alerts from them. Events are persisted as JSON Lines, each
// stamped with the run that produced it; metrics and alerts are computed
// on demand from the log. Live counters are also exported to Prometheus.
package observability
