/*
Package monitoring provides metrics collection for a couchjs run.

# Overview

The host is a short-lived batch process, so metrics are not served over
HTTP. Instead they are gathered on a private Prometheus registry and, when
configured, written once at exit in the text exposition format for the
node_exporter textfile collector.

# Metrics

- Scripts executed and their duration
- evalcx calls by outcome and sandbox compilations
- Live execution contexts
- Live and finalized native bindings, collection passes
- CouchHTTP requests by method and status

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics)
	// ... run script ...
	timer.Stop("success")

	if err := metrics.WriteTextfile("/var/lib/node_exporter/couchjs.prom"); err != nil {
		logger.Warn("metrics export failed", zap.Error(err))
	}
*/
package monitoring
