// Package metric provides Prometheus metrics management for rulescope.
//
// The MetricsRegistry owns a private Prometheus registry preloaded with the
// core platform metrics and the Go/process collectors. Components register
// their own metrics through the MetricsRegistrar interface so that duplicate
// registrations surface as classified errors instead of panics.
//
// A nil *MetricsRegistry is a valid argument everywhere a registry is
// accepted: components treat it as "metrics disabled" and skip registration.
package metric
