// Package engine provides rule-engine implementations for the orchestrator:
// a NATS-backed engine that fans operations out to external evaluation
// runtimes over per-scope subjects, and an in-memory engine for local runs
// and tests.
package engine
