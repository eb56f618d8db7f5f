// Package natsclient provides a managed NATS connection for rulescope with a
// circuit breaker pattern.
//
// The Client wraps a single NATS connection plus its JetStream context and
// exposes the operations the orchestrator needs: core subscribe/publish for
// the fact ingestion pipeline, durable JetStream consumers for the
// change-notification feed, and key-value buckets for entity storage.
//
// Connection failures feed a circuit breaker: after a threshold of failures
// the circuit opens and operations fail fast with ErrCircuitOpen until the
// backoff elapses. Successful operations reset the circuit.
package natsclient
