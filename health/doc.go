// Package health reports the orchestrator's aggregate health: the NATS
// connection, the change feed, and every rule deployment. Error messages are
// sanitized before leaving the process so operational detail does not leak
// through the health endpoint.
package health
