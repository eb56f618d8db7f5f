// Package storage defines the persistence contracts the orchestrator depends
// on (ruleset store, asset store, identity provider) and provides two
// implementations: an in-memory store for tests and local development, and a
// NATS JetStream key-value backed store for deployment.
package storage
