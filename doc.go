// Package rulescope is a hierarchical rule-deployment orchestrator for a
// multi-tenant IoT asset platform. It decides, for every asset fact, which
// rule-evaluation engines must see it and in what order, and keeps those
// engines' ruleset membership synchronized with changing rulesets, tenants
// and assets.
//
// # Architecture
//
// Facts and change notifications flow through the orchestrator, which fans
// them out to per-scope engines:
//
//	┌──────────────────────────────────────┐
//	│           rules.Transport            │  change feed (JetStream),
//	│   persistence.events.>  assets.state │  fact ingest (core NATS)
//	└──────────────────┬───────────────────┘
//	                   ↓
//	┌──────────────────────────────────────┐
//	│           rules.Service              │  scope resolution, fact index,
//	│  (registry + fact index, one lock)   │  reconciliation, dispatch
//	└──────────────────┬───────────────────┘
//	                   ↓
//	┌──────────────────────────────────────┐
//	│          rules.Deployment            │  one engine per scope:
//	│    global │ tenant:<realm> │ asset   │  rules.engine.<scope> subjects
//	└──────────────────────────────────────┘
//
// A fact's scope chain is always ordered global, then tenant, then asset
// ancestors from the tree root down. More general policy evaluates first;
// consumers rely on that precedence.
//
// # Packages
//
// Orchestration:
//   - rules: deployment registry, fact index, dispatch, reconciliation
//   - engine: NATS and in-memory engine implementations
//   - types: rulesets, assets, facts, change notifications
//
// Infrastructure:
//   - natsclient: NATS connection management with circuit breaker
//   - storage: ruleset/asset/tenant stores (JetStream KV, in-memory)
//   - metric: Prometheus metrics
//   - errors: structured error handling
//
// # Binary
//
// Build and run the orchestrator:
//
//	go build ./cmd/rulescope
//	./rulescope --nats-url=nats://localhost:4222
//
// Run without an external evaluation runtime:
//
//	./rulescope --engine=memory
package rulescope
