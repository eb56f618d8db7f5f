// Package rules implements the rule-deployment orchestrator: it maintains a
// registry of rule deployments across the global, tenant and asset scope
// levels, keeps a fact index of current asset state, and routes facts and
// persistence change notifications to the deployments in scope.
//
// The orchestrator never evaluates rules itself. Evaluation is delegated to
// Engine implementations; the orchestrator decides which engines exist, which
// rulesets they hold and which facts they see.
package rules
