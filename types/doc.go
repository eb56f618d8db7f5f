// Package types defines the shared domain model for rulescope: assets and
// their attributes, rulesets and their scopes, tenants, the fact variants
// (asset state and asset event) routed through rule deployments, and the
// change notifications delivered by the persistence feed.
//
// Types here are plain data with JSON tags; behavior lives in the packages
// that orchestrate them.
package types
