package rules

import (
	"fmt"

	"github.com/c360/rulescope/errors"
)

// Config holds the orchestrator's tunables. Zero values are filled in by
// DefaultConfig; Validate rejects configurations the service cannot run with.
type Config struct {
	// EventExpires is the default retention for event facts whose source
	// attribute does not override it, e.g. "1h".
	EventExpires string `json:"eventExpires"`

	// ChangeStream is the JetStream stream carrying persistence change
	// notifications.
	ChangeStream string `json:"changeStream"`

	// ChangeSubject is the subject filter for change notifications within
	// ChangeStream.
	ChangeSubject string `json:"changeSubject"`

	// ChangeConsumer is the durable consumer name for the change feed.
	ChangeConsumer string `json:"changeConsumer"`

	// FactSubject is the core NATS subject the upstream attribute pipeline
	// publishes fact envelopes on.
	FactSubject string `json:"factSubject"`

	// EngineSubjectPrefix is the subject prefix engine operations fan out
	// under, one subject per scope.
	EngineSubjectPrefix string `json:"engineSubjectPrefix"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		EventExpires:        "1h",
		ChangeStream:        "PERSISTENCE",
		ChangeSubject:       "persistence.events.>",
		ChangeConsumer:      "rulescope",
		FactSubject:         "assets.state.>",
		EngineSubjectPrefix: "rules.engine",
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if c.EventExpires == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "event expires")
	}
	if _, err := ParseExpires(c.EventExpires); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("event expires %q", c.EventExpires))
	}

	for name, value := range map[string]string{
		"change stream":         c.ChangeStream,
		"change subject":        c.ChangeSubject,
		"change consumer":       c.ChangeConsumer,
		"fact subject":          c.FactSubject,
		"engine subject prefix": c.EngineSubjectPrefix,
	} {
		if value == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", name)
		}
	}

	return nil
}
