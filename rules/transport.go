package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/natsclient"
	"github.com/c360/rulescope/types"
)

// Transport connects the orchestrator to NATS: a durable JetStream consumer
// on the persistence change feed, and a core subscription for fact envelopes
// from the upstream attribute pipeline.
//
// Change notifications are acknowledged after handling; the feed is
// at-least-once and reconciliation is idempotent, so redelivery after a crash
// is safe. A handling error is logged and the notification dropped; the next
// notification for the same entity reconverges the registry.
type Transport struct {
	client  *natsclient.Client
	service *Service
	config  *Config
	logger  *slog.Logger
}

// NewTransport wires the service to a connected NATS client.
func NewTransport(client *natsclient.Client, service *Service, config *Config) *Transport {
	return &Transport{
		client:  client,
		service: service,
		config:  config,
		logger:  slog.Default().With("component", "rules-transport"),
	}
}

// Start sets up the change feed and the fact subscription. Both setups run
// concurrently; Start returns when both are live or either fails.
func (t *Transport) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.startChangeFeed(gctx) })
	g.Go(func() error { return t.startFactIngest(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	t.logger.Info("Transport started",
		"changeStream", t.config.ChangeStream,
		"changeConsumer", t.config.ChangeConsumer,
		"factSubject", t.config.FactSubject)
	return nil
}

func (t *Transport) startChangeFeed(ctx context.Context) error {
	_, err := t.client.CreateStream(ctx, jetstream.StreamConfig{
		Name:        t.config.ChangeStream,
		Description: "Persistence change notifications",
		Subjects:    []string{t.config.ChangeSubject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
	})
	if err != nil {
		return errors.WrapTransient(err, "Transport", "startChangeFeed",
			"create change stream")
	}

	err = t.client.ConsumeStream(ctx, t.config.ChangeStream, t.config.ChangeConsumer,
		t.config.ChangeSubject, func(data []byte) {
			t.handleChange(ctx, data)
		})
	if err != nil {
		return errors.WrapTransient(err, "Transport", "startChangeFeed",
			"consume change stream")
	}
	return nil
}

func (t *Transport) startFactIngest(ctx context.Context) error {
	err := t.client.Subscribe(ctx, t.config.FactSubject, t.handleFact)
	if err != nil {
		return errors.WrapTransient(err, "Transport", "startFactIngest",
			"subscribe fact subject")
	}
	return nil
}

func (t *Transport) handleChange(ctx context.Context, data []byte) {
	var change types.ChangeNotification
	if err := json.Unmarshal(data, &change); err != nil {
		t.logger.Warn("Dropping undecodable change notification", "error", err)
		return
	}

	var err error
	switch change.Kind {
	case types.KindRuleset:
		if change.Ruleset == nil {
			t.logger.Warn("Ruleset notification without ruleset", "cause", string(change.Cause))
			return
		}
		err = t.service.ProcessRulesetChange(ctx, change.Ruleset, change.Cause)
	case types.KindTenant:
		if change.Tenant == nil {
			t.logger.Warn("Tenant notification without tenant", "cause", string(change.Cause))
			return
		}
		err = t.service.ProcessTenantChange(ctx, change.Tenant, change.Cause)
	case types.KindAsset:
		err = t.service.ProcessAssetChange(ctx, &change)
	default:
		t.logger.Warn("Unknown change notification kind", "kind", string(change.Kind))
		return
	}

	if err != nil {
		t.logger.Error("Change reconciliation failed",
			"kind", string(change.Kind), "cause", string(change.Cause), "error", err)
	}
}

func (t *Transport) handleFact(_ context.Context, data []byte) {
	var envelope types.FactEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.logger.Warn("Dropping undecodable fact envelope", "error", err)
		return
	}

	if err := t.service.Accept(&envelope); err != nil {
		t.logger.Error("Fact dispatch failed", "kind", string(envelope.Kind), "error", err)
	}
}
