package httpclient

import (
	"context"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/provider"
)

type webhookNotifier struct {
	client HTTPClient
	url    string
	logger *zap.Logger
}

// NewQueueNotifier posts queue events to the configured webhook, or
// discards them when webhooks are disabled.
func NewQueueNotifier(cfg *config.Config, client HTTPClient, logger *zap.Logger) provider.QueueNotifier {
	if !cfg.Webhook.Enabled || cfg.Webhook.URL == "" {
		logger.Info("Queue event webhook disabled")
		return discardNotifier{}
	}
	return &webhookNotifier{
		client: client,
		url:    cfg.Webhook.URL,
		logger: logger,
	}
}

func (n *webhookNotifier) Notify(ctx context.Context, event *entity.QueueEvent) error {
	if err := n.client.PostJSON(ctx, n.url, event.Data.ItemID, event, nil); err != nil {
		return err
	}
	n.logger.Info("Queue event delivered",
		zap.String("event", string(event.Event)),
		zap.String("item_id", event.Data.ItemID),
	)
	return nil
}

type discardNotifier struct{}

func (discardNotifier) Notify(ctx context.Context, event *entity.QueueEvent) error {
	return nil
}
