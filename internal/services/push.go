package services

import (
	"context"
	"fmt"

	"vnjp-connect/internal/config"
	"vnjp-connect/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// PushNotification is a user-facing alert delivered through APNs
type PushNotification struct {
	Title    string
	Body     string
	Event    string
	IntentID string
}

// Pusher delivers an alert to a device token
type Pusher interface {
	Push(ctx context.Context, deviceToken string, n PushNotification) error
}

// APNsPusher sends notifications through Apple's token-based provider API
type APNsPusher struct {
	client *apns2.Client
	topic  string
}

// NewAPNsPusher creates a pusher from a .p8 signing key
func NewAPNsPusher(cfg config.APNsConfig) (*APNsPusher, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsPusher{client: client, topic: cfg.Topic}, nil
}

// Push sends one alert. A rejected notification is reported as an error.
func (p *APNsPusher) Push(ctx context.Context, deviceToken string, n PushNotification) error {
	body := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default").
		Custom("event", n.Event)
	if n.IntentID != "" {
		body = body.Custom("intent_id", n.IntentID)
	}

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     body,
	})
	if err != nil {
		metrics.PushNotifications.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		metrics.PushNotifications.WithLabelValues("rejected").Inc()
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}

	metrics.PushNotifications.WithLabelValues("sent").Inc()
	log.Debug().Str("apns_id", res.ApnsID).Str("event", n.Event).Msg("Push notification sent")
	return nil
}
