package services

import (
	"context"

	"vnjp-connect/internal/models"

	"github.com/rs/zerolog/log"
)

// Notifier tells participants about lifecycle and chat events. Calls happen
// after the state change has committed and never fail the operation.
type Notifier interface {
	IntentMatched(ctx context.Context, intent *models.Intent, channel *models.Channel)
	IntentReleased(ctx context.Context, intent *models.Intent, requesterID string)
	MessageCreated(ctx context.Context, intent *models.Intent, msg *models.Message)
	IntentCompleted(ctx context.Context, intent *models.Intent)
}

// NopNotifier discards every event
type NopNotifier struct{}

func (NopNotifier) IntentMatched(context.Context, *models.Intent, *models.Channel) {}
func (NopNotifier) IntentReleased(context.Context, *models.Intent, string) {}
func (NopNotifier) MessageCreated(context.Context, *models.Intent, *models.Message) {}
func (NopNotifier) IntentCompleted(context.Context, *models.Intent) {}

// Dispatcher delivers events over the websocket hub and falls back to APNs
// for users that are offline
type Dispatcher struct {
	hub    *WSHub
	users  UserStore
	pusher Pusher
}

// NewDispatcher creates a dispatcher. pusher may be nil to disable push.
func NewDispatcher(hub *WSHub, users UserStore, pusher Pusher) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		users:  users,
		pusher: pusher,
	}
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, msg WSMessage, push PushNotification) {
	if d.hub != nil && d.hub.IsOnline(userID) {
		err := d.hub.SendToUser(userID, msg)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send websocket event")
	}

	if d.pusher == nil {
		return
	}
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		return
	}
	if user.PushToken == nil {
		return
	}
	if err := d.pusher.Push(ctx, *user.PushToken, push); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("event", push.Event).Msg("Failed to push notification")
	}
}

// IntentMatched notifies the owner that someone accepted their intent
func (d *Dispatcher) IntentMatched(ctx context.Context, intent *models.Intent, channel *models.Channel) {
	d.deliver(ctx, intent.OwnerID, WSMessage{
		Type:      EventIntentMatched,
		IntentID:  intent.ID,
		ChannelID: channel.ID,
		Data:      intent,
	}, PushNotification{
		Title:    "New partner",
		Body:     intent.Title,
		Event:    EventIntentMatched,
		IntentID: intent.ID,
	})
}

// IntentReleased notifies the other participant that the match was cancelled.
// intent is the state before the release.
func (d *Dispatcher) IntentReleased(ctx context.Context, intent *models.Intent, requesterID string) {
	counterpart, ok := intent.Counterpart(requesterID)
	if !ok {
		return
	}
	d.deliver(ctx, counterpart, WSMessage{
		Type:     EventIntentReleased,
		IntentID: intent.ID,
	}, PushNotification{
		Title:    "Match cancelled",
		Body:     intent.Title,
		Event:    EventIntentReleased,
		IntentID: intent.ID,
	})
}

// MessageCreated forwards a new chat message to the recipient
func (d *Dispatcher) MessageCreated(ctx context.Context, intent *models.Intent, msg *models.Message) {
	if msg.SenderID == nil {
		return
	}
	recipient, ok := intent.Counterpart(*msg.SenderID)
	if !ok {
		return
	}
	d.deliver(ctx, recipient, WSMessage{
		Type:      EventMessageCreated,
		IntentID:  intent.ID,
		ChannelID: msg.ChannelID,
		Data:      msg,
	}, PushNotification{
		Title:    intent.Title,
		Body:     msg.Content,
		Event:    EventMessageCreated,
		IntentID: intent.ID,
	})
}

// IntentCompleted notifies both participants
func (d *Dispatcher) IntentCompleted(ctx context.Context, intent *models.Intent) {
	if intent.PartnerID == nil {
		return
	}
	for _, userID := range []string{intent.OwnerID, *intent.PartnerID} {
		d.deliver(ctx, userID, WSMessage{
			Type:     EventIntentCompleted,
			IntentID: intent.ID,
		}, PushNotification{
			Title:    "Exchange completed",
			Body:     intent.Title,
			Event:    EventIntentCompleted,
			IntentID: intent.ID,
		})
	}
}
