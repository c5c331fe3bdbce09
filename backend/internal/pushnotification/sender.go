package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/config"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/metrics"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/pushsubscription"
)

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// SendFunc delivers one encrypted notification. webpush.SendNotification in
// production.
type SendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// Delivery outcomes reported to metrics.
const (
	outcomeSent    = "sent"
	outcomeExpired = "expired"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

type Sender struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	metrics  *metrics.Recorder
	send     SendFunc
}

type SenderOption func(*Sender)

func WithSendFunc(f SendFunc) SenderOption {
	return func(s *Sender) { s.send = f }
}

func NewSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, rec *metrics.Recorder, opts ...SenderOption) *Sender {
	s := &Sender{
		vapidEnv: vapidEnv,
		repo:     repo,
		metrics:  rec,
		send:     webpush.SendNotification,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendToUser delivers payload to every subscription of userID and returns
// how many deliveries succeeded. Subscriptions the push service reports as
// gone are removed.
func (s *Sender) SendToUser(ctx context.Context, userID string, payload *NotificationPayload) int {
	if !s.vapidEnv.Enabled() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		s.metrics.ObservePush(outcomeSkipped)
		return 0
	}

	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", "user_id", userID, "error", err)
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", "error", err)
		return 0
	}

	sent := 0
	for _, sub := range subs {
		outcome := s.sendToSubscription(ctx, sub, data)
		s.metrics.ObservePush(outcome)
		if outcome == outcomeSent {
			sent++
		}
	}
	return sent
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) string {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := s.send(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.vapidEnv.PublicKey,
		VAPIDPrivateKey: s.vapidEnv.PrivateKey,
		Subscriber:      s.vapidEnv.Contact,
		TTL:             86400,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return outcomeFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.UserID, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return outcomeExpired
	}

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return outcomeFailed
	}
	return outcomeSent
}
