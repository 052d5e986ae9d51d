package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

// UserTokens is the slice of the store the notifier needs.
type UserTokens interface {
	GetUser(ctx context.Context, id string) (*entities.User, error)
	RemoveUserTokens(ctx context.Context, userID string, tokens []string) error
}

// Delivery summarizes one SendToUser call.
type Delivery struct {
	Skipped string // user_not_found | no_tokens
	Sent    int
	Failed  int
	Pruned  []string
}

type Notifier struct {
	users UserTokens
	gw    Gateway
	log   zerolog.Logger
}

func NewNotifier(users UserTokens, gw Gateway) *Notifier {
	return &Notifier{users: users, gw: gw, log: logger.WithComponent("notifier")}
}

// SendToUser pushes env to every device of the user and prunes the tokens
// the push service reported as stale, also when the batch was cut short by
// a transport failure. A missing user or an empty token list is a skip, not
// an error.
func (n *Notifier) SendToUser(ctx context.Context, userID string, env policy.Envelope) (Delivery, error) {
	log := n.log.With().Str("user_id", userID).Str("type", env.Data["type"]).Logger()

	u, err := n.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u == nil) {
		log.Info().Msg("user not found, notification skipped")
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return Delivery{Skipped: "user_not_found"}, nil
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	if len(u.FCMTokens) == 0 {
		log.Debug().Msg("user has no device tokens")
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return Delivery{Skipped: "no_tokens"}, nil
	}

	resp, sendErr := n.gw.SendMulticast(ctx, env, u.FCMTokens)
	d := Delivery{Sent: resp.SuccessCount, Failed: resp.FailureCount}
	if stale := resp.StaleTokens(); len(stale) > 0 {
		if err := n.users.RemoveUserTokens(ctx, userID, stale); err != nil {
			log.Error().Err(err).Int("tokens", len(stale)).Msg("token pruning failed")
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			return d, errors.Join(fmt.Errorf("prune tokens of user %s: %w", userID, err), sendErr)
		}
		d.Pruned = stale
		metrics.TokensPruned.Add(float64(len(stale)))
	}
	if sendErr != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return d, fmt.Errorf("push to user %s: %w", userID, sendErr)
	}

	status := "sent"
	if d.Failed > 0 {
		status = "partial"
	}
	metrics.NotificationsTotal.WithLabelValues(status).Inc()
	log.Info().Int("sent", d.Sent).Int("failed", d.Failed).Int("pruned", len(d.Pruned)).Msg("notification delivered")
	return d, nil
}
