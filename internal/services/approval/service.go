// Package approval serves the link administrators follow to approve a
// user's verification request.
package approval

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/logger"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

var (
	ErrTokenInvalid = errors.New("approval: invalid token")
	ErrTokenExpired = errors.New("approval: token expired")
	ErrRejected     = errors.New("approval: request was rejected")
)

// Store is the slice of the document store the approval flow touches.
type Store interface {
	GetVerification(ctx context.Context, id string) (*entities.Verification, error)
	ApproveVerification(ctx context.Context, id string, now time.Time) error
	RejectVerification(ctx context.Context, id string, now time.Time) error
	AppendAudit(ctx context.Context, e entities.AuditEntry) error
}

// Result of a successful approval.
type Result struct {
	Verification    entities.Verification
	AlreadyApproved bool
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

func NewService(st Store, ttl time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{store: st, ttl: ttl, now: now, log: logger.WithComponent("approval")}
}

// Approve checks token and age, then moves a pending request to approved.
// Approving an approved request again succeeds without writing. A request
// that changed state between read and write is evaluated once more.
func (s *Service) Approve(ctx context.Context, id, token string) (Result, error) {
	for attempt := 0; ; attempt++ {
		v, err := s.store.GetVerification(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if subtle.ConstantTimeCompare([]byte(v.Token), []byte(token)) != 1 {
			return Result{}, ErrTokenInvalid
		}
		if s.now().Sub(v.CreatedAt) > s.ttl {
			return Result{}, ErrTokenExpired
		}
		switch v.Status {
		case entities.VerificationRejected:
			return Result{}, ErrRejected
		case entities.VerificationApproved:
			return Result{Verification: *v, AlreadyApproved: true}, nil
		}

		err = s.store.ApproveVerification(ctx, id, s.now())
		if errors.Is(err, store.ErrStale) && attempt == 0 {
			s.log.Info().Str("verification_id", id).Msg("verification changed during approval, re-reading")
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("approve %s: %w", id, err)
		}
		v.Status = entities.VerificationApproved
		return Result{Verification: *v}, nil
	}
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, id string) error {
	if err := s.store.RejectVerification(ctx, id, s.now()); err != nil {
		return fmt.Errorf("reject %s: %w", id, err)
	}
	return nil
}

// audit never fails the request; a lost entry is logged.
func (s *Service) audit(ctx context.Context, e entities.AuditEntry) {
	e.Timestamp = s.now()
	if err := s.store.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		s.log.Error().Err(err).Str("verification_id", e.VerificationID).Str("outcome", e.Outcome).Msg("audit write failed")
	}
}
