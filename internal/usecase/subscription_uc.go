// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/infra/metrics"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	FindActive(ctx context.Context, userID, planID string) (*model.Subscription, error)
	Cancel(ctx context.Context, userID, planID string) error
	// ExpireDue flips active subscriptions past their end date to expired and
	// returns how many changed. Run periodically by the scheduler.
	ExpireDue(ctx context.Context) (int, error)
}

type subscriptionUC struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, log: logger}
}

func (u *subscriptionUC) FindActive(ctx context.Context, userID, planID string) (*model.Subscription, error) {
	return u.subs.FindActiveByUserAndPlan(ctx, nil, userID, planID)
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID, planID string) error {
	if err := u.subs.CancelActive(ctx, nil, userID, planID); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Str("plan_id", planID).Msg("subscription cancelled")
	return nil
}

func (u *subscriptionUC) ExpireDue(ctx context.Context) (int, error) {
	n, err := u.subs.ExpireDue(ctx, nil, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		u.log.Info().Int("count", n).Msg("subscriptions expired")
	}
	return n, nil
}
