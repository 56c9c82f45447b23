package repository

import (
	"context"

	"promptmarket-payments/internal/domain/model"
)

// PlanRepository is the port for subscription plans. Reads are on the hot
// checkout path and are typically served through a caching decorator.
type PlanRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
}
