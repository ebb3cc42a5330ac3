package repository

import (
	"context"
	"fmt"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/pkg/queue"
)

// CurveQueue publishes classify_curve jobs on the Redis job queue.
type CurveQueue struct {
	pub queue.Publisher
}

func NewCurveQueue(pub queue.Publisher) domrepo.CurveQueue {
	return &CurveQueue{pub: pub}
}

func (q *CurveQueue) Enqueue(ctx context.Context, reqs []models.CurveRequest) error {
	for i, r := range reqs {
		if err := q.pub.PublishMessage(ctx, models.JobClassifyCurve, r); err != nil {
			return fmt.Errorf("enqueue %s:%s (%d of %d): %w", r.A, r.B, i+1, len(reqs), err)
		}
	}
	return nil
}
