package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/pkg/logger"
)

var ErrScanTooLarge = errors.New("scan grid too large")

const scanChunk = 500

// ScanAccepted acknowledges an enqueued grid.
type ScanAccepted struct {
	RunID    string `json:"run_id"`
	Enqueued int    `json:"enqueued"`
}

// ScanUseCase splits a coefficient grid into classify_curve jobs.
type ScanUseCase struct {
	queue domrepo.CurveQueue
	log   *logger.Logger
}

func NewScanUseCase(q domrepo.CurveQueue, log *logger.Logger) *ScanUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &ScanUseCase{queue: q, log: log.With(logger.String("component", "scan"))}
}

func (s *ScanUseCase) Enqueue(ctx context.Context, req models.ScanRequest) (ScanAccepted, error) {
	grid, err := NewGridSource(req.AMin, req.AMax, req.BMin, req.BMax)
	if err != nil {
		return ScanAccepted{}, err
	}
	if grid.Size().Cmp(big.NewInt(int64(req.MaxCurves))) > 0 {
		return ScanAccepted{}, fmt.Errorf("%w: %s curves, limit %d", ErrScanTooLarge, grid.Size(), req.MaxCurves)
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan Candidate, scanChunk)
	emitErr := make(chan error, 1)
	go func() {
		defer close(ch)
		emitErr <- grid.Emit(ctx, ch)
	}()

	acc := ScanAccepted{RunID: runID}
	batch := make([]models.CurveRequest, 0, scanChunk)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.queue.Enqueue(ctx, batch); err != nil {
			return fmt.Errorf("enqueue scan: %w", err)
		}
		acc.Enqueued += len(batch)
		batch = batch[:0]
		return nil
	}

	for c := range ch {
		batch = append(batch, models.CurveRequest{RequestID: runID, A: c.A.String(), B: c.B.String()})
		if len(batch) == scanChunk {
			if err := flush(); err != nil {
				cancel()
				for range ch {
				}
				return acc, err
			}
		}
	}
	if err := <-emitErr; err != nil {
		return acc, err
	}
	if err := flush(); err != nil {
		return acc, err
	}

	s.log.Info("scan enqueued",
		logger.String("run_id", runID),
		logger.Int("curves", acc.Enqueued),
	)
	return acc, nil
}
