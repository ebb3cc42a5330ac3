package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
	pkgkafka "EventHorizon/pkg/kafka"
	"EventHorizon/pkg/queue"
)

type failingEngine struct{ err error }

func (e failingEngine) Classify(context.Context, models.Curve) (models.Verdict, error) {
	return models.Verdict{}, e.err
}

func TestRequestProcessorDeliversToSinks(t *testing.T) {
	sink := &recordingSink{}
	p := NewRequestProcessor(stubEngine{}, nil, nil, sink)

	r, err := p.Process(context.Background(), models.CurveRequest{A: "-13", B: "4"})
	require.NoError(t, err)
	require.NotNil(t, r.Verdict)
	assert.Equal(t, models.HighRankCandidate, r.Verdict.Category)
	require.Len(t, sink.results, 1)
}

func TestRequestProcessorIgnoresSinkFailures(t *testing.T) {
	sink := &recordingSink{failOn: "5"}
	p := NewRequestProcessor(stubEngine{}, nil, nil, sink)

	_, err := p.Process(context.Background(), models.CurveRequest{A: "5", B: "1"})
	assert.NoError(t, err)
}

func TestKafkaCurveHandler(t *testing.T) {
	sink := &recordingSink{}
	h := NewKafkaCurveHandler("curve-requests", NewRequestProcessor(stubEngine{}, nil, nil, sink))
	assert.Equal(t, "curve-requests", h.Topic())

	t.Run("classifies", func(t *testing.T) {
		require.NoError(t, h.Handle(context.Background(), []byte(`{"a":"-1","b":"1"}`)))
	})

	t.Run("bad payload is permanent", func(t *testing.T) {
		err := h.Handle(context.Background(), []byte(`{not json`))
		require.Error(t, err)
		assert.True(t, isKafkaPermanent(err))
	})

	t.Run("singular curve is permanent", func(t *testing.T) {
		err := h.Handle(context.Background(), []byte(`{"a":"0","b":"0"}`))
		require.Error(t, err)
		assert.True(t, isKafkaPermanent(err))
		assert.ErrorIs(t, err, models.ErrInvalidCurve)
	})

	t.Run("transient engine failure is retried", func(t *testing.T) {
		h := NewKafkaCurveHandler("t", NewRequestProcessor(failingEngine{err: context.DeadlineExceeded}, nil, nil))
		err := h.Handle(context.Background(), []byte(`{"a":"1","b":"1"}`))
		require.Error(t, err)
		assert.False(t, isKafkaPermanent(err))
	})
}

func isKafkaPermanent(err error) bool {
	return pkgkafka.IsPermanent(err)
}

func TestCurveJob(t *testing.T) {
	sink := &recordingSink{}
	job := NewCurveJob(NewRequestProcessor(stubEngine{}, nil, nil, sink))
	assert.Equal(t, models.JobClassifyCurve, job.Type())

	payload, _ := json.Marshal(models.CurveRequest{A: "2", B: "3"})
	require.NoError(t, job.Handle(context.Background(), payload))
	require.Len(t, sink.results, 1)

	err := job.Handle(context.Background(), json.RawMessage(`{"a":"7","b":"1"}`))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrInsufficientPrimes)

	err = job.Handle(context.Background(), json.RawMessage(`{"a":""}`))
	assert.True(t, queue.IsPermanent(err))
}

type recordingQueue struct {
	batches [][]models.CurveRequest
	err     error
}

func (q *recordingQueue) Enqueue(_ context.Context, reqs []models.CurveRequest) error {
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, append([]models.CurveRequest(nil), reqs...))
	return nil
}

func TestScanEnqueuesGridInChunks(t *testing.T) {
	q := &recordingQueue{}
	s := NewScanUseCase(q, nil)

	acc, err := s.Enqueue(context.Background(), models.ScanRequest{
		AMin: "0", AMax: "29", BMin: "0", BMax: "19", MaxCurves: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 600, acc.Enqueued)
	assert.NotEmpty(t, acc.RunID)
	require.Len(t, q.batches, 2)
	assert.Len(t, q.batches[0], scanChunk)
	assert.Equal(t, acc.RunID, q.batches[1][0].RequestID)
	assert.Equal(t, models.CurveRequest{RequestID: acc.RunID, A: "0", B: "0"}, q.batches[0][0])
}

func TestScanRejectsOversizedGrid(t *testing.T) {
	s := NewScanUseCase(&recordingQueue{}, nil)
	_, err := s.Enqueue(context.Background(), models.ScanRequest{
		AMin: "0", AMax: "99", BMin: "0", BMax: "99", MaxCurves: 100,
	})
	assert.ErrorIs(t, err, ErrScanTooLarge)
}

func TestScanPropagatesQueueErrors(t *testing.T) {
	s := NewScanUseCase(&recordingQueue{err: errors.New("redis down")}, nil)
	_, err := s.Enqueue(context.Background(), models.ScanRequest{
		AMin: "0", AMax: "1", BMin: "0", BMax: "1", MaxCurves: 10,
	})
	assert.Error(t, err)
}
