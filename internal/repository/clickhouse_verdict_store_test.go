package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
)

func sampleVerdict(a, b string, theta float64) models.Verdict {
	return models.Verdict{
		A:           a,
		B:           b,
		Category:    models.HighRankCandidate,
		Tier:        models.TierDiamond,
		Signals:     models.SignalPair{Theta: theta, Tau: 70},
		SampleSize:  397,
		Fingerprint: "fp",
		ComputedAt:  time.Unix(0, 0).UTC(),
	}
}

func TestBuildVerdictInsert(t *testing.T) {
	q, args := buildVerdictInsert("curve_verdicts", []models.Verdict{
		sampleVerdict("-13", "4", -28.9),
		{},
		sampleVerdict("1", "1", -30),
	})
	assert.True(t, strings.HasPrefix(q, "INSERT INTO curve_verdicts ("+verdictColumns+") VALUES "))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 20)
	assert.Equal(t, "-13", args[1])
	assert.Equal(t, "HighRankCandidate", args[3])
	assert.Equal(t, uint32(70), args[6])
	assert.Equal(t, []uint64{}, args[8])

	q, args = buildVerdictInsert("t", nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

type memStore struct {
	batches [][]models.Verdict
	fail    int
}

func (m *memStore) Init(context.Context) error   { return nil }
func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

func (m *memStore) StoreBatch(_ context.Context, vs []models.Verdict) error {
	if m.fail > 0 {
		m.fail--
		return errors.New("clickhouse unavailable")
	}
	m.batches = append(m.batches, append([]models.Verdict(nil), vs...))
	return nil
}

func (m *memStore) TopCandidates(context.Context, int) ([]models.Verdict, error) { return nil, nil }

func TestStoreSinkBuffersAndFlushesOnClose(t *testing.T) {
	store := &memStore{}
	sink := NewStoreSink(store, 2)
	ctx := context.Background()

	v1, v2, v3 := sampleVerdict("1", "1", -1), sampleVerdict("2", "1", -2), sampleVerdict("3", "1", -3)
	require.NoError(t, sink.Write(ctx, models.Result{A: "1", Verdict: &v1}))
	require.NoError(t, sink.Write(ctx, models.Result{A: "0", Err: &models.InvalidCurveError{}}))
	assert.Empty(t, store.batches)

	require.NoError(t, sink.Write(ctx, models.Result{A: "2", Verdict: &v2}))
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)

	require.NoError(t, sink.Write(ctx, models.Result{A: "3", Verdict: &v3}))
	require.NoError(t, sink.Close())
	require.Len(t, store.batches, 2)
	assert.Equal(t, "3", store.batches[1][0].A)
}

func TestStoreSinkKeepsChunkWhenInsertFails(t *testing.T) {
	store := &memStore{fail: 1}
	sink := NewStoreSink(store, 3)
	ctx := context.Background()

	results := make([]models.Result, 3)
	for i := range results {
		v := sampleVerdict(string(rune('1'+i)), "1", -1)
		results[i] = models.Result{A: v.A, Verdict: &v}
	}
	require.NoError(t, sink.Write(ctx, results[0]))
	require.NoError(t, sink.Write(ctx, results[1]))
	assert.Error(t, sink.Write(ctx, results[2]))
	assert.Equal(t, 2, sink.Buffered())

	require.NoError(t, sink.Write(ctx, results[2]))
	require.Len(t, store.batches, 1)
	got := make([]string, 0, 3)
	for _, v := range store.batches[0] {
		got = append(got, v.A)
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.Zero(t, sink.Buffered())
}

func TestStoreSinkCloseReportsFailedFlush(t *testing.T) {
	store := &memStore{fail: 1}
	sink := NewStoreSink(store, 10)
	v := sampleVerdict("1", "1", -1)
	require.NoError(t, sink.Write(context.Background(), models.Result{A: "1", Verdict: &v}))

	assert.Error(t, sink.Close())
	assert.Equal(t, 1, sink.Buffered())
	require.NoError(t, sink.Close())
	require.Len(t, store.batches, 1)
}
