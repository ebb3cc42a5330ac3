package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
	"EventHorizon/pkg/config"
	xhttp "EventHorizon/pkg/http"
)

func candidate() models.Verdict {
	return models.Verdict{
		A:        "-13",
		B:        "4",
		Category: models.HighRankCandidate,
		Tier:     models.TierDiamond,
		Signals:  models.SignalPair{Theta: -28.875, Tau: 70},
	}
}

func newTestClient(url string, retries int) *Client {
	c := NewClient(config.VerifierConfig{URL: url, Timeout: time.Second, Retries: retries}, nil)
	c.backoff = time.Millisecond
	return c
}

func TestVerifyPostsCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "-13", req.A)
		assert.Equal(t, 70, req.Tau)
		_, _ = w.Write([]byte(`{"a":"-13","b":"4","status":"done","rank":2}`))
	}))
	defer srv.Close()

	ver, err := newTestClient(srv.URL, 0).Verify(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, "done", ver.Status)
	require.NotNil(t, ver.Rank)
	assert.Equal(t, 2, *ver.Rank)
}

func TestVerifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	ver, err := newTestClient(srv.URL, 2).Verify(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "queued", ver.Status)
	assert.Equal(t, "-13", ver.A)
}

func TestVerifyDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Verify(context.Background(), candidate())
	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "400", errorKind(err))
}

func TestVerifyDisabledWithoutURL(t *testing.T) {
	_, err := newTestClient("", 0).Verify(context.Background(), candidate())
	assert.ErrorIs(t, err, ErrDisabled)
}

type stubVerifier struct {
	ver   models.Verification
	err   error
	calls int
}

func (s *stubVerifier) Verify(context.Context, models.Verdict) (models.Verification, error) {
	s.calls++
	return s.ver, s.err
}

func TestSinkAttachesVerificationToCandidates(t *testing.T) {
	rank := 2
	stub := &stubVerifier{ver: models.Verification{A: "-13", B: "4", Status: "done", Rank: &rank}}
	sink := NewSink(stub, nil)

	v := candidate()
	require.NoError(t, sink.Write(context.Background(), models.Result{Verdict: &v}))
	require.NotNil(t, v.Verification)
	assert.Equal(t, 2, *v.Verification.Rank)

	low := candidate()
	low.Category = models.LowRankLike
	require.NoError(t, sink.Write(context.Background(), models.Result{Verdict: &low}))
	assert.Nil(t, low.Verification)
	assert.Equal(t, 1, stub.calls)
}

func TestSinkSwallowsVerifierErrors(t *testing.T) {
	sink := NewSink(&stubVerifier{err: errors.New("down")}, nil)
	v := candidate()
	assert.NoError(t, sink.Write(context.Background(), models.Result{Verdict: &v}))
	assert.Nil(t, v.Verification)
}
