package verifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"EventHorizon/internal/domain/models"
	"EventHorizon/internal/service/metrics"
	"EventHorizon/pkg/config"
	xhttp "EventHorizon/pkg/http"
	applogger "EventHorizon/pkg/logger"
)

const verifyPath = "/verify"

var ErrDisabled = errors.New("verifier disabled")

type verifyRequest struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Theta float64 `json:"theta_eh"`
	Tau   int     `json:"tau_max"`
}

// Client posts candidates to the external exact-rank service.
type Client struct {
	baseURL  string
	attempts int
	backoff  time.Duration
	client   *xhttp.Client
	log      *applogger.Logger
}

func NewClient(cfg config.VerifierConfig, log *applogger.Logger) *Client {
	metrics.Register()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &Client{
		baseURL:  cfg.URL,
		attempts: cfg.Retries + 1,
		backoff:  200 * time.Millisecond,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("Content-Type", "application/json")),
		log:      log.With(applogger.String("component", "verifier")),
	}
}

func (c *Client) Verify(ctx context.Context, v models.Verdict) (models.Verification, error) {
	if c.baseURL == "" {
		return models.Verification{}, ErrDisabled
	}
	start := time.Now()
	req := verifyRequest{A: v.A, B: v.B, Theta: v.Signals.Theta, Tau: v.Signals.Tau}

	var out models.Verification
	err := c.postWithRetry(ctx, verifyPath, req, &out)
	if err != nil {
		metrics.VerifierLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.VerifierErrors.WithLabelValues(errorKind(err)).Inc()
		return models.Verification{}, err
	}
	metrics.VerifierLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	if out.Rank != nil {
		metrics.VerifierRanks.WithLabelValues(strconv.Itoa(*out.Rank)).Inc()
	}
	if out.A == "" {
		out.A, out.B = v.A, v.B
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, dest interface{}) error {
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + path,
		Body:   payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postWithRetry retries only server-side and throttling failures.
func (c *Client) postWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	var err error
	for i := 1; i <= c.attempts; i++ {
		err = c.post(ctx, path, payload, dest)
		if err == nil || !xhttp.IsTemporary(err) || i == c.attempts {
			return err
		}
		c.log.Debug("verifier retry", applogger.Int("attempt", i), applogger.Error(err))
		select {
		case <-time.After(time.Duration(i) * c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func errorKind(err error) string {
	var se *xhttp.StatusError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.Code)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "transport"
	}
}
