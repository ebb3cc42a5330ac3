package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/internal/service/ratelimit"
	"EventHorizon/internal/usecase"
	xhttp "EventHorizon/pkg/http"
	xlogger "EventHorizon/pkg/logger"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// ClassifyEchoHandler serves the classification API. The store, scanner
// and websocket handler are optional; missing ones answer 503.
type ClassifyEchoHandler struct {
	logger  *xlogger.Logger
	proc    *usecase.RequestProcessor
	store   domrepo.VerdictStore
	scan    *usecase.ScanUseCase
	ws      echo.HandlerFunc
	limiter *ratelimit.Limiter
	checks  map[string]HealthCheck
}

type HandlerOption func(*ClassifyEchoHandler)

func WithVerdictStore(s domrepo.VerdictStore) HandlerOption {
	return func(h *ClassifyEchoHandler) { h.store = s }
}

func WithScanner(s *usecase.ScanUseCase) HandlerOption {
	return func(h *ClassifyEchoHandler) { h.scan = s }
}

func WithWebsocket(fn echo.HandlerFunc) HandlerOption {
	return func(h *ClassifyEchoHandler) { h.ws = fn }
}

func WithRateLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *ClassifyEchoHandler) { h.limiter = l }
}

func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *ClassifyEchoHandler) { h.checks[name] = check }
}

func NewClassifyEchoHandler(logger *xlogger.Logger, proc *usecase.RequestProcessor, opts ...HandlerOption) *ClassifyEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &ClassifyEchoHandler{logger: logger, proc: proc, checks: map[string]HealthCheck{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ClassifyEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	if h.ws != nil {
		e.GET("/ws/verdicts", h.ws)
	}

	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(ratelimit.Middleware(h.limiter, h.logger))
	}
	g.POST("/classify", h.Classify)
	g.GET("/classify", h.Classify)
	g.GET("/candidates", h.Candidates)
	g.POST("/scan", h.Scan)
}

func (h *ClassifyEchoHandler) Classify(c echo.Context) error {
	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.proc.Process(c.Request().Context(), models.CurveRequest{A: req.A, B: req.B})
	if err != nil {
		return xhttp.AppErrorResponse(c, h.mapError("classify", err))
	}
	return xhttp.SuccessResponse(c, res.Verdict)
}

func (h *ClassifyEchoHandler) Candidates(c echo.Context) error {
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("verdict store is not configured"))
	}
	req := &models.CandidatesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.store.TopCandidates(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("candidates query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("verdict store query failed").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ClassifyEchoHandler) Scan(c echo.Context) error {
	if h.scan == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("job queue is not configured"))
	}
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	acc, err := h.scan.Enqueue(c.Request().Context(), *req)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.mapError("scan", err))
	}
	return xhttp.AcceptedResponse(c, acc)
}

func (h *ClassifyEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	return c.JSON(code, map[string]interface{}{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}

func (h *ClassifyEchoHandler) mapError(op string, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidCurve):
		return xhttp.NewAppError("ERR_INVALID_CURVE", "", err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrInsufficientPrimes):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_PRIMES", err.Error())
	case errors.Is(err, usecase.ErrScanTooLarge):
		return xhttp.UnprocessableError("ERR_SCAN_TOO_LARGE", err.Error())
	case errors.Is(err, usecase.ErrBadGrid):
		return xhttp.BadRequestErrorf("%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableErrorf("%s timed out", op)
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return err
}
