package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	"EventHorizon/internal/domain/service"
	pkgkafka "EventHorizon/pkg/kafka"
	"EventHorizon/pkg/logger"
	"EventHorizon/pkg/queue"
)

// RequestProcessor classifies single curve requests arriving from Kafka or
// the job queue and hands the result to the sinks.
type RequestProcessor struct {
	engine  service.Engine
	sinks   []domrepo.VerdictSink
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewRequestProcessor(engine service.Engine, log *logger.Logger, metrics domrepo.Metrics, sinks ...domrepo.VerdictSink) *RequestProcessor {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &RequestProcessor{
		engine:  engine,
		sinks:   sinks,
		metrics: metrics,
		log:     log.With(logger.String("component", "requests")),
	}
}

// Process classifies req. A sink failure is logged but does not fail the
// request; the verdict was still computed.
func (p *RequestProcessor) Process(ctx context.Context, req models.CurveRequest) (models.Result, error) {
	start := time.Now()
	r := models.Result{A: req.A, B: req.B}

	curve, err := models.ParseCurve(req.A, req.B)
	if err != nil {
		p.metrics.RecordError(models.ErrorKind(err))
		r.Err = err
		return r, err
	}
	r.Curve = curve

	v, err := p.engine.Classify(ctx, curve)
	r.Duration = time.Since(start)
	if err != nil {
		r.Err = err
		return r, err
	}
	r.Verdict = &v

	for _, s := range p.sinks {
		werr := s.Write(ctx, r)
		p.metrics.RecordSinkWrite(s.Name(), werr == nil)
		if werr != nil {
			p.log.Warn("sink write failed",
				logger.String("sink", s.Name()),
				logger.String("request_id", req.RequestID),
				logger.Error(werr),
			)
		}
	}
	p.log.Info("curve request classified",
		logger.String("request_id", req.RequestID),
		logger.String("curve", curve.Key()),
		logger.String("category", string(v.Category)),
		logger.Float64("theta", v.Signals.Theta),
		logger.Int("tau", v.Signals.Tau),
		logger.Duration("took", r.Duration),
	)
	return r, nil
}

// unretryable reports errors that a second attempt cannot fix.
func unretryable(err error) bool {
	return errors.Is(err, models.ErrInvalidCurve) ||
		errors.Is(err, models.ErrInsufficientPrimes) ||
		errors.Is(err, models.ErrReductionInvariant)
}

func decodeRequest(data []byte) (models.CurveRequest, error) {
	var req models.CurveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode curve request: %w", err)
	}
	if req.A == "" || req.B == "" {
		return req, fmt.Errorf("decode curve request: a and b are required")
	}
	return req, nil
}

// KafkaCurveHandler consumes {a, b} requests from the request topic.
type KafkaCurveHandler struct {
	topic string
	proc  *RequestProcessor
}

func NewKafkaCurveHandler(topic string, proc *RequestProcessor) *KafkaCurveHandler {
	return &KafkaCurveHandler{topic: topic, proc: proc}
}

func (h *KafkaCurveHandler) Topic() string { return h.topic }

func (h *KafkaCurveHandler) Handle(ctx context.Context, data []byte) error {
	req, err := decodeRequest(data)
	if err != nil {
		h.proc.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(err)
	}
	if req.RequestID == "" {
		req.RequestID = pkgkafka.RequestID(ctx)
	}
	if _, err := h.proc.Process(ctx, req); err != nil {
		if unretryable(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCurveHandler)(nil)

// CurveJob is the queue worker for classify_curve jobs.
type CurveJob struct {
	proc *RequestProcessor
}

func NewCurveJob(proc *RequestProcessor) *CurveJob {
	return &CurveJob{proc: proc}
}

func (j *CurveJob) Name() string { return "curve-classifier" }
func (j *CurveJob) Type() string { return models.JobClassifyCurve }

func (j *CurveJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := decodeRequest(payload)
	if err != nil {
		return queue.Permanent(err)
	}
	if _, err := j.proc.Process(ctx, req); err != nil {
		if unretryable(err) {
			return queue.Permanent(err)
		}
		return err
	}
	return nil
}

var _ queue.Job = (*CurveJob)(nil)
