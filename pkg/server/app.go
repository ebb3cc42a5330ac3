package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	domsvc "EventHorizon/internal/domain/service"
	"EventHorizon/internal/handler/api"
	"EventHorizon/internal/handler/ws"
	mid "EventHorizon/internal/middleware"
	"EventHorizon/internal/repository"
	"EventHorizon/internal/service/ratelimit"
	"EventHorizon/internal/services/verifier"
	"EventHorizon/internal/usecase"
	pkgch "EventHorizon/pkg/clickhouse"
	"EventHorizon/pkg/config"
	xhttp "EventHorizon/pkg/http"
	pkgkafka "EventHorizon/pkg/kafka"
	applogger "EventHorizon/pkg/logger"
	"EventHorizon/pkg/queue"
)

// Deps is everything the DI container builds. Optional infrastructure is
// nil when disabled in the config.
type Deps struct {
	Config     *config.Config
	Logger     *applogger.Logger
	Metrics    domrepo.Metrics
	Engine     domsvc.Engine
	Store      domrepo.VerdictStore
	Publisher  domrepo.VerdictPublisher
	Verifier   domsvc.Verifier
	Hub        *ws.Hub
	Queue      *queue.RedisQueue
	Scanner    *usecase.ScanUseCase
	Limiter    *ratelimit.Limiter
	Consumer   *pkgkafka.Consumer
	ClickHouse *pkgch.Client
	Redis      *redis.Client
	Producer   *pkgkafka.Producer
}

// App encapsulates the application lifecycle for every command.
type App struct {
	d         Deps
	cfg       *config.Config
	log       *applogger.Logger
	pipelines []*mid.SinkPipeline
	sinks     []domrepo.VerdictSink
	queueUp   bool

	// the Kafka sink owns the producer once it has been built
	producerClosed bool
	closed         bool
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = applogger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = domrepo.NopMetrics{}
	}
	if d.Producer != nil && d.Config.Logging.CollectTopic != "" {
		d.Logger.AttachAggregator(&applogger.AggregatorConfig{
			FlushInterval:  d.Config.Logging.CollectEvery,
			CountThreshold: d.Config.Logging.CollectMaxKeys,
			Topic:          d.Config.Logging.CollectTopic,
			Publisher:      d.Producer,
		})
	}
	return &App{d: d, cfg: d.Config, log: d.Logger}
}

func (a *App) Engine() domsvc.Engine { return a.d.Engine }

func (a *App) Logger() *applogger.Logger { return a.log }

// Probe classifies one curve without touching any sink.
func (a *App) Probe(ctx context.Context, aCoef, bCoef string) (models.Verdict, error) {
	curve, err := models.ParseCurve(aCoef, bCoef)
	if err != nil {
		return models.Verdict{}, err
	}
	return a.d.Engine.Classify(ctx, curve)
}

// RunBatch runs a scan or mining source through the engine. Titans go to
// the titan file and, when configured, every result to the CSV report.
func (a *App) RunBatch(ctx context.Context, src usecase.CurveSource) (usecase.Summary, error) {
	var sinks []domrepo.VerdictSink
	if p := a.cfg.Batch.TitanFile; p != "" {
		s, err := repository.NewTitanFileSink(p)
		if err != nil {
			return usecase.Summary{}, err
		}
		sinks = append(sinks, s)
	}
	if p := a.cfg.Batch.ReportCSV; p != "" {
		s, err := repository.NewCSVReportSink(p)
		if err != nil {
			closeAll(sinks)
			return usecase.Summary{}, err
		}
		sinks = append(sinks, s)
	}
	sinks = append(a.sharedSinks(ctx, a.cfg.ClickHouse.InsertChunk, false), sinks...)

	batch := usecase.NewBatchUseCase(a.d.Engine, a.cfg.Batch, a.log, a.d.Metrics, sinks...)
	sum, err := batch.Run(ctx, src)
	if cerr := batch.Close(); cerr != nil {
		a.log.Warn("batch sink close error", applogger.Error(cerr))
	}
	a.forgetSinks()
	return sum, err
}

// Serve runs the HTTP API, the Kafka request consumer and, with Redis, the
// queue workers until ctx is done or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	proc := usecase.NewRequestProcessor(a.d.Engine, a.log, a.d.Metrics, a.sharedSinks(ctx, 1, true)...)

	opts := []api.HandlerOption{
		api.WithScanner(a.d.Scanner),
		api.WithRateLimiter(a.d.Limiter),
	}
	if a.d.Hub != nil {
		opts = append(opts, api.WithWebsocket(a.d.Hub.Handle))
	}
	if a.d.Store != nil {
		opts = append(opts, api.WithVerdictStore(a.d.Store), api.WithHealthCheck("clickhouse", a.d.Store.Health))
	}
	if a.d.Redis != nil {
		rc := a.d.Redis
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error { return rc.Ping(ctx).Err() }))
	}
	handler := api.NewClassifyEchoHandler(a.log, proc, opts...)

	sc := a.cfg.Server
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	srv := xhttp.NewServer(a.log, []xhttp.Handler{handler},
		xhttp.WithPort(sc.Port),
		xhttp.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout),
		xhttp.WithAllowedOrigins(sc.AllowedOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)

	if a.d.Consumer != nil {
		a.d.Consumer.RegisterHandler(usecase.NewKafkaCurveHandler(a.cfg.Kafka.RequestTopic, proc))
		a.d.Consumer.WithHook(pkgkafka.RequestIDHook())
		if err := a.d.Consumer.Start(ctx); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RequestTopic))
	}
	if err := a.startQueue(ctx, proc); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-srv.Err():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	return errors.Join(runErr, a.Close(stopCtx))
}

// Work runs queue workers only.
func (a *App) Work(ctx context.Context) error {
	if a.d.Queue == nil {
		return fmt.Errorf("worker mode needs redis.enabled")
	}
	proc := usecase.NewRequestProcessor(a.d.Engine, a.log, a.d.Metrics, a.sharedSinks(ctx, a.cfg.ClickHouse.InsertChunk, false)...)
	if err := a.startQueue(ctx, proc); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Close(stopCtx)
}

func (a *App) startQueue(ctx context.Context, proc *usecase.RequestProcessor) error {
	if a.d.Queue == nil {
		return nil
	}
	a.d.Queue.RegisterJob(usecase.NewCurveJob(proc))
	if err := a.d.Queue.Start(ctx); err != nil {
		return fmt.Errorf("job queue: %w", err)
	}
	a.queueUp = true
	return nil
}

// sharedSinks builds the verifier, store, Kafka and websocket sinks. The
// verifier comes first so later sinks see its answer. Network sinks are
// wrapped in retrying pipelines.
func (a *App) sharedSinks(ctx context.Context, flushEvery int, withHub bool) []domrepo.VerdictSink {
	var sinks []domrepo.VerdictSink
	if a.d.Verifier != nil {
		sinks = append(sinks, verifier.NewSink(a.d.Verifier, a.log))
	}
	if a.d.Store != nil && a.cfg.Batch.StoreVerdict {
		sinks = append(sinks, a.pipe(ctx, repository.NewStoreSink(a.d.Store, flushEvery)))
	}
	if a.d.Publisher != nil && a.cfg.Batch.PublishVerdict {
		sinks = append(sinks, a.pipe(ctx, repository.NewPublisherSink(a.d.Publisher)))
	}
	if withHub && a.d.Hub != nil {
		sinks = append(sinks, a.d.Hub)
	}
	a.sinks = sinks
	return sinks
}

func (a *App) pipe(ctx context.Context, s domrepo.VerdictSink) domrepo.VerdictSink {
	p := mid.NewSinkPipeline(s, a.d.Metrics, mid.WithBufferSize(a.cfg.Batch.SinkBuffer))
	p.Start(ctx)
	a.pipelines = append(a.pipelines, p)
	return p
}

// Close stops consumers first so nothing new reaches the sinks, then
// flushes the sinks and closes the infrastructure clients.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.d.Consumer != nil {
		if err := a.d.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.queueUp {
		if err := a.d.Queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job queue: %w", err))
		}
		a.queueUp = false
	}

	a.log.DetachAggregator()

	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	a.forgetSinks()

	if a.d.Producer != nil && !a.producerClosed {
		if err := a.d.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka producer: %w", err))
		}
	}
	if a.d.ClickHouse != nil {
		if err := a.d.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if a.d.Redis != nil {
		if err := a.d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) forgetSinks() {
	for _, s := range a.sinks {
		if s.Name() == "kafka" {
			a.producerClosed = true
		}
	}
	a.sinks, a.pipelines = nil, nil
}

func closeAll(sinks []domrepo.VerdictSink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
