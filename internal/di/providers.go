package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	domrepo "EventHorizon/internal/domain/repository"
	domsvc "EventHorizon/internal/domain/service"
	"EventHorizon/internal/handler/ws"
	internalrepo "EventHorizon/internal/repository"
	"EventHorizon/internal/service/ratelimit"
	"EventHorizon/internal/services/verifier"
	"EventHorizon/internal/usecase"
	"EventHorizon/pkg/cache"
	pkgch "EventHorizon/pkg/clickhouse"
	"EventHorizon/pkg/config"
	pkgkafka "EventHorizon/pkg/kafka"
	applogger "EventHorizon/pkg/logger"
	"EventHorizon/pkg/metrics"
	"EventHorizon/pkg/queue"
	"EventHorizon/pkg/server"
)

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the Prometheus recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideClickHouseClient connects and creates the database. Nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	c := cfg.ClickHouse
	if !c.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(c.Host, c.Port),
		pkgch.WithDatabase(c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout),
		pkgch.WithMaxExecutionTime(c.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{"CREATE DATABASE IF NOT EXISTS " + c.Database}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse connected", applogger.String("host", c.Host), applogger.String("db", c.Database))
	return client, nil
}

// ProvideVerdictStore creates the curve_verdicts table.
func ProvideVerdictStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (domrepo.VerdictStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewCHVerdictStore(client, cfg.ClickHouse.Database+".curve_verdicts", cfg.ClickHouse.InsertChunk, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("verdict store: %w", err)
	}
	return store, nil
}

// ProvideRedisClient is shared by the verdict cache and the job queue.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideCacheService layers an in-process LRU over Redis when Redis is
// available.
func ProvideCacheService(cfg *config.Config, rc *redis.Client) cache.Service {
	if !cfg.Cache.Enabled {
		return nil
	}
	mem := cache.NewMemoryCache(
		cache.WithMemoryMaxItems(cfg.Cache.MemoryItems),
		cache.WithMemoryTTL(cfg.Cache.TTL),
	)
	if rc == nil {
		return mem
	}
	return cache.NewLayeredCache(mem, cache.NewRedisCache(rc, cfg.Redis.Prefix))
}

func ProvideVerdictCache(svc cache.Service, cfg *config.Config, l *applogger.Logger) domrepo.VerdictCache {
	if svc == nil {
		return nil
	}
	return internalrepo.NewVerdictCache(svc, cfg.Cache.TTL, l)
}

// ProvideKafkaProducer creates a Kafka producer. Nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideVerdictPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.VerdictPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.VerdictTopic)
}

// ProvideKafkaConsumer creates the curve request consumer.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideClassifyUseCase(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics, vc domrepo.VerdictCache) (*usecase.ClassifyUseCase, error) {
	var opts []usecase.ClassifyOption
	if vc != nil {
		opts = append(opts, usecase.WithVerdictCache(vc))
	}
	return usecase.NewClassifyUseCase(cfg, l, m, opts...)
}

func ProvideEngine(uc *usecase.ClassifyUseCase) domsvc.Engine { return uc }

// ProvideVerifier returns nil unless the verifier is enabled.
func ProvideVerifier(cfg *config.Config, l *applogger.Logger) domsvc.Verifier {
	if !cfg.Verifier.Enabled {
		return nil
	}
	return verifier.NewClient(cfg.Verifier, l)
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(cfg.Server.AllowedOrigins, l)
}

// ProvideJobQueue needs Redis; it runs as producer and consumer so the
// same process can enqueue scans and work them.
func ProvideJobQueue(cfg *config.Config, rc *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := cfg.Queue
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:      q.Workers,
		RetryLimit:   q.MaxRetries,
		RetryDelay:   q.RetryDelay,
		PollInterval: q.PollInterval,
	}, rc, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:"+q.Name))
}

func ProvideScanUseCase(q *queue.RedisQueue, l *applogger.Logger) *usecase.ScanUseCase {
	if q == nil {
		return nil
	}
	return usecase.NewScanUseCase(internalrepo.NewCurveQueue(q), l)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RatePerSecond <= 0 {
		return nil
	}
	return ratelimit.New(int(cfg.Server.RateCapacity), cfg.Server.RatePerSecond)
}

func ProvideApp(d server.Deps) *server.App {
	return server.New(d)
}
