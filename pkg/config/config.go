package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"EventHorizon/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Engine     EngineConfig     `yaml:"engine"`
	Batch      BatchConfig      `yaml:"batch"`
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Cache      CacheConfig      `yaml:"cache"`
	Verifier   VerifierConfig   `yaml:"verifier"`
}

// EngineConfig is the calibration passed to every classification. It is
// read-only once loaded.
type EngineConfig struct {
	PrimeBound        uint64 `yaml:"prime_bound" default:"2741" validate:"gte=5,lte=2147483647"`
	SampleCount       int    `yaml:"sample_count" default:"400" validate:"gte=0"`
	SampleFloor       uint64 `yaml:"sample_floor" default:"2" validate:"gte=2"`
	SampleCountMin    int    `yaml:"sample_count_min" default:"300" validate:"gte=1"`
	AllowSmallChar    bool   `yaml:"allow_small_char"`
	EnumerationCutoff uint64 `yaml:"enumeration_cutoff" default:"4096" validate:"lte=1048576"`
	Workers           int    `yaml:"workers" validate:"gte=0"`

	ThetaThreshold float64 `yaml:"theta_threshold" default:"-25.0"`
	TauThreshold   int     `yaml:"tau_threshold" default:"65"`

	BSDProxy string         `yaml:"bsd_proxy" default:"trace" validate:"oneof=trace density"`
	Baseline BaselineConfig `yaml:"baseline"`
	Collatz  CollatzConfig  `yaml:"collatz"`
}

type BaselineConfig struct {
	Scale  float64          `yaml:"scale" default:"1.0"`
	Offset float64          `yaml:"offset"`
	Table  []BaselineBucket `yaml:"table" validate:"dive"`
}

// BaselineBucket gives the expected prime-or-semiprime density for
// integers up to UpTo.
type BaselineBucket struct {
	UpTo    uint64  `yaml:"up_to" validate:"gte=1"`
	Density float64 `yaml:"density" validate:"gte=0,lte=1"`
}

type CollatzConfig struct {
	Mode    string `yaml:"mode" default:"glide" validate:"oneof=glide total"`
	StepCap int    `yaml:"step_cap" default:"1000" validate:"gte=1"`
	Offset  int64  `yaml:"offset"`
}

type BatchConfig struct {
	Workers        int           `yaml:"workers" validate:"gte=0"`
	CurveTimeout   time.Duration `yaml:"curve_timeout" default:"30s"`
	TitanTheta     float64       `yaml:"titan_theta" default:"-28.0"`
	TitanTau       int           `yaml:"titan_tau" default:"80"`
	LowRankTheta   float64       `yaml:"low_rank_theta" default:"-10.0"`
	MineRange      string        `yaml:"mine_range" default:"1000000000000"`
	Seed           int64         `yaml:"seed"`
	TitanFile      string        `yaml:"titan_file" default:"titans_found.txt"`
	ReportCSV      string        `yaml:"report_csv"`
	SinkBuffer     int           `yaml:"sink_buffer" default:"256" validate:"gte=1"`
	ProgressEvery  int           `yaml:"progress_every" default:"100" validate:"gte=1"`
	PublishVerdict bool          `yaml:"publish_verdicts"`
	StoreVerdict   bool          `yaml:"store_verdicts"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format         string        `yaml:"format" default:"console" validate:"oneof=json console"`
	Output         string        `yaml:"output" default:"stderr"`
	TimeFormat     string        `yaml:"time_format"`
	CollectTopic   string        `yaml:"collect_topic"`
	CollectEvery   time.Duration `yaml:"collect_every" default:"30s"`
	CollectMaxKeys int           `yaml:"collect_max_keys" default:"100"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	RateCapacity    float64       `yaml:"rate_capacity" default:"20"`
	RatePerSecond   float64       `yaml:"rate_per_second" default:"5"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	VerdictTopic string   `yaml:"verdict_topic" default:"horizon.verdicts"`
	RequestTopic string   `yaml:"request_topic" default:"horizon.curves"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"horizon-classifier"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"horizon.curves.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"horizon"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	InsertChunk      int           `yaml:"insert_chunk" default:"2000" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"horizon"`
}

type QueueConfig struct {
	Name         string        `yaml:"name" default:"classify"`
	Workers      int           `yaml:"workers" default:"4"`
	MaxRetries   int           `yaml:"max_retries" default:"3"`
	RetryDelay   time.Duration `yaml:"retry_delay" default:"5s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
}

type CacheConfig struct {
	Enabled     bool          `yaml:"enabled" default:"true"`
	MemoryItems int           `yaml:"memory_items" default:"10000"`
	TTL         time.Duration `yaml:"ttl" default:"24h"`
}

type VerifierConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
	Retries int           `yaml:"retries" default:"2"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file over the defaults, so
// keys absent from the document keep their default. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, c.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with HORIZON_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("HORIZON_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("HORIZON_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("HORIZON_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("HORIZON_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("HORIZON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HORIZON_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HORIZON_PORT: %w", err)
		}
		c.Server.Port = port
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.SampleFloor > c.Engine.PrimeBound {
		return fmt.Errorf("engine.sample_floor (%d) exceeds engine.prime_bound (%d)", c.Engine.SampleFloor, c.Engine.PrimeBound)
	}
	if c.Engine.SampleCount > 0 && c.Engine.SampleCount < c.Engine.SampleCountMin {
		return fmt.Errorf("engine.sample_count (%d) is below engine.sample_count_min (%d)", c.Engine.SampleCount, c.Engine.SampleCountMin)
	}
	if c.Engine.Baseline.Scale == 0 {
		return fmt.Errorf("engine.baseline.scale must be non-zero")
	}
	for i := 1; i < len(c.Engine.Baseline.Table); i++ {
		if c.Engine.Baseline.Table[i].UpTo <= c.Engine.Baseline.Table[i-1].UpTo {
			return fmt.Errorf("engine.baseline.table must be sorted by up_to")
		}
	}
	if _, ok := ParseRange(c.Batch.MineRange); !ok {
		return fmt.Errorf("batch.mine_range %q is not a positive integer", c.Batch.MineRange)
	}
	if c.Verifier.Enabled && c.Verifier.URL == "" {
		return fmt.Errorf("verifier.url is required when the verifier is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// Fingerprint identifies the engine calibration a verdict was produced
// under. The baseline table enters by content.
func (e EngineConfig) Fingerprint() string {
	return fmt.Sprintf("b%d-c%d-f%d-m%d-s%t-%s-%g-%g-%s-%s-%d-%d-t%g-%d",
		e.PrimeBound, e.SampleCount, e.SampleFloor, e.SampleCountMin, e.AllowSmallChar,
		e.BSDProxy, e.Baseline.Scale, e.Baseline.Offset, e.Baseline.digest(),
		e.Collatz.Mode, e.Collatz.StepCap, e.Collatz.Offset,
		e.ThetaThreshold, e.TauThreshold)
}

func (b BaselineConfig) digest() string {
	if len(b.Table) == 0 {
		return "0"
	}
	h := xxhash.New()
	for _, bk := range b.Table {
		fmt.Fprintf(h, "%d:%g;", bk.UpTo, bk.Density)
	}
	return fmt.Sprintf("%d.%016x", len(b.Table), h.Sum64())
}

// Fingerprint extends the engine fingerprint with the tier thresholds,
// which also shape a verdict.
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("%s-tier%g-%d-%g",
		c.Engine.Fingerprint(), c.Batch.TitanTheta, c.Batch.TitanTau, c.Batch.LowRankTheta)
}

// ParseRange parses a positive decimal bound such as batch.mine_range.
func ParseRange(s string) (*big.Int, bool) {
	n, err := util.ParseBig(s)
	if err != nil || n.Sign() <= 0 {
		return nil, false
	}
	return n, true
}
