package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"RangeBreak/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Bar sources.
const (
	SourceFile       = "file"
	SourceClickHouse = "clickhouse"
	SourceHTTP       = "http"
)

// Run sinks.
const (
	SinkFile       = "file"
	SinkClickHouse = "clickhouse"
	SinkPostgres   = "postgres"
	SinkKafka      = "kafka"
)

// BandConfig is one compression band [min, max). A zero max means unbounded.
type BandConfig struct {
	Min float64 `yaml:"min" validate:"gte=0"`
	Max float64 `yaml:"max" validate:"gte=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
		Digest struct {
			Enabled  bool          `yaml:"enabled"`
			Interval time.Duration `yaml:"interval" default:"30s"`
			Threshold int          `yaml:"threshold" default:"100"`
		} `yaml:"digest"`
	} `yaml:"log"`

	Backtest struct {
		From           string       `yaml:"from" validate:"omitempty,datetime=2006-01-02"`
		To             string       `yaml:"to" validate:"omitempty,datetime=2006-01-02"`
		CapitalUnit    float64      `yaml:"capital_unit" default:"1000000" validate:"gt=0"`
		Horizons       []int        `yaml:"horizons" default:"[5,10,20]" validate:"min=1,dive,gt=0"`
		StopFractions  []float64    `yaml:"stop_fractions" default:"[0.38,0.5,0.62]" validate:"min=1,dive,gt=0,lt=1"`
		BreakoutBars   int          `yaml:"breakout_bars" default:"20" validate:"gt=1"`
		RangeBars      int          `yaml:"range_bars" default:"60" validate:"gt=0"`
		ATRBars        int          `yaml:"atr_bars" default:"5" validate:"gt=0"`
		Workers        int          `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		IncludeControl bool         `yaml:"include_control"`
		Alpha          float64      `yaml:"alpha" default:"0.05" validate:"gt=0,lt=1"`
		Bands          []BandConfig `yaml:"bands" validate:"dive"`
	} `yaml:"backtest"`

	Regime struct {
		Split     string `yaml:"split" default:"tercile" validate:"oneof=tercile median"`
		Benchmark string `yaml:"benchmark" default:"TOPIX" validate:"required"`
	} `yaml:"regime"`

	Roster struct {
		Path string `yaml:"path" default:"config/roster.yaml" validate:"required"`
	} `yaml:"roster"`

	Source struct {
		Type string `yaml:"type" default:"file" validate:"oneof=file clickhouse http"`
		Dir  string `yaml:"dir" default:"data/bars"`
		HTTP struct {
			BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
			Token      string        `yaml:"token"`
			Timeout    time.Duration `yaml:"timeout" default:"10s"`
			RPS        float64       `yaml:"rps" default:"5"`
			Burst      int           `yaml:"burst" default:"5"`
			MaxRetries uint64        `yaml:"max_retries" default:"3"`
		} `yaml:"http"`
		Cache struct {
			Enabled    bool          `yaml:"enabled"`
			Redis      bool          `yaml:"redis"`
			TTL        time.Duration `yaml:"ttl" default:"1h"`
			MemorySize int           `yaml:"memory_size" default:"512"`
		} `yaml:"cache"`
	} `yaml:"source"`

	Sinks []string `yaml:"sinks" default:"[\"file\"]" validate:"dive,oneof=file clickhouse postgres kafka"`

	Output struct {
		Dir string `yaml:"dir" default:"output"`
	} `yaml:"output"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RunOnStart      bool          `yaml:"run_on_start" default:"true"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"rangebreak"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
		RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
		MaxAttempts  int      `yaml:"max_attempts" default:"3"`
		Topics       struct {
			Events  string `yaml:"events" default:"rangebreak.events"`
			Reports string `yaml:"reports" default:"rangebreak.reports"`
			Logs    string `yaml:"logs" default:"rangebreak.logs"`
		} `yaml:"topics"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"rangebreak"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
	} `yaml:"clickhouse"`

	Postgres struct {
		DSN     string        `yaml:"dsn"`
		MaxOpen int           `yaml:"max_open" default:"10"`
		MaxIdle int           `yaml:"max_idle" default:"5"`
		Timeout time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"postgres"`
}

var validate = validator.New()

// Load reads a YAML configuration file over the struct defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path == "" {
		return &c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies
// environment overrides before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BARS_SOURCE"); v != "" {
		c.Source.Type = v
	}
	if v := os.Getenv("BARS_DIR"); v != "" {
		c.Source.Dir = v
	}
	if v := os.Getenv("BARS_API_URL"); v != "" {
		c.Source.HTTP.BaseURL = v
	}
	if v := os.Getenv("BARS_API_TOKEN"); v != "" {
		c.Source.HTTP.Token = v
	}
	if v := os.Getenv("BENCHMARK"); v != "" {
		c.Regime.Benchmark = v
	}
	if v := os.Getenv("REGIME_SPLIT"); v != "" {
		c.Regime.Split = v
	}
	if v := os.Getenv("CAPITAL_UNIT"); v != "" {
		c.Backtest.CapitalUnit = util.ParseFloatDefault(v, c.Backtest.CapitalUnit)
	}
	if v := os.Getenv("SINKS"); v != "" {
		c.Sinks = util.SplitCSV(v)
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
}

// Validate runs the struct tags, then the checks that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Backtest.From != "" && c.Backtest.To != "" && c.Backtest.From > c.Backtest.To {
		return fmt.Errorf("backtest.from %s is after backtest.to %s", c.Backtest.From, c.Backtest.To)
	}
	switch c.Source.Type {
	case SourceClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source.type %q", c.Source.Type)
		}
	case SourceHTTP:
		if c.Source.HTTP.BaseURL == "" {
			return fmt.Errorf("source.http.base_url is required for source.type %q", c.Source.Type)
		}
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkClickHouse:
			if c.ClickHouse.Host == "" {
				return fmt.Errorf("clickhouse.host is required for the clickhouse sink")
			}
		case SinkPostgres:
			if c.Postgres.DSN == "" {
				return fmt.Errorf("postgres.dsn is required for the postgres sink")
			}
		case SinkKafka:
			if len(c.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka.brokers cannot be empty for the kafka sink")
			}
		}
	}
	if c.Log.Digest.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when log.digest is enabled")
	}
	return nil
}

// HasSink reports whether name is among the configured sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// UsesClickHouse reports whether any component needs a ClickHouse client.
func (c *Config) UsesClickHouse() bool {
	return c.Source.Type == SourceClickHouse || c.HasSink(SinkClickHouse)
}

// UsesKafka reports whether any component needs a Kafka producer.
func (c *Config) UsesKafka() bool {
	return c.HasSink(SinkKafka) || c.Log.Digest.Enabled
}
