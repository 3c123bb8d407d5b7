package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DriverS3    = "s3"
	DriverMinio = "minio"
)

const (
	CompressionNone    = "none"
	CompressionFastest = "fastest"
	CompressionBest    = "best"
)

const (
	AlgorithmBzip2 = "bzip2"
	AlgorithmXZ    = "xz"
	AlgorithmZstd  = "zstd"
	AlgorithmGzip  = "gzip"
)

const (
	SummaryText = "text"
	SummaryYAML = "yaml"
	SummaryJSON = "json"
)

type Config struct {
	Source        string        `mapstructure:"src" yaml:"src,omitempty"`
	Destination   string        `mapstructure:"dst" yaml:"dst,omitempty"`
	Cutoff        string        `mapstructure:"cutoff" yaml:"cutoff,omitempty"`
	OlderThan     string        `mapstructure:"older_than" yaml:"older_than,omitempty"`
	Buffer        string        `mapstructure:"buffer" yaml:"buffer,omitempty"`
	Compression   string        `mapstructure:"compression" yaml:"compression,omitempty"`
	Algorithm     string        `mapstructure:"algorithm" yaml:"algorithm,omitempty"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
	MaxParts      int           `mapstructure:"max_parts" yaml:"max_parts,omitempty"`
	Preflight     bool          `mapstructure:"preflight" yaml:"preflight,omitempty"`
	Driver        string        `mapstructure:"driver" yaml:"driver,omitempty"`
	SummaryFormat string        `mapstructure:"summary_format" yaml:"summary_format,omitempty"`
	LockDir       string        `mapstructure:"lock_dir" yaml:"lock_dir,omitempty"`
	LockTTL       time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl,omitempty"`
	Store         StoreConfig   `mapstructure:"store" yaml:"store,omitempty"`
	Retry         RetryConfig   `mapstructure:"retry" yaml:"retry,omitempty"`
	Log           LogConfig     `mapstructure:"log" yaml:"log,omitempty"`
	Metrics       MetricsConfig `mapstructure:"metrics" yaml:"metrics,omitempty"`
	Notify        NotifyConfig  `mapstructure:"notify" yaml:"notify,omitempty"`
}

// StoreConfig holds the connection settings for the object store. It is
// passed explicitly to the store constructors.
type StoreConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style,omitempty"`
	Insecure  bool   `mapstructure:"insecure" yaml:"insecure,omitempty"`
}

type RetryConfig struct {
	Attempts         int           `mapstructure:"attempts" yaml:"attempts,omitempty"`
	Delay            time.Duration `mapstructure:"delay" yaml:"delay,omitempty"`
	MaxDelay         time.Duration `mapstructure:"max_delay" yaml:"max_delay,omitempty"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway,omitempty"`
	Job         string `mapstructure:"job" yaml:"job,omitempty"`
}

type NotifyConfig struct {
	SQSURL      string `mapstructure:"sqs_url" yaml:"sqs_url,omitempty"`
	SQSRegion   string `mapstructure:"sqs_region" yaml:"sqs_region,omitempty"`
	SQSEndpoint string `mapstructure:"sqs_endpoint" yaml:"sqs_endpoint,omitempty"`
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
