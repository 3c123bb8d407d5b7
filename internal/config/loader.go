package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables read for store access.
const (
	EnvEndpoint  = "OBJECT_STORAGE_ENDPOINT"
	EnvRegion    = "AWS_REGION"
	EnvAccessKey = "AWS_ACCESS_KEY"
	EnvSecretKey = "AWS_SECRET_KEY"
	EnvPathStyle = "OBJECT_STORAGE_PATH_STYLE"
	EnvInsecure  = "OBJECT_STORAGE_INSECURE"
)

const envPrefix = "OBJARCHIVER"

const DefaultRegion = "us-east-1"

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("store.endpoint", EnvEndpoint)
	_ = v.BindEnv("store.region", EnvRegion)
	_ = v.BindEnv("store.access_key", EnvAccessKey)
	_ = v.BindEnv("store.secret_key", EnvSecretKey)
	_ = v.BindEnv("store.path_style", EnvPathStyle)
	_ = v.BindEnv("store.insecure", EnvInsecure)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("buffer", "100MiB")
	v.SetDefault("compression", CompressionNone)
	v.SetDefault("algorithm", AlgorithmXZ)
	v.SetDefault("concurrency", 1)
	v.SetDefault("max_parts", 10000)
	v.SetDefault("preflight", true)
	v.SetDefault("driver", DriverS3)
	v.SetDefault("summary_format", SummaryText)
	v.SetDefault("lock_ttl", 24*time.Hour)
	v.SetDefault("store.region", DefaultRegion)
	v.SetDefault("store.path_style", true)
	v.SetDefault("retry.attempts", 5)
	v.SetDefault("retry.delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)
	v.SetDefault("retry.breaker_threshold", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.job", "objarchiver")
}

// Load reads the optional config file into v. A missing explicit file is an
// error; no path at all means flags and environment only.
func Load(v *viper.Viper, path string) error {
	path = ResolveConfigPath(path)
	if path == "" {
		return nil
	}
	if err := checkConfigPermissions(path); err != nil {
		return err
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// LoadDotEnv exports the variables of a .env file that are not already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DotEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func checkConfigPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return err
	}
	mode := info.Mode().Perm()

	if mode&0004 != 0 {
		return fmt.Errorf("config file %s is world readable (mode %s); it may hold credentials", path, mode)
	}
	return nil
}
