package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/logger"
	"ObjArchiver/internal/miniostore"
	"ObjArchiver/internal/objstore"
	"ObjArchiver/internal/s3"
)

// flagBinding maps a command flag to its configuration key.
type flagBinding struct {
	flag string
	key  string
}

// loadConfig merges defaults, the config file, the environment and the
// flags of cmd, in increasing precedence.
func loadConfig(cmd *cobra.Command, bindings ...flagBinding) (*viper.Viper, *config.Config, error) {
	if err := config.LoadDotEnv(envFilePath); err != nil {
		return nil, nil, err
	}
	v := config.New()
	if err := config.Load(v, configPath); err != nil {
		return nil, nil, err
	}
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return nil, nil, fmt.Errorf("bind flag --%s: %w", b.flag, err)
		}
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	if logFormat != "" {
		v.Set("log.format", logFormat)
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	return logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func newRetrier(cfg *config.Config, log *zap.SugaredLogger, opts ...objstore.RetrierOption) *objstore.Retrier {
	threshold := cfg.Retry.BreakerThreshold
	if threshold < 0 {
		threshold = 0
	}
	return objstore.NewRetrier(objstore.RetryPolicy{
		MaxAttempts:      cfg.Retry.Attempts,
		BaseDelay:        cfg.Retry.Delay,
		MaxDelay:         cfg.Retry.MaxDelay,
		BreakerThreshold: uint32(threshold),
		HalfOpenRequests: uint32(max(cfg.Concurrency, 1)),
	}, log, opts...)
}

// newStore builds the store client selected by the driver setting.
func newStore(ctx context.Context, cfg *config.Config) (objstore.Store, error) {
	sc := cfg.Store
	switch cfg.Driver {
	case config.DriverMinio:
		return miniostore.New(miniostore.Options{
			Endpoint:           sc.Endpoint,
			Region:             sc.Region,
			AccessKey:          sc.AccessKey,
			SecretKey:          sc.SecretKey,
			PathStyle:          sc.PathStyle,
			InsecureSkipVerify: sc.Insecure,
		})
	case config.DriverS3, "":
		return s3.New(ctx, s3.Options{
			Endpoint:           sc.Endpoint,
			Region:             sc.Region,
			AccessKey:          sc.AccessKey,
			SecretKey:          sc.SecretKey,
			PathStyle:          sc.PathStyle,
			InsecureSkipVerify: sc.Insecure,
		})
	default:
		return nil, fmt.Errorf("%w: got %q", config.ErrInvalidDriver, cfg.Driver)
	}
}
