package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/engine/archive"
	"ObjArchiver/internal/lock"
	"ObjArchiver/internal/notifier"
	"ObjArchiver/internal/objstore"
)

var errInterrupted = errors.New("archive interrupted by signal, no object was written")

const (
	notifyTimeout = 15 * time.Second
	pushTimeout   = 15 * time.Second
)

var archiveBindings = []flagBinding{
	{"src", "src"},
	{"dst", "dst"},
	{"cutoff", "cutoff"},
	{"older-than", "older_than"},
	{"buffer", "buffer"},
	{"compression", "compression"},
	{"algorithm", "algorithm"},
	{"concurrency", "concurrency"},
	{"max-parts", "max_parts"},
	{"preflight", "preflight"},
	{"driver", "driver"},
	{"summary-format", "summary_format"},
	{"lock-dir", "lock_dir"},
	{"endpoint", "store.endpoint"},
	{"region", "store.region"},
	{"pushgateway", "metrics.pushgateway"},
	{"sqs-url", "notify.sqs_url"},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	f := archiveCmd.Flags()
	f.String("src", "", "Source location, s3://bucket/prefix")
	f.String("dst", "", "Destination location, s3://bucket/prefix")
	f.String("cutoff", "", "Archive only objects modified strictly before this ISO-8601 timestamp")
	f.String("older-than", "", "Archive only objects older than this age, e.g. 30d, 2w or 36h")
	f.String("buffer", "100MiB", "Upload part size")
	f.String("compression", config.CompressionNone, "Compression: none, fastest or best")
	f.String("algorithm", config.AlgorithmXZ, "Compression algorithm: bzip2, xz, zstd or gzip")
	f.Int("concurrency", 1, "Parts uploaded in parallel; each holds one buffer in memory")
	f.Int("max-parts", config.MaxPartsLimit, "Maximum number of upload parts")
	f.Bool("preflight", true, "List the source once first and fail early if the archive cannot fit")
	f.String("driver", config.DriverS3, "Store client: s3 or minio")
	f.String("summary-format", config.SummaryText, "Summary output: text, yaml or json")
	f.String("lock-dir", "", "Directory for a per-destination run lock; empty disables locking")
	f.String("endpoint", "", "Object store endpoint (default from "+config.EnvEndpoint+")")
	f.String("region", "", "Object store region (default from "+config.EnvRegion+")")
	f.String("pushgateway", "", "Prometheus Pushgateway URL to push run metrics to")
	f.String("sqs-url", "", "SQS queue URL to announce the result on")
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive the objects below a source prefix into one object",
	Long: "Archive lists the source prefix, frames every qualifying object into one TAR stream, " +
		"optionally compresses it and uploads it to the destination as a single multipart object. " +
		"The destination object only appears when the whole run succeeds.",
	Example: "  objarchiver archive --src s3://logs/app --dst s3://cold/app --cutoff 2025-01-01T00:00:00Z --compression fastest",
	RunE:    runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, archiveBindings...)
	if err != nil {
		return err
	}
	// An explicit cutoff replaces an age coming from the config file.
	if cmd.Flags().Changed("cutoff") && !cmd.Flags().Changed("older-than") {
		cfg.OlderThan = ""
	}
	res, err := config.Validate(cfg)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if _, err := maxprocs.Set(maxprocs.Logger(log.Debugf)); err != nil {
		log.Warnw("failed to set GOMAXPROCS", "error", err)
	}

	compression, err := archive.ParseCompression(cfg.Compression, cfg.Algorithm)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create store client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := archive.NewMetrics(registry)
	retrier := newRetrier(cfg, log, objstore.WithRetryHook(metrics.RetryHook))

	notif, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}

	if cfg.LockDir != "" {
		locker, err := lock.NewLocal(lock.LocalOptions{
			Dir:  cfg.LockDir,
			Name: res.Destination.String(),
			TTL:  cfg.LockTTL,
		})
		if err != nil {
			return err
		}
		if err := locker.Acquire(ctx); err != nil {
			return err
		}
		defer func() {
			if err := locker.Release(context.Background()); err != nil {
				log.Warnw("failed to release run lock", "path", locker.Path(), "error", err)
			}
		}()
		log.Debugw("run lock acquired", "path", locker.Path())
	}

	runID := uuid.NewString()
	opts := archive.Options{
		SourceBucket: res.Source.Bucket,
		SourcePrefix: res.Source.ListPrefix(),
		DestBucket:   res.Destination.Bucket,
		DestPrefix:   res.Destination.Prefix,
		Cutoff:       res.Cutoff,
		HasCutoff:    res.HasCutoff,
		PartSize:     res.BufferBytes,
		MaxParts:     cfg.MaxParts,
		Concurrency:  cfg.Concurrency,
		Compression:  compression,
		Preflight:    cfg.Preflight,
		RunID:        runID,
		StartedAt:    time.Now(),
		SourceLabel:  res.Source.String(),
	}
	archiver := archive.New(store, retrier, log, metrics)

	var (
		g       run.Group
		summary *archive.Summary
	)
	addSignalActor(ctx, &g, cancel, log)
	g.Add(func() error {
		var runErr error
		summary, runErr = archiver.Run(ctx, opts)
		return runErr
	}, func(error) {
		cancel()
	})
	runErr := g.Run()

	pushMetrics(cfg, registry, log)
	announce(notif, summary, runID, opts.SourceLabel, runErr, log)

	if runErr != nil {
		return runErr
	}
	return summary.Write(cmd.OutOrStdout(), cfg.SummaryFormat)
}

func addSignalActor(ctx context.Context, g *run.Group, cancel context.CancelFunc, log *zap.SugaredLogger) {
	signalsCh := make(chan os.Signal, 2)
	signal.Notify(signalsCh, syscall.SIGINT, syscall.SIGTERM)

	g.Add(func() error {
		select {
		case s := <-signalsCh:
			log.Infow("received signal, aborting the run", "signal", s)
			return errInterrupted
		case <-ctx.Done():
			return nil
		}
	}, func(error) {
		cancel()
		signal.Stop(signalsCh)
	})
}

func newNotifier(cfg *config.Config, log *zap.SugaredLogger) (notifier.Notifier, error) {
	if cfg.Notify.SQSURL == "" {
		return notifier.Nop{}, nil
	}
	region := cfg.Notify.SQSRegion
	if region == "" {
		region = cfg.Store.Region
	}
	return notifier.NewSQS(log, notifier.SQSConfig{
		URL:      cfg.Notify.SQSURL,
		Region:   region,
		Endpoint: cfg.Notify.SQSEndpoint,
	})
}

func announce(n notifier.Notifier, summary *archive.Summary, runID, source string, runErr error, log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	if runErr != nil {
		err = n.NotifyFailure(ctx, runID, source, runErr)
	} else {
		err = n.NotifySuccess(ctx, summary)
	}
	if err != nil {
		log.Warnw("failed to send run notification", "error", err)
	}
}

// pushMetrics replaces the job's metric group on the Pushgateway, so only
// the last run of a job is kept.
func pushMetrics(cfg *config.Config, registry *prometheus.Registry, log *zap.SugaredLogger) {
	if cfg.Metrics.Pushgateway == "" {
		return
	}
	err := push.New(cfg.Metrics.Pushgateway, cfg.Metrics.Job).
		Client(&http.Client{Timeout: pushTimeout}).
		Gatherer(registry).
		Push()
	if err != nil {
		log.Warnw("failed to push metrics", "pushgateway", cfg.Metrics.Pushgateway, "error", err)
	}
}
