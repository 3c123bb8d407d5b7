package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	MinBufferBytes int64 = 5 * 1024 * 1024
	MaxBufferBytes int64 = 5 * 1024 * 1024 * 1024
	MaxPartsLimit        = 10000
)

var (
	ErrInvalidBuffer        = errors.New("invalid buffer size")
	ErrInvalidCutoff        = errors.New("invalid cutoff: expected an ISO-8601 timestamp")
	ErrInvalidCompression   = errors.New("invalid compression: must be 'none', 'fastest' or 'best'")
	ErrInvalidAlgorithm     = errors.New("invalid algorithm: must be 'bzip2', 'xz', 'zstd' or 'gzip'")
	ErrInvalidConcurrency   = errors.New("invalid concurrency: must be at least 1")
	ErrInvalidMaxParts      = errors.New("invalid max parts: must be between 1 and 10000")
	ErrInvalidDriver        = errors.New("invalid driver: must be 's3' or 'minio'")
	ErrInvalidSummaryFormat = errors.New("invalid summary format: must be 'text', 'yaml' or 'json'")
)

var cutoffLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCutoff accepts RFC 3339 timestamps, zone-less timestamps (UTC) and
// plain dates. An empty string means no cutoff.
func ParseCutoff(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range cutoffLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: got %q", ErrInvalidCutoff, raw)
}

// ParseBuffer parses a human size such as "100MiB" or "64mb" and checks it
// fits the multipart part size limits.
func ParseBuffer(raw string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	size := int64(n)
	if size < MinBufferBytes || size > MaxBufferBytes {
		return 0, fmt.Errorf("%w: %s is outside [%s, %s]", ErrInvalidBuffer,
			humanize.IBytes(n), humanize.IBytes(uint64(MinBufferBytes)), humanize.IBytes(uint64(MaxBufferBytes)))
	}
	return size, nil
}

// Resolved is the validated, typed form of Config.
type Resolved struct {
	Source      Location
	Destination Location
	Cutoff      time.Time
	HasCutoff   bool
	BufferBytes int64
}

// MaxArchiveBytes is the largest archive the configured buffer and part
// count can hold.
func (r *Resolved) MaxArchiveBytes(maxParts int) int64 {
	return r.BufferBytes * int64(maxParts)
}

func Validate(cfg *Config) (*Resolved, error) {
	return ValidateAt(cfg, time.Now())
}

// ValidateAt validates cfg, resolving a relative age against now.
func ValidateAt(cfg *Config, now time.Time) (*Resolved, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	src, err := ParseLocation(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("src: %w", err)
	}
	dst, err := ParseLocation(cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("dst: %w", err)
	}
	cutoff, hasCutoff, err := ParseCutoff(cfg.Cutoff)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.OlderThan) != "" {
		if hasCutoff {
			return nil, fmt.Errorf("%w: cutoff and older_than are mutually exclusive", ErrInvalidCutoff)
		}
		age, err := ParseAge(cfg.OlderThan)
		if err != nil {
			return nil, err
		}
		cutoff, hasCutoff = CutoffFromAge(now, age), true
	}
	buffer, err := ParseBuffer(cfg.Buffer)
	if err != nil {
		return nil, err
	}

	switch cfg.Compression {
	case CompressionNone, CompressionFastest, CompressionBest:
	case "":
		cfg.Compression = CompressionNone
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidCompression, cfg.Compression)
	}
	switch cfg.Algorithm {
	case AlgorithmBzip2, AlgorithmXZ, AlgorithmZstd, AlgorithmGzip:
	case "":
		cfg.Algorithm = AlgorithmXZ
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidAlgorithm, cfg.Algorithm)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	if cfg.MaxParts < 1 || cfg.MaxParts > MaxPartsLimit {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxParts, cfg.MaxParts)
	}
	switch cfg.Driver {
	case DriverS3, DriverMinio:
	case "":
		cfg.Driver = DriverS3
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDriver, cfg.Driver)
	}
	switch cfg.SummaryFormat {
	case SummaryText, SummaryYAML, SummaryJSON:
	case "":
		cfg.SummaryFormat = SummaryText
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidSummaryFormat, cfg.SummaryFormat)
	}
	if cfg.Store.Region == "" {
		cfg.Store.Region = DefaultRegion
	}

	return &Resolved{
		Source:      src,
		Destination: dst,
		Cutoff:      cutoff,
		HasCutoff:   hasCutoff,
		BufferBytes: buffer,
	}, nil
}
