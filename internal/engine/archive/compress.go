package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

type Algorithm string

const (
	AlgorithmNone  Algorithm = "none"
	AlgorithmBzip2 Algorithm = "bzip2"
	AlgorithmXZ    Algorithm = "xz"
	AlgorithmZstd  Algorithm = "zstd"
	AlgorithmGzip  Algorithm = "gzip"
)

type Level string

const (
	LevelFastest Level = "fastest"
	LevelBest    Level = "best"
)

const (
	xzFastestDict = 1 << 20
	xzBestDict    = 64 << 20
)

// CompressionConfig selects the optional compression stage.
type CompressionConfig struct {
	Algorithm Algorithm
	Level     Level
}

// ParseCompression maps the command line pair (none|fastest|best, algorithm)
// onto a config.
func ParseCompression(mode, algorithm string) (CompressionConfig, error) {
	switch mode {
	case "", string(AlgorithmNone):
		return CompressionConfig{Algorithm: AlgorithmNone}, nil
	case string(LevelFastest), string(LevelBest):
	default:
		return CompressionConfig{}, fmt.Errorf("unknown compression %q", mode)
	}
	c := CompressionConfig{Algorithm: Algorithm(algorithm), Level: Level(mode)}
	return c, c.Validate()
}

func (c CompressionConfig) Enabled() bool {
	return c.Algorithm != "" && c.Algorithm != AlgorithmNone
}

func (c CompressionConfig) Validate() error {
	switch c.Algorithm {
	case "", AlgorithmNone:
		return nil
	case AlgorithmBzip2, AlgorithmXZ, AlgorithmZstd, AlgorithmGzip:
	default:
		return fmt.Errorf("unknown compression algorithm %q", c.Algorithm)
	}
	switch c.Level {
	case LevelFastest, LevelBest:
		return nil
	default:
		return fmt.Errorf("unknown compression level %q", c.Level)
	}
}

func (c CompressionConfig) String() string {
	if !c.Enabled() {
		return string(AlgorithmNone)
	}
	return string(c.Algorithm) + "/" + string(c.Level)
}

// Extension is appended to ".tar" in the archive key.
func (c CompressionConfig) Extension() string {
	switch c.Algorithm {
	case AlgorithmBzip2:
		return ".bz2"
	case AlgorithmXZ:
		return ".xz"
	case AlgorithmZstd:
		return ".zst"
	case AlgorithmGzip:
		return ".gz"
	default:
		return ""
	}
}

func (c CompressionConfig) ContentType() string {
	switch c.Algorithm {
	case AlgorithmBzip2:
		return "application/x-bzip2"
	case AlgorithmXZ:
		return "application/x-xz"
	case AlgorithmZstd:
		return "application/zstd"
	case AlgorithmGzip:
		return "application/gzip"
	default:
		return "application/x-tar"
	}
}

// MemoryEstimate is a rough upper bound of the encoder's resident state.
func (c CompressionConfig) MemoryEstimate() int64 {
	if !c.Enabled() {
		return 0
	}
	best := c.Level == LevelBest
	switch c.Algorithm {
	case AlgorithmXZ:
		if best {
			// Binary tree matcher over a 64 MiB dictionary.
			return 12 * xzBestDict
		}
		return 8 * xzFastestDict
	case AlgorithmBzip2:
		if best {
			return 10 << 20
		}
		return 2 << 20
	case AlgorithmZstd:
		if best {
			return 256 << 20
		}
		return 16 << 20
	default:
		return 1 << 20
	}
}

func newEncoder(w io.Writer, c CompressionConfig) (io.WriteCloser, error) {
	best := c.Level == LevelBest
	switch c.Algorithm {
	case AlgorithmBzip2:
		level := bzip2.BestSpeed
		if best {
			level = bzip2.BestCompression
		}
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
	case AlgorithmXZ:
		cfg := xz.WriterConfig{DictCap: xzFastestDict, Matcher: lzma.HashTable4, CheckSum: xz.CRC64}
		if best {
			cfg.DictCap = xzBestDict
			cfg.Matcher = lzma.BinaryTree
		}
		return cfg.NewWriter(w)
	case AlgorithmZstd:
		level := zstd.SpeedFastest
		if best {
			level = zstd.SpeedBestCompression
		}
		// An empty stream still gets a frame so the output is a valid archive.
		return zstd.NewWriter(w, zstd.WithEncoderLevel(level), zstd.WithZeroFrames(true))
	case AlgorithmGzip:
		level := gzip.BestSpeed
		if best {
			level = gzip.BestCompression
		}
		return gzip.NewWriterLevel(w, level)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", c.Algorithm)
	}
}

// NewCompressReader wraps r with a streaming encoder. With compression
// disabled r is returned unchanged. The returned reader owns r.
func NewCompressReader(ctx context.Context, r io.ReadCloser, c CompressionConfig) (io.ReadCloser, error) {
	if !c.Enabled() {
		return r, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return newStage(ctx, r, func(ctx context.Context, w io.Writer) error {
		enc, err := newEncoder(w, c)
		if err != nil {
			return stageError(StageCompress, "", fmt.Errorf("create %s encoder: %w", c.Algorithm, err))
		}
		if _, err := io.Copy(enc, r); err != nil {
			_ = enc.Close()
			if _, ok := StageOf(err); ok {
				return err
			}
			return stageError(StageCompress, "", err)
		}
		if err := enc.Close(); err != nil {
			return stageError(StageCompress, "", fmt.Errorf("finish %s stream: %w", c.Algorithm, err))
		}
		return nil
	}), nil
}
