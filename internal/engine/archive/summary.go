package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	SummaryText = "text"
	SummaryYAML = "yaml"
	SummaryJSON = "json"
)

// Summary is reported after a successful run.
type Summary struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	Source          string        `json:"source" yaml:"source"`
	Bucket          string        `json:"bucket" yaml:"bucket"`
	Key             string        `json:"key" yaml:"key"`
	Compression     string        `json:"compression" yaml:"compression"`
	Cutoff          *time.Time    `json:"cutoff,omitempty" yaml:"cutoff,omitempty"`
	ObjectsListed   int64         `json:"objects_listed" yaml:"objects_listed"`
	ObjectsArchived int64         `json:"objects_archived" yaml:"objects_archived"`
	ObjectsSkipped  int64         `json:"objects_skipped" yaml:"objects_skipped"`
	ObjectsFiltered int64         `json:"objects_filtered" yaml:"objects_filtered"`
	SourceBytes     int64         `json:"source_bytes" yaml:"source_bytes"`
	ArchiveBytes    int64         `json:"archive_bytes" yaml:"archive_bytes"`
	Parts           int           `json:"parts" yaml:"parts"`
	Digest          string        `json:"blake3" yaml:"blake3"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration_ns" yaml:"duration"`
}

// Write renders s in format (text, yaml or json).
func (s *Summary) Write(w io.Writer, format string) error {
	switch format {
	case "", SummaryText:
		return s.writeText(w)
	case SummaryYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("summary yaml: %w", err)
		}
		return enc.Close()
	case SummaryJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("summary json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown summary format %q", format)
	}
}

func (s *Summary) writeText(w io.Writer) error {
	ratio := "n/a"
	if s.SourceBytes > 0 {
		ratio = fmt.Sprintf("%.1f%%", float64(s.ArchiveBytes)*100/float64(s.SourceBytes))
	}
	cutoff := "none"
	if s.Cutoff != nil {
		cutoff = s.Cutoff.UTC().Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w, `Archive:     s3://%s/%s
Source:      %s
Cutoff:      %s
Compression: %s
Objects:     %d archived, %d skipped, %d filtered (%d listed)
Size:        %s source, %s archive (%s)
Parts:       %d
BLAKE3:      %s
Duration:    %s
`,
		s.Bucket, s.Key,
		s.Source,
		cutoff,
		s.Compression,
		s.ObjectsArchived, s.ObjectsSkipped, s.ObjectsFiltered, s.ObjectsListed,
		humanize.IBytes(uint64(s.SourceBytes)), humanize.IBytes(uint64(s.ArchiveBytes)), ratio,
		s.Parts,
		s.Digest,
		s.Duration.Round(time.Millisecond),
	)
	return err
}
