package archive

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSummary() *Summary {
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Summary{
		RunID:           "run-1",
		Source:          "s3://src/logs",
		Bucket:          "dst",
		Key:             "archive/archive_20250101_000000.tar.xz",
		Compression:     "xz/fastest",
		Cutoff:          &cutoff,
		ObjectsListed:   3,
		ObjectsArchived: 2,
		ObjectsFiltered: 1,
		SourceBytes:     2048,
		ArchiveBytes:    512,
		Parts:           1,
		Digest:          "abc",
		StartedAt:       cutoff,
		Duration:        1500 * time.Millisecond,
	}
}

func TestSummaryWrite(t *testing.T) {
	s := testSummary()

	var text bytes.Buffer
	require.NoError(t, s.Write(&text, SummaryText))
	assert.Contains(t, text.String(), "s3://dst/archive/archive_20250101_000000.tar.xz")
	assert.Contains(t, text.String(), "2 archived, 0 skipped, 1 filtered (3 listed)")
	assert.Contains(t, text.String(), "2.0 KiB source, 512 B archive (25.0%)")
	assert.Contains(t, text.String(), "2025-01-01T00:00:00Z")

	var js bytes.Buffer
	require.NoError(t, s.Write(&js, SummaryJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.EqualValues(t, 2, decoded["objects_archived"])
	assert.Equal(t, "abc", decoded["blake3"])

	var ym bytes.Buffer
	require.NoError(t, s.Write(&ym, SummaryYAML))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, "xz/fastest", fromYAML["compression"])

	assert.Error(t, s.Write(&text, "xml"))
}

func TestSummaryWrite_NoCutoff(t *testing.T) {
	s := testSummary()
	s.Cutoff = nil
	s.SourceBytes = 0

	var text bytes.Buffer
	require.NoError(t, s.Write(&text, ""))
	assert.Contains(t, text.String(), "Cutoff:      none")
	assert.Contains(t, text.String(), "(n/a)")
}
