package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"RangeBreak/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExporter(t *testing.T) {
	dir := t.TempDir()
	exp := NewFileExporter(dir)

	require.NoError(t, exp.Write(context.Background(), sampleStoredRun()))

	for _, name := range []string{"events.json", "report.json", "regimes.json", "report.md"} {
		assert.FileExists(t, filepath.Join(exp.RunDir("run-1"), name))
	}
	assert.FileExists(t, filepath.Join(dir, "latest.md"))

	raw, err := os.ReadFile(filepath.Join(exp.RunDir("run-1"), "report.json"))
	require.NoError(t, err)
	var rep models.Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	require.Len(t, rep.Buckets, 2)
	assert.Nil(t, rep.Buckets[1].Mean, "no_data buckets serialize a null mean")
	assert.Equal(t, models.BucketNoData, rep.Buckets[1].State)
}
