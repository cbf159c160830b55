package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/source"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readCSVFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCSVSourceFetchBatch(t *testing.T) {
	path := writeCSV(t, "id,url,domain\n1,https://a.example/x,a.example\n2,,b.example\n3,https://c.example/y,c.example\n")
	src := source.NewCSVSource(path, logger.NewNoOp())

	jobs, err := src.FetchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, "https://a.example/x", jobs[0].URL)
	assert.Equal(t, "a.example", jobs[0].Domain)
	assert.Equal(t, "3", jobs[1].ID)
}

func TestCSVSourceHeaderVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"uppercase", "ID,URL,Domain\n7,https://x.example/,x.example\n"},
		{"bom", "\ufeffid,url,domain\n7,https://x.example/,x.example\n"},
		{"padded", " id , url , domain \n7,https://x.example/,x.example\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := source.NewCSVSource(writeCSV(t, tt.content), logger.NewNoOp())
			jobs, err := src.FetchBatch(context.Background())
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			assert.Equal(t, "7", jobs[0].ID)
			assert.Equal(t, "https://x.example/", jobs[0].URL)
		})
	}
}

func TestCSVSourceEmptyAfterFirstBatch(t *testing.T) {
	path := writeCSV(t, "id,url,domain\n")
	src := source.NewCSVSource(path, logger.NewNoOp())

	jobs, err := src.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.False(t, src.ShouldContinue())
}

func TestCSVSourceMissingFileIsEmptyBatch(t *testing.T) {
	src := source.NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"), logger.NewNoOp())

	jobs, err := src.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// The source stays exhausted on later fetches.
	jobs, err = src.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCSVSourceOnSuccessRemovesRow(t *testing.T) {
	path := writeCSV(t, "id,url,domain\n1,https://a.example/,a.example\n2,https://b.example/,b.example\n")
	src := source.NewCSVSource(path, logger.NewNoOp())

	job := &domain.Job{ID: "1", URL: "https://a.example/"}
	require.NoError(t, src.OnSuccess(context.Background(), job, domain.ArtifactPaths{}))

	content := readCSVFile(t, path)
	assert.NotContains(t, content, "a.example")
	assert.Contains(t, content, "b.example")
	assert.Contains(t, content, "id,url,domain")
}

func TestCSVSourceOnFailureRemovesRow(t *testing.T) {
	path := writeCSV(t, "id,url,domain\n1,https://a.example/,a.example\n2,https://b.example/,b.example\n")
	src := source.NewCSVSource(path, logger.NewNoOp())

	require.NoError(t, src.OnFailure(context.Background(), &domain.Job{ID: "2"}, "boom"))

	content := readCSVFile(t, path)
	assert.Contains(t, content, "a.example")
	assert.NotContains(t, content, "b.example")
}

func TestCSVSourceRemoveFirstMatchOnly(t *testing.T) {
	path := writeCSV(t, "id,url,domain\n5,https://a.example/,a.example\n5,https://b.example/,b.example\n")
	src := source.NewCSVSource(path, logger.NewNoOp())

	require.NoError(t, src.OnSuccess(context.Background(), &domain.Job{ID: "5"}, domain.ArtifactPaths{}))

	content := readCSVFile(t, path)
	assert.NotContains(t, content, "a.example")
	assert.Contains(t, content, "b.example")
}

func TestCSVSourceRemoveUnknownID(t *testing.T) {
	content := "id,url,domain\n1,https://a.example/,a.example\n"
	path := writeCSV(t, content)
	src := source.NewCSVSource(path, logger.NewNoOp())

	require.NoError(t, src.OnSuccess(context.Background(), &domain.Job{ID: "99"}, domain.ArtifactPaths{}))
	assert.Equal(t, content, readCSVFile(t, path))
}

func TestCSVSourceRemoveEmptyID(t *testing.T) {
	content := "id,url,domain\n1,https://a.example/,a.example\n"
	path := writeCSV(t, content)
	src := source.NewCSVSource(path, logger.NewNoOp())

	require.NoError(t, src.OnSuccess(context.Background(), &domain.Job{}, domain.ArtifactPaths{}))
	assert.Equal(t, content, readCSVFile(t, path))
}
