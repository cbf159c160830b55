// Package integration_test verifies component interactions against real
// backing services.
package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/database"
	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/source"
	"github.com/chuanzhoupan/goingest/tests/helpers"
)

const contentTableSchema = `
CREATE TABLE news_content (
	id BIGSERIAL PRIMARY KEY,
	url TEXT,
	classify_status INT,
	traffic_status INT,
	pcap_path TEXT,
	ssl_key_path TEXT,
	content_path TEXT,
	html_path TEXT,
	current_url TEXT
)`

func TestIntegration_DBSource(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := helpers.StartPostgres(ctx)
	require.NoError(t, err, "failed to start Postgres container")
	defer func() {
		_ = pgContainer.Stop(ctx)
	}()

	db, err := database.NewPostgresConnection(pgContainer.Config)
	require.NoError(t, err, "failed to connect to test database")

	_, err = db.ExecContext(ctx, contentTableSchema)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO news_content (url) VALUES ($1), ($2), ($3)`,
		"https://news.example/a", "https://news.example/b", "https://news.example/c")
	require.NoError(t, err)

	src, err := source.NewDBSource(db, []config.TableMapping{
		{Table: "news_content", Domain: "news.example"},
	}, 10, logger.NewNoOp())
	require.NoError(t, err)
	defer src.Close()

	jobs, err := src.FetchBatch(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "news.example", jobs[0].Domain)

	// Acknowledge one success and one failure, then re-fetch.
	err = src.OnSuccess(ctx, &jobs[0], domain.ArtifactPaths{
		Pcap:       "/dst/pcap/20260829/news.example/a.pcap",
		SSLKey:     "/dst/ssl_key/20260829/news.example/a.log",
		Content:    "/dst/content/20260829/news.example/a.json",
		HTML:       "/dst/html/20260829/news.example/a.html",
		CurrentURL: "https://news.example/a?landed",
	})
	require.NoError(t, err)

	require.NoError(t, src.OnFailure(ctx, &jobs[1], "capture exited with status 1"))

	remaining, err := src.FetchBatch(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, jobs[2].ID, remaining[0].ID)

	var pcapPath string
	require.NoError(t, db.GetContext(ctx, &pcapPath,
		`SELECT pcap_path FROM news_content WHERE id = $1`, jobs[0].ID))
	assert.Equal(t, "/dst/pcap/20260829/news.example/a.pcap", pcapPath)

	require.NoError(t, db.GetContext(ctx, &pcapPath,
		`SELECT pcap_path FROM news_content WHERE id = $1`, jobs[1].ID))
	assert.Equal(t, "error", pcapPath)

	// A second success for an already-claimed row must not overwrite it.
	require.NoError(t, src.OnSuccess(ctx, &jobs[1], domain.ArtifactPaths{Pcap: "/late"}))
	require.NoError(t, db.GetContext(ctx, &pcapPath,
		`SELECT pcap_path FROM news_content WHERE id = $1`, jobs[1].ID))
	assert.Equal(t, "error", pcapPath)
}
