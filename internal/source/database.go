package source

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// identPattern guards table names pulled from configuration before they
// are interpolated into SQL. Row values always go through placeholders.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DBSource feeds jobs from per-domain PostgreSQL tables. A row is
// pending while its pcap_path is empty; acknowledgement writes the
// artifact paths back (or marks the row with pcap_path='error'), so
// the source keeps yielding fresh batches until every table drains.
type DBSource struct {
	db            *sqlx.DB
	tables        []config.TableMapping
	tableByDomain map[string]string
	batchSize     int
	logger        logger.Interface
}

// NewDBSource creates a source over the given table mappings.
func NewDBSource(db *sqlx.DB, tables []config.TableMapping, batchSize int, log logger.Interface) (*DBSource, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("db source requires at least one table mapping")
	}
	byDomain := make(map[string]string, len(tables))
	for _, tm := range tables {
		if !identPattern.MatchString(tm.Table) {
			return nil, fmt.Errorf("invalid table name: %q", tm.Table)
		}
		byDomain[tm.Domain] = tm.Table
	}
	return &DBSource{
		db:            db,
		tables:        tables,
		tableByDomain: byDomain,
		batchSize:     batchSize,
		logger:        log,
	}, nil
}

// FetchBatch selects up to batchSize pending rows from each configured
// table. A table that fails to query is logged and skipped so one bad
// mapping cannot starve the rest.
func (s *DBSource) FetchBatch(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	for _, tm := range s.tables {
		query := fmt.Sprintf(`
			SELECT id, url
			FROM %s
			WHERE (pcap_path IS NULL OR pcap_path = '')
			AND url IS NOT NULL AND url <> ''
			ORDER BY id
			LIMIT $1`, tm.Table)

		var rows []struct {
			ID  int64  `db:"id"`
			URL string `db:"url"`
		}
		if err := s.db.SelectContext(ctx, &rows, query, s.batchSize); err != nil {
			s.logger.Warn("failed to fetch jobs from table", "table", tm.Table, "error", err)
			continue
		}
		for _, row := range rows {
			jobs = append(jobs, domain.Job{
				ID:     strconv.FormatInt(row.ID, 10),
				URL:    row.URL,
				Domain: tm.Domain,
			})
		}
		if len(rows) > 0 {
			s.logger.Info("fetched jobs from table", "table", tm.Table, "count", len(rows))
		}
	}
	return jobs, nil
}

// OnSuccess writes the artifact paths back to the job's row. The
// pending-row predicate is repeated in the WHERE clause so a row
// already claimed by a concurrent run is left alone.
func (s *DBSource) OnSuccess(ctx context.Context, job *domain.Job, paths domain.ArtifactPaths) error {
	table, rowID, err := s.resolve(job)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET classify_status=$1,
			traffic_status=$2,
			pcap_path=$3,
			ssl_key_path=$4,
			content_path=$5,
			html_path=$6,
			current_url=$7
		WHERE id=$8 AND (pcap_path IS NULL OR pcap_path = '')`, table)

	res, err := s.db.ExecContext(ctx, query,
		0, 0, paths.Pcap, paths.SSLKey, paths.Content, paths.HTML, paths.CurrentURL, rowID)
	if err != nil {
		return fmt.Errorf("failed to record success for row %d: %w", rowID, err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		s.logger.Warn("no pending row matched on success", "table", table, "row_id", rowID)
	}
	return nil
}

// OnFailure marks the row so it is not fetched again.
func (s *DBSource) OnFailure(ctx context.Context, job *domain.Job, _ string) error {
	table, rowID, err := s.resolve(job)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET pcap_path=$1
		WHERE id=$2 AND (pcap_path IS NULL OR pcap_path = '')`, table)

	if _, err := s.db.ExecContext(ctx, query, "error", rowID); err != nil {
		return fmt.Errorf("failed to record failure for row %d: %w", rowID, err)
	}
	return nil
}

// ShouldContinue is true: the db source loops until a fetch comes back
// empty.
func (s *DBSource) ShouldContinue() bool {
	return true
}

// Close releases the connection pool.
func (s *DBSource) Close() error {
	return s.db.Close()
}

func (s *DBSource) resolve(job *domain.Job) (table string, rowID int64, err error) {
	table, ok := s.tableByDomain[job.Domain]
	if !ok {
		return "", 0, fmt.Errorf("no table mapped for domain %q", job.Domain)
	}
	rowID, err = strconv.ParseInt(job.ID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid row id %q: %w", job.ID, err)
	}
	return table, rowID, nil
}
