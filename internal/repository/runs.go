package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// RunRepository is the run ledger: one row per run, one per page outcome.
type RunRepository interface {
	StartRun(ctx context.Context, run entity.ExtractionRun) error
	RecordPage(ctx context.Context, page entity.PageOutcome) error
	FinishRun(ctx context.Context, run entity.ExtractionRun) error
	GetRun(ctx context.Context, id string) (*entity.ExtractionRun, []entity.PageOutcome, error)
	ListRuns(ctx context.Context, status constants.RunStatus, limit int) ([]entity.ExtractionRun, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

var runColumns = []string{
	"id", "document_id", "filename", "status", "pages_total", "pages_ok", "error_message",
	"needs_review", "model_name", "well_json", "started_at", "finished_at",
}

var pageColumns = []string{
	"run_id", "page", "status", "error_message", "fragments", "mean_confidence", "attempts",
	"warnings_json", "record_json",
}

// StartRun inserts the run, or moves an existing (queued) row forward.
func (r *runRepo) StartRun(ctx context.Context, run entity.ExtractionRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	query, args := entsql.Dialect(r.db.dialect).
		Insert(tableRun).
		Columns("id", "document_id", "filename", "status", "pages_total", "model_name", "started_at").
		Values(run.ID, run.DocumentID, run.Filename, string(run.Status), run.PagesTotal, run.ModelName, run.StartedAt).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("status")
				u.SetExcluded("pages_total")
				u.SetExcluded("model_name")
				u.SetExcluded("started_at")
			}),
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("extraction_run start failed", "run_id", run.ID, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Debug("extraction_run started", "run_id", run.ID, "document_id", run.DocumentID, "status", run.Status)
	return nil
}

func (r *runRepo) RecordPage(ctx context.Context, page entity.PageOutcome) error {
	query, args := entsql.Dialect(r.db.dialect).
		Insert(tablePage).
		Columns(pageColumns...).
		Values(page.RunID, page.Page, string(page.Status), page.ErrorMessage, page.Fragments,
			page.MeanConfidence, page.Attempts, jsonArg(page.WarningsJSON), jsonArg(page.RecordJSON)).
		OnConflict(
			entsql.ConflictColumns("run_id", "page"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("extraction_page write failed", "run_id", page.RunID, "page", page.Page, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *runRepo) FinishRun(ctx context.Context, run entity.ExtractionRun) error {
	finished := run.FinishedAt
	if finished == nil {
		now := time.Now().UTC()
		finished = &now
	}
	query, args := entsql.Dialect(r.db.dialect).
		Update(tableRun).
		Set("status", string(run.Status)).
		Set("pages_total", run.PagesTotal).
		Set("pages_ok", run.PagesOK).
		Set("error_message", run.ErrorMessage).
		Set("needs_review", run.NeedsReview).
		Set("model_name", run.ModelName).
		Set("well_json", jsonArg(run.WellJSON)).
		Set("finished_at", *finished).
		Where(entsql.EQ("id", run.ID)).
		Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		r.log.Error("extraction_run finish failed", "run_id", run.ID, "err", err)
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("extraction_run %s: %w", run.ID, common.ErrNotFound)
	}

	logAttrs := []any{"run_id", run.ID, "status", run.Status, "pages_ok", run.PagesOK, "pages_total", run.PagesTotal}
	if run.Status == constants.RunStatusSucceeded || run.Status == constants.RunStatusPartial {
		r.log.Info("extraction_run finished", logAttrs...)
	} else {
		r.log.Warn("extraction_run finished", logAttrs...)
	}
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, id string) (*entity.ExtractionRun, []entity.PageOutcome, error) {
	b := entsql.Dialect(r.db.dialect)
	query, args := b.Select(runColumns...).
		From(entsql.Table(tableRun)).
		Where(entsql.EQ("id", id)).
		Query()
	runs, err := r.queryRuns(ctx, query, args)
	if err != nil {
		return nil, nil, err
	}
	if len(runs) == 0 {
		return nil, nil, fmt.Errorf("extraction_run %s: %w", id, common.ErrNotFound)
	}

	query, args = b.Select(pageColumns...).
		From(entsql.Table(tablePage)).
		Where(entsql.EQ("run_id", id)).
		OrderBy("page").
		Query()
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var pages []entity.PageOutcome
	for rows.Next() {
		var (
			p                     entity.PageOutcome
			status                string
			errMsg                sql.NullString
			warnings, recordBytes sql.NullString
		)
		if err := rows.Scan(&p.RunID, &p.Page, &status, &errMsg, &p.Fragments, &p.MeanConfidence,
			&p.Attempts, &warnings, &recordBytes); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		p.Status = constants.PageStatus(status)
		p.ErrorMessage = nullString(errMsg)
		p.WarningsJSON = nullBytes(warnings)
		p.RecordJSON = nullBytes(recordBytes)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return &runs[0], pages, nil
}

// ListRuns returns the most recent runs first. An empty status matches all.
func (r *runRepo) ListRuns(ctx context.Context, status constants.RunStatus, limit int) ([]entity.ExtractionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	sel := entsql.Dialect(r.db.dialect).
		Select(runColumns...).
		From(entsql.Table(tableRun)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit)
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}
	query, args := sel.Query()
	return r.queryRuns(ctx, query, args)
}

func (r *runRepo) queryRuns(ctx context.Context, query string, args []any) ([]entity.ExtractionRun, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.ExtractionRun
	for rows.Next() {
		var (
			run                     entity.ExtractionRun
			status                  string
			filename, errMsg, model sql.NullString
			well                    sql.NullString
			finished                sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.DocumentID, &filename, &status, &run.PagesTotal, &run.PagesOK,
			&errMsg, &run.NeedsReview, &model, &well, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		run.Status = constants.RunStatus(status)
		run.Filename = filename.String
		run.ErrorMessage = nullString(errMsg)
		run.ModelName = nullString(model)
		run.WellJSON = nullBytes(well)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// jsonArg stores JSON as text so the same argument works for jsonb and
// SQLite text columns.
func jsonArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid || s.String == "" {
		return nil
	}
	return []byte(s.String)
}

// IsNotFound reports whether err is a missing ledger row.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
