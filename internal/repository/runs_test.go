package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
)

var _ pipeline.Recorder = RunRepository(nil)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), common.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func strPtr(s string) *string { return &s }

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestMigrate_PageRequiresRun(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)

	err := repo.RecordPage(ctx, entity.PageOutcome{RunID: "orphan", Page: 0, Status: constants.PageStatusOK})
	assert.ErrorIs(t, err, common.ErrDatabase)

	require.NoError(t, repo.StartRun(ctx, entity.ExtractionRun{ID: "orphan", DocumentID: "doc", Status: constants.RunStatusRunning}))
	assert.NoError(t, repo.RecordPage(ctx, entity.PageOutcome{RunID: "orphan", Page: 0, Status: constants.PageStatusOK}))
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.StartRun(ctx, entity.ExtractionRun{
		ID: "run-1", DocumentID: "doc-1", Filename: "survey.pdf", Status: constants.RunStatusQueued, StartedAt: started,
	}))
	require.NoError(t, repo.StartRun(ctx, entity.ExtractionRun{
		ID: "run-1", DocumentID: "doc-1", Filename: "survey.pdf", Status: constants.RunStatusRunning,
		PagesTotal: 2, ModelName: strPtr("gpt-4.1"), StartedAt: started,
	}))

	require.NoError(t, repo.RecordPage(ctx, entity.PageOutcome{RunID: "run-1", Page: 1, Status: constants.PageStatusPending}))
	require.NoError(t, repo.RecordPage(ctx, entity.PageOutcome{
		RunID: "run-1", Page: 1, Status: constants.PageStatusFailed, ErrorMessage: strPtr("page 1: structured extraction failed"),
		Fragments: 12, MeanConfidence: 0.8, Attempts: 3,
	}))
	require.NoError(t, repo.RecordPage(ctx, entity.PageOutcome{
		RunID: "run-1", Page: 0, Status: constants.PageStatusOK, Fragments: 40, MeanConfidence: 0.93, Attempts: 1,
		WarningsJSON: []byte(`[{"page":0,"field":"county","reason":"ungrounded","demoted":false}]`),
		RecordJSON:   []byte(`{"page":0}`),
	}))

	finished := started.Add(time.Minute)
	require.NoError(t, repo.FinishRun(ctx, entity.ExtractionRun{
		ID: "run-1", Status: constants.RunStatusPartial, PagesTotal: 2, PagesOK: 1, NeedsReview: true,
		ModelName: strPtr("gpt-4.1"), WellJSON: []byte(`{"document_id":"doc-1"}`), FinishedAt: &finished,
	}))

	run, pages, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusPartial, run.Status)
	assert.Equal(t, "doc-1", run.DocumentID)
	assert.Equal(t, "survey.pdf", run.Filename)
	assert.Equal(t, 2, run.PagesTotal)
	assert.Equal(t, 1, run.PagesOK)
	assert.True(t, run.NeedsReview)
	require.NotNil(t, run.ModelName)
	assert.Equal(t, "gpt-4.1", *run.ModelName)
	assert.Nil(t, run.ErrorMessage)
	assert.JSONEq(t, `{"document_id":"doc-1"}`, string(run.WellJSON))
	assert.WithinDuration(t, started, run.StartedAt, time.Second)
	require.NotNil(t, run.FinishedAt)
	assert.WithinDuration(t, finished, *run.FinishedAt, time.Second)

	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].Page)
	assert.Equal(t, constants.PageStatusOK, pages[0].Status)
	assert.Contains(t, string(pages[0].WarningsJSON), "ungrounded")
	assert.Equal(t, 1, pages[1].Page)
	assert.Equal(t, constants.PageStatusFailed, pages[1].Status)
	assert.Equal(t, 3, pages[1].Attempts)
	require.NotNil(t, pages[1].ErrorMessage)
	assert.Nil(t, pages[1].RecordJSON)
}

func TestRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)

	_, _, err := repo.GetRun(ctx, "missing")
	assert.True(t, IsNotFound(err))

	err = repo.FinishRun(ctx, entity.ExtractionRun{ID: "missing", Status: constants.RunStatusFailed})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunRepository_ListRuns(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t), nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.StartRun(ctx, entity.ExtractionRun{
			ID: id, DocumentID: "doc", Status: constants.RunStatusRunning, StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.FinishRun(ctx, entity.ExtractionRun{ID: "b", Status: constants.RunStatusFailed, ErrorMessage: strPtr("boom")}))

	all, err := repo.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	failed, err := repo.ListRuns(ctx, constants.RunStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", *failed[0].ErrorMessage)

	limited, err := repo.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpen_Rejects(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "sqlite"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Open(context.Background(), common.DatabaseConfig{Driver: "mysql", DSN: "x"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/survey", redact("postgres://user:secret@db:5432/survey"))
	assert.Equal(t, ":memory:", redact(":memory:"))
}
