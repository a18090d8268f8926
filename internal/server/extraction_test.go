package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/async"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
	"github.com/joseph-ayodele/survey-extractor/internal/repository"
)

type stubRunner struct {
	mu    sync.Mutex
	res   pipeline.Result
	err   error
	doc   entity.SourceDocument
	reqID string
}

func (r *stubRunner) Run(ctx context.Context, doc entity.SourceDocument) (pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
	r.reqID = common.RequestIDFromContext(ctx)
	return r.res, r.err
}

type stubQueue struct {
	jobs []async.Job
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job async.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Shutdown(context.Context) {}

func dial(t *testing.T, svc ExtractionServer) (*ExtractionClient, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s, _ := NewGRPCServer(svc, nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewExtractionClient(conn), conn
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func pdfRequest(t *testing.T, extra map[string]any) *structpb.Struct {
	fields := map[string]any{
		"document_id": "doc-1",
		"filename":    "survey.pdf",
		"content":     base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test")),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return request(t, fields)
}

func f64(v float64) *float64 { return &v }

func wellResult() pipeline.Result {
	rec := entity.ValidatedRecord{Page: 1, Points: []entity.SurveyPoint{{MD: f64(100), INC: f64(1), AZI: f64(90)}}}
	return pipeline.Result{
		Well: &entity.WellRecord{
			DocumentID: "doc-1",
			Metadata:   map[string]string{constants.FieldUWI: "42-123-45678"},
			Sources:    map[string]entity.FieldSource{constants.FieldUWI: {Page: 1, Confidence: 0.9}},
			Points:     []entity.SurveyPoint{{MD: f64(100), INC: f64(1), AZI: f64(90), Page: 1, Confidence: 0.9}},
			Pages:      []int{1},
		},
		Report: entity.Report{
			RunID: "run-1", DocumentID: "doc-1", Status: constants.RunStatusSucceeded,
			Pages: []entity.PageResult{{Page: 1, Status: constants.PageStatusOK, Record: &rec}},
		},
	}
}

func TestExtract_ReturnsWellAndReport(t *testing.T) {
	runner := &stubRunner{res: wellResult()}
	client, _ := dial(t, NewExtractionService(runner, nil))

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDHeader, "req-42")
	resp, err := client.Extract(ctx, pdfRequest(t, map[string]any{"selected_pages": []any{1}}))
	require.NoError(t, err)

	f := resp.GetFields()
	assert.Equal(t, "run-1", f["run_id"].GetStringValue())
	assert.Equal(t, "SUCCEEDED", f["status"].GetStringValue())
	assert.False(t, f["needs_review"].GetBoolValue())
	well := f["well"].GetStructValue().GetFields()
	assert.Equal(t, "42-123-45678", well["metadata"].GetStructValue().GetFields()["uwi"].GetStringValue())
	assert.Len(t, well["survey_points"].GetListValue().GetValues(), 1)
	pages := f["report"].GetStructValue().GetFields()["pages"].GetListValue().GetValues()
	require.Len(t, pages, 1)
	assert.Equal(t, "OK", pages[0].GetStructValue().GetFields()["status"].GetStringValue())

	assert.Equal(t, constants.FormatPDF, runner.doc.Format)
	assert.Equal(t, []int{1}, runner.doc.SelectedIndices())
	assert.Equal(t, "req-42", runner.reqID)
}

func TestExtract_NoUsablePagesKeepsReport(t *testing.T) {
	runner := &stubRunner{
		res: pipeline.Result{Report: entity.Report{
			RunID: "run-2", Status: constants.RunStatusFailed,
			Pages: []entity.PageResult{{Page: 0, Status: constants.PageStatusEmpty, ErrorMessage: "no text detected"}},
		}},
		err: errors.Join(common.ErrNoUsablePages),
	}
	client, _ := dial(t, NewExtractionService(runner, nil))

	resp, err := client.Extract(context.Background(), pdfRequest(t, nil))
	require.NoError(t, err)
	f := resp.GetFields()
	assert.Equal(t, "FAILED", f["status"].GetStringValue())
	assert.Contains(t, f["error"].GetStringValue(), "no page yielded usable data")
	_, isNull := f["well"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name   string
		req    map[string]any
		runErr error
		code   codes.Code
	}{
		{"missing content", map[string]any{"document_id": "d"}, nil, codes.InvalidArgument},
		{"bad base64", map[string]any{"content": "***"}, nil, codes.InvalidArgument},
		{"unknown format", map[string]any{"content": "AAAA", "format": "tiff"}, nil, codes.InvalidArgument},
		{"negative page", map[string]any{"content": "AAAA", "selected_pages": []any{-1}}, nil, codes.InvalidArgument},
		{"page index", map[string]any{"content": "AAAA"}, fmt.Errorf("%w: page 9", common.ErrPageIndex), codes.InvalidArgument},
		{"unsupported", map[string]any{"content": "AAAA"}, fmt.Errorf("%w: garbage", common.ErrUnsupportedDocument), codes.InvalidArgument},
		{"cancelled", map[string]any{"content": "AAAA"}, context.Canceled, codes.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := dial(t, NewExtractionService(&stubRunner{err: tt.runErr}, nil))
			_, err := client.Extract(context.Background(), request(t, tt.req))
			assert.Equal(t, tt.code, status.Code(err), "%v", err)
		})
	}
}

func TestExtract_PageImagesSelection(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("not decoded here"))
	runner := &stubRunner{res: wellResult()}
	client, _ := dial(t, NewExtractionService(runner, nil))

	_, err := client.Extract(context.Background(), request(t, map[string]any{
		"format": "png", "page_images": []any{img, img, img}, "selected_pages": []any{0, 2},
	}))
	require.NoError(t, err)
	assert.Len(t, runner.doc.Pages, 3)
	assert.Equal(t, []int{0, 2}, runner.doc.SelectedIndices())

	_, err = client.Extract(context.Background(), request(t, map[string]any{
		"format": "png", "page_images": []any{img}, "selected_pages": []any{3},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestExtract_SizeLimit(t *testing.T) {
	client, _ := dial(t, NewExtractionService(&stubRunner{res: wellResult()}, nil, WithMaxDocumentBytes(4)))
	_, err := client.Extract(context.Background(), pdfRequest(t, nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func openLedger(t *testing.T) repository.RunRepository {
	t.Helper()
	db, err := repository.Open(context.Background(), common.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return repository.NewRunRepository(db, nil)
}

func TestSubmit_QueuesAndRecords(t *testing.T) {
	queue := &stubQueue{}
	ledger := openLedger(t)
	client, _ := dial(t, NewExtractionService(&stubRunner{}, nil, WithQueue(queue), WithLedger(ledger)))

	resp, err := client.Submit(context.Background(), pdfRequest(t, nil))
	require.NoError(t, err)
	runID := resp.GetFields()["run_id"].GetStringValue()
	require.NotEmpty(t, runID)
	assert.Equal(t, "QUEUED", resp.GetFields()["status"].GetStringValue())

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, runID, queue.jobs[0].RunID)
	assert.Equal(t, "doc-1", queue.jobs[0].Document.ID)
	assert.NotEmpty(t, queue.jobs[0].RequestID)

	got, err := client.GetRun(context.Background(), request(t, map[string]any{"run_id": runID}))
	require.NoError(t, err)
	run := got.GetFields()["run"].GetStructValue().GetFields()
	assert.Equal(t, "QUEUED", run["status"].GetStringValue())
	assert.Equal(t, "survey.pdf", run["filename"].GetStringValue())
}

func TestSubmit_QueueClosed(t *testing.T) {
	ledger := openLedger(t)
	client, _ := dial(t, NewExtractionService(&stubRunner{}, nil,
		WithQueue(&stubQueue{err: async.ErrQueueClosed}), WithLedger(ledger)))

	_, err := client.Submit(context.Background(), pdfRequest(t, nil))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	runs, err := ledger.ListRuns(context.Background(), constants.RunStatusCancelled, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDisabledMethods(t *testing.T) {
	client, _ := dial(t, NewExtractionService(&stubRunner{}, nil))

	_, err := client.Submit(context.Background(), pdfRequest(t, nil))
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = client.GetRun(context.Background(), request(t, map[string]any{"run_id": "x"}))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGetRun_Errors(t *testing.T) {
	client, _ := dial(t, NewExtractionService(&stubRunner{}, nil, WithLedger(openLedger(t))))

	_, err := client.GetRun(context.Background(), request(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetRun(context.Background(), request(t, map[string]any{"run_id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth(t *testing.T) {
	_, conn := dial(t, NewExtractionService(&stubRunner{}, nil))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
