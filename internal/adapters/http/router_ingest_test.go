package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
)

type ingestSuccessFake struct {
	got *domain.UploadRequest
}

func (f ingestSuccessFake) Upload(_ context.Context, req domain.UploadRequest) (*domain.Document, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("no file provided"))
	}
	if f.got != nil {
		*f.got = req
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:             "doc-1",
		Filename:       req.Filename,
		FileSize:       int64(len(raw)),
		MimeType:       req.MimeType,
		Status:         domain.StatusProcessing,
		Source:         req.Source,
		ProjectContext: domain.StringPtr(req.ProjectContext),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func newRouterForIngestTests(t *testing.T, ingest ingestSuccessFake, reader *readerFake, opts ...Option) http.Handler {
	t.Helper()
	if reader == nil {
		reader = &readerFake{}
	}
	router, err := NewRouter(config.Config{MaxUploadMB: 1}, ingest, reader, &feedbackFake{}, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func multipartPDF(t *testing.T, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="report.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestHealthzReportsFailedDependency(t *testing.T) {
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, nil, WithHealthCheck(func(context.Context) error {
		return errors.New("postgres unreachable")
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	var got domain.UploadRequest
	m := metrics.NewHTTPServerMetrics("api")
	handler := newRouterForIngestTests(t, ingestSuccessFake{got: &got}, nil, WithMetrics(m))

	body, contentType := multipartPDF(t, []byte("%PDF-1.4 fake"), map[string]string{
		"source":          "knowledge_base",
		"project_context": "quarterly review",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-1" || doc.Status != domain.StatusProcessing {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if got.MimeType != "application/pdf" || got.Source != domain.SourceKnowledgeBase || got.ProjectContext != "quarterly review" {
		t.Fatalf("unexpected upload request: %+v", got)
	}
}

func TestUploadDocumentWithoutFileReturns400(t *testing.T) {
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("source", "thread")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentTooLargeReturns413(t *testing.T) {
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, nil)

	body, contentType := multipartPDF(t, bytes.Repeat([]byte("a"), 3<<20), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestListDocumentsBindsQuery(t *testing.T) {
	reader := &readerFake{views: []domain.DocumentView{{Document: domain.Document{ID: "doc-1"}}}}
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents?source=thread&status=completed&limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	want := domain.DocumentFilter{Source: domain.SourceThread, Status: domain.StatusCompleted, Limit: 5}
	if reader.gotFilter != want {
		t.Fatalf("unexpected filter %+v", reader.gotFilter)
	}

	var payload struct {
		Documents []domain.DocumentView `json:"documents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Documents) != 1 || payload.Documents[0].ID != "doc-1" {
		t.Fatalf("unexpected documents %+v", payload.Documents)
	}
}

func TestRelatedDocumentsPassesLimit(t *testing.T) {
	reader := &readerFake{related: []domain.RelatedDocument{{DocumentID: "doc-2", SharedTags: []string{"finance"}}}}
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/related?limit=3", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reader.gotRelatedLimit != 3 {
		t.Fatalf("expected limit 3, got %d", reader.gotRelatedLimit)
	}
}

func TestSubmitFeedbackPassesSummaryID(t *testing.T) {
	fb := &feedbackFake{}
	router, err := NewRouter(config.Config{}, ingestSuccessFake{}, &readerFake{}, fb)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	payload, _ := json.Marshal(map[string]any{"rating": "thumbs_up", "comment": "clear and short"})
	req := httptest.NewRequest(http.MethodPut, "/v1/summaries/s-1/feedback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if fb.got.SummaryID != "s-1" || fb.got.Rating != domain.RatingThumbsUp || fb.got.Comment != "clear and short" {
		t.Fatalf("unexpected feedback request %+v", fb.got)
	}
}

func TestStrategyReportReturnsWorkbook(t *testing.T) {
	avg := 8.0
	reader := &readerFake{
		views: []domain.DocumentView{{
			Document:  domain.Document{ID: "doc-1", Filename: "a.pdf"},
			Summaries: []domain.SummaryView{{Summary: domain.Summary{Strategy: domain.StrategyTextExtraction, Status: domain.SummaryCompleted}}},
		}},
		stats: []domain.StrategyStats{{Strategy: domain.StrategyTextExtraction, Count: 1, AvgOverallScore: &avg}},
	}
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/strategies.xlsx", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != xlsx.ContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(res.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(xlsx.SummariesSheet)
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d (%v)", len(rows), err)
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	handler := newRouterForIngestTests(t, ingestSuccessFake{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || !bytes.Contains(res.Body.Bytes(), []byte("openapi: 3.0.3")) {
		t.Fatalf("unexpected openapi response %d", res.Code)
	}
}
