package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
)

const (
	// multipart framing and the text fields ride on top of the file itself.
	multipartOverheadBytes = 1 << 20
	multipartMemoryBytes   = 8 << 20
	reportDocumentLimit    = 200
)

type HealthCheck func(ctx context.Context) error

type Option func(*Router)

// WithMetrics enables /metrics and request instrumentation. Extra gatherers
// are merged into the scrape output.
func WithMetrics(m *metrics.HTTPServerMetrics, extra ...prometheus.Gatherer) Option {
	return func(rt *Router) {
		rt.metrics = m
		rt.gatherers = extra
	}
}

func WithHealthCheck(check HealthCheck) Option {
	return func(rt *Router) {
		rt.health = check
	}
}

type Router struct {
	ingest   ports.DocumentIngestor
	reader   ports.DocumentReader
	feedback ports.FeedbackService

	metrics   *metrics.HTTPServerMetrics
	gatherers []prometheus.Gatherer
	health    HealthCheck
	validator *requestValidator

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueWait      time.Duration
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	reader ports.DocumentReader,
	feedback ports.FeedbackService,
	opts ...Option,
) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	rt := &Router{
		ingest:         ingest,
		reader:         reader,
		feedback:       feedback,
		validator:      validator,
		maxUploadBytes: cfg.MaxUploadBytes(),
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		queueWait:      cfg.APIQueueWait(),
	}
	if rt.maxUploadBytes <= 0 {
		rt.maxUploadBytes = 20 << 20
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler(rt.gatherers...))
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{id}/related", rt.relatedDocuments)
	mux.HandleFunc("PUT /v1/summaries/{id}/feedback", rt.submitFeedback)
	mux.HandleFunc("GET /v1/stats/strategies", rt.strategyStats)
	mux.HandleFunc("GET /v1/reports/strategies.xlsx", rt.strategyReport)

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.queueWait)
	handler = rt.rateLimitMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+multipartOverheadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		rt.recordUpload(false, 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file must be %dMB or smaller", rt.maxUploadBytes>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		rt.recordUpload(false, 0)
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(r.Context(), domain.UploadRequest{
		Filename:       header.Filename,
		MimeType:       header.Header.Get("Content-Type"),
		Size:           header.Size,
		Body:           file,
		Source:         domain.DocumentSource(r.FormValue("source")),
		ProjectContext: r.FormValue("project_context"),
	})
	if err != nil {
		rt.recordUpload(false, 0)
		writeDomainError(w, r, err)
		return
	}
	rt.recordUpload(true, doc.FileSize)
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		source string
		status string
		limit  int
	)
	if err := runtime.BindQueryParameter("form", true, false, "source", query, &source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", query, &status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := rt.reader.ListDocuments(r.Context(), domain.DocumentFilter{
		Source: domain.DocumentSource(source),
		Status: domain.DocumentStatus(status),
		Limit:  limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := bindPathID(w, r)
	if !ok {
		return
	}
	view, err := rt.reader.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) relatedDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := bindPathID(w, r)
	if !ok {
		return
	}
	var limit int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	related, err := rt.reader.RelatedDocuments(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if related == nil {
		related = []domain.RelatedDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

type feedbackPayload struct {
	Rating  string `json:"rating"`
	Comment string `json:"comment"`
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := bindPathID(w, r)
	if !ok {
		return
	}
	var req feedbackPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	fb, err := rt.feedback.Submit(r.Context(), domain.FeedbackRequest{
		SummaryID: id,
		Rating:    domain.FeedbackRating(req.Rating),
		Comment:   req.Comment,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordFeedback(string(fb.Rating))
	}
	writeJSON(w, http.StatusOK, fb)
}

func (rt *Router) strategyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.reader.StrategyStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": stats})
}

func (rt *Router) strategyReport(w http.ResponseWriter, r *http.Request) {
	var source string
	if err := runtime.BindQueryParameter("form", true, false, "source", r.URL.Query(), &source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	views, err := rt.reader.ListDocuments(r.Context(), domain.DocumentFilter{
		Source: domain.DocumentSource(source),
		Limit:  reportDocumentLimit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	stats, err := rt.reader.StrategyStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	raw, err := xlsx.Build(views, stats)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport()
	}

	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="strategy-comparison.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (rt *Router) recordUpload(accepted bool, size int64) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(accepted, size)
	}
}

func bindPathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, publicMessage(status, err))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
