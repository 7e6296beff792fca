package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const documentColumns = `id, filename, file_path, file_size, mime_type, page_count, extracted_text,
	extraction_success, status, error_message, error_type, project_context, source, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	mime_type TEXT NOT NULL,
	page_count INTEGER,
	extracted_text TEXT,
	extraction_success BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL CHECK (status IN ('uploading', 'processing', 'completed', 'failed')),
	error_message TEXT,
	error_type TEXT,
	project_context TEXT,
	source TEXT NOT NULL DEFAULT 'thread',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	strategy TEXT NOT NULL CHECK (strategy IN ('text_extraction', 'multimodal')),
	model_id TEXT NOT NULL,
	model_name TEXT NOT NULL,
	summary_short TEXT,
	summary_detailed TEXT,
	document_type TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	processing_time_ms BIGINT,
	input_tokens INTEGER,
	output_tokens INTEGER,
	total_tokens INTEGER,
	estimated_cost_usd DOUBLE PRECISION,
	status TEXT NOT NULL CHECK (status IN ('processing', 'completed', 'failed')),
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	CHECK ((status = 'failed') = (error_message IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_summaries_document_id ON summaries(document_id);

CREATE TABLE IF NOT EXISTS evaluations (
	id TEXT PRIMARY KEY,
	summary_id TEXT NOT NULL UNIQUE REFERENCES summaries(id) ON DELETE CASCADE,
	completeness_score SMALLINT NOT NULL CHECK (completeness_score BETWEEN 1 AND 10),
	completeness_rationale TEXT NOT NULL,
	confidence_score SMALLINT NOT NULL CHECK (confidence_score BETWEEN 1 AND 10),
	confidence_rationale TEXT NOT NULL,
	specificity_score SMALLINT NOT NULL CHECK (specificity_score BETWEEN 1 AND 10),
	specificity_rationale TEXT NOT NULL,
	overall_score SMALLINT NOT NULL CHECK (overall_score BETWEEN 1 AND 10),
	overall_rationale TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	estimated_cost_usd DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	summary_id TEXT NOT NULL UNIQUE REFERENCES summaries(id) ON DELETE CASCADE,
	rating TEXT NOT NULL CHECK (rating IN ('thumbs_up', 'thumbs_down')),
	comment TEXT CHECK (char_length(comment) <= 500),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	var errorType *string
	if doc.ErrorType != nil {
		errorType = domain.StringPtr(string(*doc.ErrorType))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.Filename, doc.FilePath, doc.FileSize, doc.MimeType, doc.PageCount, doc.ExtractedText,
		doc.ExtractionSuccess, string(doc.Status), doc.ErrorMessage, errorType, doc.ProjectContext,
		string(doc.Source), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents newest first. Empty filter fields match everything.
func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '' OR source = $1) AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3
`, string(filter.Source), string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'uploading'
`, id, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim document rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, extraction domain.TextExtraction) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extracted_text = $2,
	page_count = COALESCE($3, page_count),
	extraction_success = $4,
	error_message = $5,
	error_type = $6,
	updated_at = $7
WHERE id = $1
`,
		id,
		domain.StringPtr(sanitizeText(extraction.Text)),
		domain.IntPtr(extraction.PageCount),
		extraction.Success,
		domain.StringPtr(extraction.Error),
		domain.StringPtr(string(extraction.ErrorType)),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return requireAffected(res, "save extraction", id)
}

func (r *DocumentRepository) SetPageCount(ctx context.Context, id string, pageCount int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents SET page_count = $2, updated_at = $3 WHERE id = $1
`, id, pageCount, r.now().UTC())
	if err != nil {
		return fmt.Errorf("set page count: %w", err)
	}
	return requireAffected(res, "set page count", id)
}

// UpdateStatus keeps the stored error message when errMessage is empty.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = COALESCE(NULLIF($3, ''), error_message), updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, "update document status", id)
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

// sanitizeText strips NUL bytes, which Postgres rejects in TEXT columns.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc            domain.Document
		pageCount      sql.NullInt64
		extractedText  sql.NullString
		status         string
		errorMessage   sql.NullString
		errorType      sql.NullString
		projectContext sql.NullString
		source         string
	)
	if err := row.Scan(
		&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileSize, &doc.MimeType, &pageCount, &extractedText,
		&doc.ExtractionSuccess, &status, &errorMessage, &errorType, &projectContext, &source,
		&doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return domain.Document{}, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.Source = domain.DocumentSource(source)
	doc.PageCount = nullInt(pageCount)
	doc.ExtractedText = nullString(extractedText)
	doc.ErrorMessage = nullString(errorMessage)
	doc.ProjectContext = nullString(projectContext)
	if errorType.Valid {
		et := domain.ExtractionErrorType(errorType.String)
		doc.ErrorType = &et
	}
	return doc, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
