// Package neo4j projects summary tags into a document/tag graph and answers
// "documents sharing tags" queries.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

const (
	indexSummaryQuery = `
MERGE (d:Document {id: $document_id})
SET d.filename = $filename, d.source = $source
WITH d
UNWIND $tags AS tag
MERGE (t:Tag {key: tag.key})
ON CREATE SET t.label = tag.label, t.category = tag.category
MERGE (d)-[r:TAGGED {strategy: $strategy}]->(t)
SET r.confidence = tag.confidence`

	relatedDocumentsQuery = `
MATCH (d:Document {id: $document_id})-[:TAGGED]->(t:Tag)<-[:TAGGED]-(o:Document)
WHERE o.id <> $document_id
WITH o, collect(DISTINCT t.label) AS shared
RETURN o.id AS document_id, o.filename AS filename, shared
ORDER BY size(shared) DESC, o.id ASC
LIMIT $limit`
)

type queryFunc func(ctx context.Context, query string, params map[string]any, read bool) (*neo4j.EagerResult, error)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// TagIndex stores one node per document and per normalized tag label.
type TagIndex struct {
	driver   neo4j.DriverWithContext
	run      queryFunc
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*TagIndex, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	idx := &TagIndex{driver: driver, executor: executor}
	idx.run = func(ctx context.Context, query string, params map[string]any, read bool) (*neo4j.EagerResult, error) {
		opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithDatabase(cfg.Database)}
		if read {
			opts = append(opts, neo4j.ExecuteQueryWithReadersRouting())
		}
		return neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer, opts...)
	}
	return idx, nil
}

func (i *TagIndex) Close(ctx context.Context) error {
	if i.driver == nil {
		return nil
	}
	return i.driver.Close(ctx)
}

func (i *TagIndex) IndexSummary(ctx context.Context, doc domain.Document, summary domain.Summary) error {
	tags := tagParams(summary.Tags)
	if len(tags) == 0 {
		return nil
	}
	params := map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"source":      string(doc.Source),
		"strategy":    string(summary.Strategy),
		"tags":        tags,
	}
	_, err := i.query(ctx, "neo4j.index_summary", indexSummaryQuery, params, false)
	if err != nil {
		return fmt.Errorf("index summary tags: %w", err)
	}
	return nil
}

func (i *TagIndex) RelatedDocuments(ctx context.Context, documentID string, limit int) ([]domain.RelatedDocument, error) {
	if limit <= 0 {
		limit = 10
	}
	result, err := i.query(ctx, "neo4j.related_documents", relatedDocumentsQuery, map[string]any{
		"document_id": documentID,
		"limit":       int64(limit),
	}, true)
	if err != nil {
		return nil, fmt.Errorf("query related documents: %w", err)
	}
	return decodeRelated(result.Records)
}

func (i *TagIndex) query(ctx context.Context, operation, query string, params map[string]any, read bool) (*neo4j.EagerResult, error) {
	if i.executor == nil {
		return i.run(ctx, query, params, read)
	}
	return resilience.Do(ctx, i.executor, operation, func(ctx context.Context) (*neo4j.EagerResult, error) {
		return i.run(ctx, query, params, read)
	}, classifyNeo4jError)
}

func classifyNeo4jError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     neo4j.IsRetryable(err),
		RecordFailure: true,
	}
}

// tagParams dedupes tags by normalized label, keeping the most confident.
func tagParams(tags []domain.Tag) []any {
	seen := make(map[string]map[string]any, len(tags))
	out := make([]any, 0, len(tags))
	for _, tag := range tags {
		key := normalizeLabel(tag.Label)
		if key == "" {
			continue
		}
		if prev, ok := seen[key]; ok {
			if tag.Confidence > prev["confidence"].(float64) {
				prev["confidence"] = tag.Confidence
			}
			continue
		}
		param := map[string]any{
			"key":        key,
			"label":      strings.TrimSpace(tag.Label),
			"category":   string(tag.Category),
			"confidence": tag.Confidence,
		}
		seen[key] = param
		out = append(out, param)
	}
	return out
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

func decodeRelated(records []*neo4j.Record) ([]domain.RelatedDocument, error) {
	out := make([]domain.RelatedDocument, 0, len(records))
	for _, rec := range records {
		id, _ := rec.Get("document_id")
		filename, _ := rec.Get("filename")
		shared, _ := rec.Get("shared")

		docID, ok := id.(string)
		if !ok {
			return nil, fmt.Errorf("decode related document: unexpected id %T", id)
		}
		name, _ := filename.(string)
		labels := make([]string, 0)
		if list, ok := shared.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					labels = append(labels, s)
				}
			}
		}
		out = append(out, domain.RelatedDocument{DocumentID: docID, Filename: name, SharedTags: labels})
	}
	return out, nil
}
