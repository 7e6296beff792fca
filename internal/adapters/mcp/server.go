// Package mcpadapter exposes the document read model as MCP tools.
package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	ToolGetDocumentAnalysis = "get_document_analysis"
	ToolListDocuments       = "list_documents"
	ToolStrategyStats       = "strategy_stats"
	ToolRelatedDocuments    = "related_documents"

	serverName = "document-intelligence"
)

type Server struct {
	reader ports.DocumentReader
	mcp    *server.MCPServer
}

func NewServer(reader ports.DocumentReader, version string) *Server {
	s := &Server{
		reader: reader,
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for transports other than stdio.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin closes or the process is signalled.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolGetDocumentAnalysis,
		mcp.WithDescription("Get a document's processing status, per-strategy summaries, self-evaluation scores, feedback and the strategy comparison."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document identifier returned on upload.")),
	), s.getDocumentAnalysis)

	s.mcp.AddTool(mcp.NewTool(ToolListDocuments,
		mcp.WithDescription("List uploaded documents with their summaries, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("source",
			mcp.Description("Filter by upload source."),
			mcp.Enum(string(domain.SourceThread), string(domain.SourceKnowledgeBase)),
		),
		mcp.WithString("status",
			mcp.Description("Filter by processing status."),
			mcp.Enum(
				string(domain.StatusUploading),
				string(domain.StatusProcessing),
				string(domain.StatusCompleted),
				string(domain.StatusFailed),
			),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum documents to return."), mcp.Min(1), mcp.Max(200)),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool(ToolStrategyStats,
		mcp.WithDescription("Average overall score and cost per summarization strategy across completed documents."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.strategyStats)

	s.mcp.AddTool(mcp.NewTool(ToolRelatedDocuments,
		mcp.WithDescription("Documents sharing summary tags with the given document."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document identifier.")),
		mcp.WithNumber("limit", mcp.Description("Maximum related documents."), mcp.Min(1), mcp.Max(200)),
	), s.relatedDocuments)
}

func (s *Server) getDocumentAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.reader.GetDocument(ctx, id)
	if err != nil {
		return toolError(ToolGetDocumentAnalysis, err), nil
	}
	return mcp.NewToolResultJSON(view)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var source domain.DocumentSource
	if raw := req.GetString("source", ""); raw != "" {
		parsed, ok := domain.ParseDocumentSource(raw)
		if !ok {
			return mcp.NewToolResultError("source must be thread or knowledge_base"), nil
		}
		source = parsed
	}
	views, err := s.reader.ListDocuments(ctx, domain.DocumentFilter{
		Source: source,
		Status: domain.DocumentStatus(req.GetString("status", "")),
		Limit:  req.GetInt("limit", 0),
	})
	if err != nil {
		return toolError(ToolListDocuments, err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"documents": views})
}

func (s *Server) strategyStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.reader.StrategyStats(ctx)
	if err != nil {
		return toolError(ToolStrategyStats, err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{"strategies": stats})
}

func (s *Server) relatedDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := s.reader.RelatedDocuments(ctx, id, req.GetInt("limit", 0))
	if err != nil {
		return toolError(ToolRelatedDocuments, err), nil
	}
	if related == nil {
		related = []domain.RelatedDocument{}
	}
	return mcp.NewToolResultJSON(map[string]any{"related": related})
}

// toolError reports failures inside the tool result so the calling model
// can see them. Unexpected failures are logged and summarized.
func toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrFeatureDisabled):
		return mcp.NewToolResultError(err.Error())
	default:
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error while running " + tool)
	}
}
