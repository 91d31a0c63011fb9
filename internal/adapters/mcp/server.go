// Package mcpadapter exposes read-only document tools over the Model Context Protocol.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/core/ports"
)

const (
	serverName    = "chapterflow"
	serverVersion = "1.0.0"
)

var documentStatusTool = mcp.NewTool("document_status",
	mcp.WithDescription("Return the ingestion status of an uploaded document. FAILED documents carry the error message."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Document id returned by the upload endpoint."),
	),
)

var listChaptersTool = mcp.NewTool("list_chapters",
	mcp.WithDescription("List the chapters persisted so far for a document, in ordinal order. Bodies are not included."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Document id."),
	),
)

var readChapterTool = mcp.NewTool("read_chapter",
	mcp.WithDescription("Return one chapter's full text with the ids of its neighbours."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Chapter id from list_chapters."),
	),
)

type Tools struct {
	reader ports.DocumentReader
}

func NewTools(reader ports.DocumentReader) *Tools {
	return &Tools{reader: reader}
}

// NewServer registers the document tools on a fresh MCP server.
func NewServer(reader ports.DocumentReader) *server.MCPServer {
	tools := NewTools(reader)
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(documentStatusTool, tools.DocumentStatus)
	s.AddTool(listChaptersTool, tools.ListChapters)
	s.AddTool(readChapterTool, tools.ReadChapter)
	return s
}

// NewHTTPHandler serves the tools over streamable HTTP at /mcp.
func NewHTTPHandler(reader ports.DocumentReader) http.Handler {
	return server.NewStreamableHTTPServer(NewServer(reader),
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)
}

type statusResult struct {
	ID     string                `json:"id"`
	Title  string                `json:"title"`
	Status domain.DocumentStatus `json:"status"`
	Error  string                `json:"error,omitempty"`
}

func (t *Tools) DocumentStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	doc, err := t.reader.GetDocument(ctx, id)
	if err != nil {
		return toolError("document_status", err)
	}
	return jsonResult(statusResult{ID: doc.ID, Title: doc.Title, Status: doc.Status, Error: doc.Error})
}

type chaptersResult struct {
	DocumentID string                  `json:"document_id"`
	Count      int                     `json:"count"`
	Chapters   []domain.ChapterSummary `json:"chapters"`
}

func (t *Tools) ListChapters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	chapters, err := t.reader.ListChapters(ctx, id)
	if err != nil {
		return toolError("list_chapters", err)
	}
	if chapters == nil {
		chapters = []domain.ChapterSummary{}
	}
	return jsonResult(chaptersResult{DocumentID: id, Count: len(chapters), Chapters: chapters})
}

func (t *Tools) ReadChapter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	chapter, err := t.reader.GetChapter(ctx, id)
	if err != nil {
		return toolError("read_chapter", err)
	}
	return jsonResult(chapter)
}

// toolError reports lookup misses and bad input to the model as tool errors;
// anything else fails the call.
func toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrChapterNotFound),
		domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
