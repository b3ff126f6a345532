// Package mcp exposes chat, embedding and rerank as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/leofalp/qianfan/resources"
)

const serverName = "qianfan"

// Server holds the resource clients behind the tools.
type Server struct {
	chat      *resources.ChatCompletion
	embedding *resources.Embedding
	reranker  *resources.Reranker

	mcp *server.MCPServer
}

// New registers the tools. opts are passed to every resource client.
func New(version string, opts ...resources.Option) *Server {
	s := &Server{
		chat:      resources.NewChatCompletion(opts...),
		embedding: resources.NewEmbedding(opts...),
		reranker:  resources.NewReranker(opts...),
		mcp:       server.NewMCPServer(serverName, version, server.WithToolCapabilities(true)),
	}

	s.mcp.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Send a single message to a Qianfan chat model and return its reply"),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("model", mcp.Description("Chat model name, defaults to "+resources.DefaultChatModel)),
		mcp.WithString("system", mcp.Description("Optional system prompt")),
		mcp.WithNumber("temperature", mcp.Description("Sampling temperature in (0, 1]")),
	), s.handleChat)

	s.mcp.AddTool(mcp.NewTool("embedding",
		mcp.WithDescription("Embed texts with a Qianfan embedding model and return one vector per text as JSON"),
		mcp.WithArray("texts", mcp.Required(), mcp.Description("Texts to embed"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("model", mcp.Description("Embedding model name, defaults to "+resources.DefaultEmbeddingModel)),
	), s.handleEmbedding)

	s.mcp.AddTool(mcp.NewTool("rerank",
		mcp.WithDescription("Rank documents by relevance to a query and return the scores as JSON"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The query")),
		mcp.WithArray("documents", mcp.Required(), mcp.Description("Documents to rank"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("top_n", mcp.Description("Return only the best N documents")),
	), s.handleRerank)

	return s
}

// MCPServer returns the underlying server, for transports other than stdio.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools on stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := &resources.ChatRequest{
		Model:    request.GetString("model", ""),
		System:   request.GetString("system", ""),
		Messages: []resources.Message{{Role: resources.RoleUser, Content: message}},
	}
	if t := request.GetFloat("temperature", 0); t > 0 {
		req.Temperature = lo.ToPtr(min(t, 1))
	}

	resp, err := s.chat.Do(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Result), nil
}

func (s *Server) handleEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	texts := request.GetStringSlice("texts", nil)
	if len(texts) == 0 {
		return mcp.NewToolResultError("texts must be a non-empty list of strings"), nil
	}

	resp, err := s.embedding.Do(ctx, &resources.EmbeddingRequest{
		Model: request.GetString("model", ""),
		Input: texts,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp.Vectors())
}

func (s *Server) handleRerank(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	documents := request.GetStringSlice("documents", nil)
	if len(documents) == 0 {
		return mcp.NewToolResultError("documents must be a non-empty list of strings"), nil
	}

	resp, err := s.reranker.Do(ctx, &resources.RerankRequest{
		Query:     query,
		Documents: documents,
		TopN:      request.GetInt("top_n", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp.Results)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
