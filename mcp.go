package proofwatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/proofwatch/annotation"
	"github.com/hazyhaar/proofwatch/doctree"
	"github.com/hazyhaar/proofwatch/internal/ltclient"
)

// RegisterMCP registers the proofreading tools on an MCP server. A shared
// engine serves one-shot text checks; document checks build a throwaway
// engine per call so concurrent tool calls never share overlay state. opts
// apply to both.
func RegisterMCP(srv *mcp.Server, cfg *Config, opts ...Option) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	checker, err := New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("proofwatch: mcp checker: %w", err)
	}
	lt := ltclient.New(cfg.ServiceURL,
		ltclient.WithTimeout(cfg.Request.Timeout),
		ltclient.WithRateLimit(cfg.Request.RatePerSec, cfg.Request.Burst))

	registerCheckTool(srv, checker, cfg)
	registerDocumentTool(srv, cfg, opts)
	registerLanguagesTool(srv, lt)
	return nil
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires a typed handler as an MCP tool. Handler errors become tool
// errors rather than protocol errors; responses are marshalled into a single
// text content block.
func addTool[T any](srv *mcp.Server, tool *mcp.Tool, handler func(context.Context, *T) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args T
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}
		resp, err := handler(ctx, &args)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- check ---

func registerCheckTool(srv *mcp.Server, eng *Engine, cfg *Config) {
	type req struct {
		Text string `json:"text"`
	}

	tool := &mcp.Tool{
		Name:        "proofwatch_check",
		Description: "Proofread a plain text and return LanguageTool-style matches with rune offsets.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Text to proofread"},
		}, []string{"text"}),
	}

	addTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if p.Text == "" {
			return nil, fmt.Errorf("text is required")
		}
		matches, err := eng.CheckText(ctx, p.Text)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = []annotation.Match{}
		}
		return map[string]any{
			"language": cfg.Language,
			"matches":  matches,
		}, nil
	})
}

// --- document ---

func registerDocumentTool(srv *mcp.Server, cfg *Config, opts []Option) {
	type req struct {
		Document json.RawMessage `json:"document"`
	}

	tool := &mcp.Tool{
		Name:        "proofwatch_document",
		Description: "Proofread a rich-text document (ProseMirror JSON) and return annotations at absolute document positions.",
		InputSchema: inputSchema(map[string]any{
			"document": map[string]any{"type": "object", "description": "Document tree in ProseMirror JSON"},
		}, []string{"document"}),
	}

	addTool(srv, tool, func(ctx context.Context, p *req) (any, error) {
		if len(p.Document) == 0 {
			return nil, fmt.Errorf("document is required")
		}
		doc, err := doctree.ParseJSON(p.Document)
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}

		// Manual mode: the single pass is triggered here, not debounced.
		runCfg := *cfg
		runCfg.Automatic = false
		eng, err := New(&runCfg, opts...)
		if err != nil {
			return nil, err
		}
		defer eng.Stop()

		eng.SetDocument(doc)
		eng.CheckNow()
		if err := eng.Wait(ctx); err != nil {
			return nil, err
		}

		st := eng.Status()
		anns := eng.Annotations()
		if anns == nil {
			anns = []annotation.Annotation{}
		}
		return map[string]any{
			"size":        st.DocumentSize,
			"language":    runCfg.Language,
			"annotations": anns,
		}, nil
	})
}

// --- languages ---

func registerLanguagesTool(srv *mcp.Server, lt *ltclient.Client) {
	tool := &mcp.Tool{
		Name:        "proofwatch_languages",
		Description: "List the languages supported by the configured check service.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	type req struct{}
	addTool(srv, tool, func(ctx context.Context, _ *req) (any, error) {
		langs, err := lt.Languages(ctx)
		if err != nil {
			return nil, err
		}
		if langs == nil {
			langs = []ltclient.Language{}
		}
		return map[string]any{"languages": langs}, nil
	})
}
