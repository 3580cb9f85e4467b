package capabilities

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Kocoro-lab/repo-research/internal/interceptors"
)

// Transport names accepted in provider configuration. Both HTTP names select
// the MCP streamable HTTP transport.
const (
	TransportStdio          = "stdio"
	TransportHTTP           = "http"
	TransportStreamableHTTP = "streamable_http"
)

// ProviderConfig describes one capability provider.
type ProviderConfig struct {
	ID            string            `mapstructure:"id"`
	Name          string            `mapstructure:"name"`
	Transport     string            `mapstructure:"transport"`
	Command       string            `mapstructure:"command"`
	Args          []string          `mapstructure:"args"`
	Env           map[string]string `mapstructure:"env"`
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	BearerToken   string            `mapstructure:"bearer_token"`
	RatePerSecond float64           `mapstructure:"rate_per_second"`
	Burst         int               `mapstructure:"burst"`
}

// Session is the subset of an MCP client the manager drives.
// *client.Client satisfies it.
type Session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens a session to a provider.
type Dialer func(ctx context.Context, cfg ProviderConfig) (Session, error)

// DialMCP opens an MCP client over the configured transport.
func DialMCP(ctx context.Context, cfg ProviderConfig) (Session, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("provider %s: stdio transport requires a command", cfg.ID)
		}
		c, err := client.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("provider %s: start stdio client: %w", cfg.ID, err)
		}
		return c, nil
	case TransportHTTP, TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("provider %s: http transport requires a url", cfg.ID)
		}
		headers := make(map[string]string, len(cfg.Headers)+1)
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		if cfg.BearerToken != "" {
			headers["Authorization"] = "Bearer " + cfg.BearerToken
		}
		httpClient := &http.Client{Transport: interceptors.NewWorkflowHTTPRoundTripper(nil)}
		c, err := client.NewStreamableHttpClient(cfg.URL,
			transport.WithHTTPHeaders(headers),
			transport.WithHTTPBasicClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("provider %s: create http client: %w", cfg.ID, err)
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("provider %s: start http client: %w", cfg.ID, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported transport %q", cfg.ID, cfg.Transport)
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func initializeRequest(clientName, clientVersion string) mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	return req
}

func listToolsRequest() mcp.ListToolsRequest {
	return mcp.ListToolsRequest{}
}

func callToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// toResult flattens MCP content blocks into text. Blob resources are decoded
// from base64; undecodable blobs are passed through as-is.
func toResult(res *mcp.CallToolResult) Result {
	if res == nil {
		return Result{}
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		er, ok := mcp.AsEmbeddedResource(c)
		if !ok {
			continue
		}
		if tr, ok := mcp.AsTextResourceContents(er.Resource); ok {
			parts = append(parts, tr.Text)
		} else if br, ok := mcp.AsBlobResourceContents(er.Resource); ok {
			if decoded, err := base64.StdEncoding.DecodeString(br.Blob); err == nil {
				parts = append(parts, string(decoded))
			} else {
				parts = append(parts, br.Blob)
			}
		}
	}
	return Result{Text: strings.Join(parts, "\n"), IsError: res.IsError}
}
