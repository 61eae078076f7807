package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/manifold/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TreeURI is the resource holding the current process tree.
const TreeURI = "manifold://tree"

// Supervisor is the part of the process tree exposed to agents.
type Supervisor interface {
	Tree() domain.TreeInfo
	Nodes() []domain.NodeInfo
	Node(id domain.NodeID) (domain.NodeInfo, bool)
	Live() int
	ShuttingDown() bool
	Shutdown()
}

// HealthResponse mirrors GET /health of the HTTP adapter.
type HealthResponse struct {
	Status string `json:"status" jsonschema_description:"ok, or shutting_down once shutdown has begun"`
	Live   int    `json:"live" jsonschema_description:"Number of live processes"`
}

// NodeArgs selects one node.
type NodeArgs struct {
	ID uint64 `json:"id"`
}

// Server wraps a supervisor and exposes it as an MCP Server.
type Server struct {
	sup       Supervisor
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server for sup.
func NewServer(sup Supervisor, version string, opts ...Option) *Server {
	s := &Server{
		sup:       sup,
		logger:    slog.Default(),
		mcpServer: server.NewMCPServer("manifold-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout. Only usable when the pipeline does not
// read the program's own stdin.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Handler serves the streamable HTTP transport on /mcp and the SSE transport
// on /sse and /message.
func (s *Server) Handler() http.Handler {
	sse := server.NewSSEServer(s.mcpServer)
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer))
	mux.Handle("/sse", corsMiddleware(sse.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sse.MessageHandler()))
	return mux
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Get the supervised process tree, master first, with every stage nested under the node that feeds it."),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.sup.Tree())
	})

	s.mcpServer.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List every node of the tree ordered by id."),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.sup.Nodes())
	})

	getNode := mcp.NewTool("get_node",
		mcp.WithDescription("Get one node: its process, restarts and state."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id; the master is 1")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOutputSchema[domain.NodeInfo](),
	)
	s.mcpServer.AddTool(getNode, mcp.NewStructuredToolHandler(s.handleGetNode))

	health := mcp.NewTool("get_health",
		mcp.WithDescription("Report whether the supervisor is running or shutting down, and how many processes are live."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOutputSchema[HealthResponse](),
	)
	s.mcpServer.AddTool(health, mcp.NewStructuredToolHandler(s.handleHealth))

	s.mcpServer.AddTool(mcp.NewTool("shutdown",
		mcp.WithDescription("Start a coordinated shutdown: stages are terminated children first, then the master. Returns immediately."),
		mcp.WithDestructiveHintAnnotation(true),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Info("shutdown requested over mcp")
		s.sup.Shutdown()
		return mcp.NewToolResultText("shutting_down"), nil
	})
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest, args NodeArgs) (domain.NodeInfo, error) {
	info, ok := s.sup.Node(domain.NodeID(args.ID))
	if !ok {
		return domain.NodeInfo{}, fmt.Errorf("node %d: %w", args.ID, domain.ErrUnknownNode)
	}
	return info, nil
}

func (s *Server) handleHealth(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (HealthResponse, error) {
	status := "ok"
	if s.sup.ShuttingDown() {
		status = "shutting_down"
	}
	return HealthResponse{Status: status, Live: s.sup.Live()}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TreeURI, "Process tree",
		mcp.WithResourceDescription("The supervised process tree as JSON"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.sup.Tree())
		if err != nil {
			return nil, fmt.Errorf("failed to encode tree: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TreeURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
