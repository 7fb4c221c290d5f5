package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	minion "github.com/femto/minion-novel"
	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TurnArgs are the arguments of run_turn.
type TurnArgs struct {
	App     string `json:"app"`
	User    string `json:"user"`
	Session string `json:"session"`
	Input   string `json:"input"`
}

// SessionArgs address a session.
type SessionArgs struct {
	App     string `json:"app"`
	User    string `json:"user"`
	Session string `json:"session"`
}

// TurnResponse is the structured output of run_turn.
type TurnResponse struct {
	FinalText    string          `json:"final_text" jsonschema_description:"The answer shown to the user"`
	InvocationID string          `json:"invocation_id" jsonschema_description:"Identifier of the turn"`
	Events       []*domain.Event `json:"events" jsonschema_description:"Events recorded during the turn"`
	Failure      *domain.Failure `json:"failure,omitempty" jsonschema_description:"Set when the turn ended in a failure answer"`
}

// StateResponse is the structured output of get_state.
type StateResponse struct {
	State  map[string]any `json:"state" jsonschema_description:"Session state"`
	Events int            `json:"events" jsonschema_description:"Number of events in the session log"`
}

// Server exposes a runner as an MCP server.
type Server struct {
	runner    *runner.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(r *runner.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		runner:    r,
		logger:    logger,
		mcpServer: server.NewMCPServer("minion-mcp", minion.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_turn",
		mcp.WithDescription("Send one user message to an app session and return the answer with the events of the turn."),
		mcp.WithString("app", mcp.Required(), mcp.Description("Registered app name")),
		mcp.WithString("user", mcp.Required(), mcp.Description("User id")),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id; a new one is created on first use")),
		mcp.WithString("input", mcp.Required(), mcp.Description("User message")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleRunTurn))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Read the state of a session."),
		mcp.WithString("app", mcp.Required(), mcp.Description("Registered app name")),
		mcp.WithString("user", mcp.Required(), mcp.Description("User id")),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("list_apps",
		mcp.WithDescription("List the registered apps."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.runner.Apps())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleRunTurn(ctx context.Context, _ mcp.CallToolRequest, args TurnArgs) (TurnResponse, error) {
	res, err := s.runner.RunTurn(ctx, runner.TurnRequest{
		AppName:   args.App,
		UserID:    args.User,
		SessionID: args.Session,
		Input:     args.Input,
	})
	if err != nil {
		s.logger.Warn("MCP run_turn failed", "error", err, "app", args.App)
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}
	return TurnResponse{
		FinalText:    res.FinalText,
		InvocationID: res.InvocationID,
		Events:       res.Events,
		Failure:      res.Failure,
	}, nil
}

func (s *Server) handleGetState(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	key := domain.NewSessionKey(args.App, args.User, args.Session)
	if err := key.Validate(); err != nil {
		return StateResponse{}, err
	}
	sess, err := s.runner.Sessions().Load(ctx, key)
	if err != nil {
		return StateResponse{}, fmt.Errorf("load session: %w", err)
	}
	return StateResponse{State: sess.State, Events: len(sess.Events)}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("minion://apps", "Registered Apps",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.runner.Apps())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "minion://apps",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
