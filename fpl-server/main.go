package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"fpl-squad-mcp/internal/advisor"
	"fpl-squad-mcp/internal/config"
	"fpl-squad-mcp/internal/logging"
	"fpl-squad-mcp/internal/solverpool"
)

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func main() {
	var (
		configPath  = flag.String("config", "fplopt.yaml", "path to YAML config")
		addr        = flag.String("addr", "", "HTTP listen address (default from config)")
		mcpPath     = flag.String("path", "", "HTTP path for MCP endpoint (default from config)")
		dataRoot    = flag.String("data-root", "", "root directory for pool/squad JSON (default from config)")
		requireAuth = flag.Bool("require-auth", true, "require API key auth via FPL_MCP_API_KEY")
		authHeader  = flag.String("auth-header", "", "HTTP header to read API key from (default from config)")
		verbose     = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *mcpPath != "" {
		cfg.Server.Path = *mcpPath
	}
	if *dataRoot != "" {
		cfg.DataRoot = *dataRoot
	}
	if *authHeader != "" {
		cfg.Server.AuthHeader = *authHeader
	}
	cfg.Server.RequireAuth = cfg.Server.RequireAuth && *requireAuth

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Server.RequireAuth && cfg.Server.APIKey == "" {
		logger.Fatal("FPL_MCP_API_KEY is required (set env var or run with --require-auth=false)")
	}

	adv, err := advisor.New(cfg, logger)
	if err != nil {
		logger.Fatal("advisor init failed", zap.Error(err))
	}
	server, registry := newServer(adv)
	mux := newMux(server, registry, cfg.Server, logger)

	logger.Info("MCP HTTP server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("path", cfg.Server.Path),
		zap.String("data_root", cfg.DataRoot))
	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newServer(adv *advisor.Advisor) (*mcp.Server, []toolInfo) {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "fpl-squad-mcp",
			Version: "0.3.0",
		},
		nil,
	)

	registry := make([]toolInfo, 0, 8)

	addTool(server, &registry, &mcp.Tool{
		Name:        "optimize_squad",
		Description: "Highest predicted-value squad under the roster, club and budget rules",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args OptimizeArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildOptimizeSquad(ctx, adv, args))
	})

	addTool(server, &registry, &mcp.Tool{
		Name:        "plan_transfers",
		Description: "Best swaps (up to max_transfers) within an incremental budget; empty when nothing improves",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TransferArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildPlanTransfers(ctx, adv, args))
	})

	addTool(server, &registry, &mcp.Tool{
		Name:        "select_captain",
		Description: "Rank squad members for captain and vice-captain with a confidence score and fixture outlook",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CaptainArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildSelectCaptain(adv, args))
	})

	addTool(server, &registry, &mcp.Tool{
		Name:        "validate_selection",
		Description: "Check a selection against the roster rules and list every violation",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ValidateArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildValidateSelection(adv, args))
	})

	addTool(server, &registry, &mcp.Tool{
		Name:        "pick_lineup",
		Description: "Starting XI, bench order and armbands for a squad in a formation",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args LineupArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildPickLineup(adv, args))
	})

	addTool(server, &registry, &mcp.Tool{
		Name:        "budget_sweep",
		Description: "Optimal squad value at each of several budgets, solved concurrently",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SweepArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildBudgetSweep(ctx, adv, args))
	})

	return server, registry
}

func newMux(server *mcp.Server, registry []toolInfo, cfg config.ServerConfig, logger *zap.Logger) *http.ServeMux {
	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	apiKey := ""
	if cfg.RequireAuth {
		apiKey = cfg.APIKey
	}
	header := cfg.AuthHeader
	if header == "" {
		header = "X-API-Key"
	}

	withAuth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(header))
			if key == "" {
				if authz := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					key = strings.TrimSpace(authz[7:])
				}
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				logger.Warn("unauthorized request", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", withAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))

	mux.HandleFunc("/tools", withAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		b, _ := json.MarshalIndent(map[string]any{"tools": registry}, "", "  ")
		w.Write(b)
	}))

	path := cfg.Path
	if path == "" {
		path = "/mcp"
	}
	mux.HandleFunc(path, withAuth(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	return mux
}

func addTool[T any](server *mcp.Server, registry *[]toolInfo, tool *mcp.Tool, handler func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, any, error)) {
	*registry = append(*registry, toolInfo{Name: tool.Name, Description: tool.Description})
	mcp.AddTool(server, tool, handler)
}

func toolJSON(res []byte, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSONBytes(res), nil, nil
}

func toolJSONBytes(res []byte) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(res)},
		},
	}
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, solverpool.ErrDeadline) {
		err = solverpool.ErrDeadline
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)},
		},
	}
}
