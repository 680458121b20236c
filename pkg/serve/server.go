// Package serve hosts the docs agent tools over JSON-RPC 2.0 on HTTP.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holon-run/docsagent/pkg/log"
	"github.com/holon-run/docsagent/pkg/tools"
)

// JSON-RPC methods served on /rpc.
const (
	MethodToolsList = "tools.list"
	MethodToolsCall = "tools.call"
)

// ToolProvider returns the tool set of a conversation. *tools.Provider
// implements it.
type ToolProvider interface {
	For(conversationID string) *tools.Set
}

// ToolsCallParams are the params of tools.call.
type ToolsCallParams struct {
	ConversationID string          `json:"conversation_id"`
	Name           string          `json:"name"`
	Arguments      json.RawMessage `json:"arguments,omitempty"`
}

// ToolsListResult is the result of tools.list.
type ToolsListResult struct {
	Tools []tools.Definition `json:"tools"`
}

// Server routes /rpc, /healthz and /metrics.
type Server struct {
	provider ToolProvider
	methods  *MethodRegistry
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewServer returns a Server. A nil gatherer disables /metrics.
func NewServer(provider ToolProvider, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		provider: provider,
		methods:  NewMethodRegistry(),
		gatherer: gatherer,
		now:      time.Now,
	}
	s.methods.RegisterMethod(MethodToolsList, s.handleToolsList)
	s.methods.RegisterMethod(MethodToolsCall, s.handleToolsCall)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("server listening", "addr", ln.Addr().String(), "path", "/rpc")

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	req, rpcErr := ReadRequest(r)
	if rpcErr != nil {
		log.Debug("rejected rpc request", "request_id", requestID, "code", rpcErr.Code, "error", rpcErr.Message)
		WriteResponse(w, nil, nil, rpcErr)
		return
	}

	start := s.now()
	result, rpcErr := s.methods.Dispatch(r.Context(), req.Method, req.Params)
	log.Debug("rpc handled",
		"request_id", requestID,
		"method", req.Method,
		"duration", s.now().Sub(start).String(),
		"ok", rpcErr == nil)
	WriteResponse(w, req.ID, result, rpcErr)
}

func (s *Server) handleToolsList(context.Context, json.RawMessage) (interface{}, *RPCError) {
	return ToolsListResult{Tools: tools.Definitions()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var p ToolsCallParams
	if len(params) == 0 {
		return nil, NewRPCError(ErrCodeInvalidParams, ErrMsgInvalidParams)
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewRPCError(ErrCodeInvalidParams, ErrMsgInvalidParams)
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return nil, invalidParam("conversation_id", "conversation_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, invalidParam("name", "name is required")
	}
	return s.provider.For(p.ConversationID).Call(ctx, p.Name, p.Arguments), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339Nano),
	})
}
