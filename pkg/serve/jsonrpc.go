package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
)

// JSON-RPC 2.0 envelope types.
// See: https://www.jsonrpc.org/specification

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message) }

// Standard JSON-RPC 2.0 error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

const (
	ErrMsgParseError     = "Parse error"
	ErrMsgInvalidRequest = "Invalid Request"
	ErrMsgMethodNotFound = "Method not found"
	ErrMsgInvalidParams  = "Invalid params"
	ErrMsgInternalError  = "Internal error"
)

// maxRequestBytes bounds a request body; apply_changes carries whole files.
const maxRequestBytes = 8 << 20

// NewRPCError creates an error with the given code and message.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// NewRPCErrorWithData creates an error carrying additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) (*RPCError, error) {
	rpcErr := &RPCError{Code: code, Message: message}
	if data != nil {
		rawData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error data: %w", err)
		}
		rpcErr.Data = json.RawMessage(rawData)
	}
	return rpcErr, nil
}

func invalidParam(field, reason string) *RPCError {
	rpcErr, err := NewRPCErrorWithData(ErrCodeInvalidParams, reason, map[string]string{
		"field":  field,
		"reason": reason,
	})
	if err != nil {
		return NewRPCError(ErrCodeInvalidParams, reason)
	}
	return rpcErr
}

// MethodHandler handles one JSON-RPC method.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]MethodHandler
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]MethodHandler)}
}

// RegisterMethod registers handler under name, replacing any previous one.
func (r *MethodRegistry) RegisterMethod(name string, handler MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = handler
}

// Methods returns the registered method names, sorted.
func (r *MethodRegistry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch calls the handler registered for method.
func (r *MethodRegistry) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *RPCError) {
	r.mu.RLock()
	handler, ok := r.methods[method]
	r.mu.RUnlock()
	if !ok {
		return nil, NewRPCError(ErrCodeMethodNotFound, ErrMsgMethodNotFound)
	}
	return handler(ctx, params)
}

// ValidateRequest checks the envelope. The id and the params shape are
// method-specific and not checked here.
func ValidateRequest(req *Request) *RPCError {
	if req.JSONRPC != "2.0" {
		return NewRPCError(ErrCodeInvalidRequest, "jsonrpc version must be '2.0'")
	}
	if req.Method == "" {
		return NewRPCError(ErrCodeInvalidRequest, "method is required")
	}
	return nil
}

// ParseRequest decodes and validates a request.
func ParseRequest(data []byte) (*Request, *RPCError) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewRPCError(ErrCodeParseError, ErrMsgParseError)
	}
	if rpcErr := ValidateRequest(&req); rpcErr != nil {
		return nil, rpcErr
	}
	return &req, nil
}

// ReadRequest reads and parses a request from an HTTP body.
func ReadRequest(r *http.Request) (*Request, *RPCError) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return nil, NewRPCError(ErrCodeParseError, "failed to read request body")
	}
	if len(body) > maxRequestBytes {
		return nil, NewRPCError(ErrCodeInvalidRequest, "request body too large")
	}
	if len(body) == 0 {
		return nil, NewRPCError(ErrCodeInvalidRequest, "empty request body")
	}
	return ParseRequest(body)
}

// WriteResponse writes a result or an error as a JSON-RPC response.
func WriteResponse(w http.ResponseWriter, id interface{}, result interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")

	resp := Response{JSONRPC: "2.0", ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		rawResult, err := json.Marshal(result)
		if err != nil {
			resp.Error = NewRPCError(ErrCodeInternalError, ErrMsgInternalError)
		} else {
			resp.Result = json.RawMessage(rawResult)
		}
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
