package mcp

import (
	"context"
	"errors"
	"fmt"

	relayerrors "github.com/searchrelay/searchrelay/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeBackendUnavailable indicates the search backend is unreachable.
	ErrCodeBackendUnavailable = -32001

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts internal errors to MCP protocol errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var relayErr *relayerrors.RelayError
	if errors.As(err, &relayErr) {
		switch {
		case relayErr.Category == relayerrors.CategoryValidation:
			return &MCPError{Code: ErrCodeInvalidParams, Message: relayErr.Message}
		case relayErr.Code == relayerrors.ErrCodeBackendTimeout:
			return &MCPError{Code: ErrCodeTimeout, Message: relayErr.Message}
		case relayErr.Category == relayerrors.CategoryBackend:
			return &MCPError{Code: ErrCodeBackendUnavailable, Message: relayErr.Message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: relayErr.Message}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &MCPError{Code: ErrCodeTimeout, Message: "Request canceled"}
	}

	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}
