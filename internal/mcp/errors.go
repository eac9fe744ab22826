// Package mcp serves the document search over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	doerrors "github.com/Aman-CERP/thedocs/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeDocumentNotFound indicates an unknown or hidden document.
	ErrCodeDocumentNotFound = -32001

	// ErrCodeBackendFailed indicates a store or backend failure.
	ErrCodeBackendFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Private documents are
// reported as not found so their names do not leak.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var de *doerrors.DocError
	if !errors.As(err, &de) {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}

	message := de.Message
	if de.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", de.Message, de.Suggestion)
	}

	switch {
	case de.Code == doerrors.ErrCodeRecordMissing,
		de.Code == doerrors.ErrCodeFileNotFound,
		de.Code == doerrors.ErrCodePrivateDocument:
		return &MCPError{Code: ErrCodeDocumentNotFound, Message: "Document not found."}
	case de.Category == doerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case de.Code == doerrors.ErrCodeBackendTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case de.Category == doerrors.CategoryIO, de.Category == doerrors.CategoryBackend:
		return &MCPError{Code: ErrCodeBackendFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}
