package mcpmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrConfigNotFound is matched by errors for unregistered server ids.
	ErrConfigNotFound = errors.New("mcpmgr: unknown server")
	// ErrManagerClosed is returned once Close has been called.
	ErrManagerClosed = errors.New("mcpmgr: manager closed")
)

// ErrorKind classifies failures surfaced by the connection layer.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindConfigNotFound  ErrorKind = "config_not_found"
	KindConnection      ErrorKind = "connection"
	KindTransportBroken ErrorKind = "transport_broken"
	KindRemote          ErrorKind = "remote"
	KindCanceled        ErrorKind = "canceled"
	KindUnknown         ErrorKind = "unknown"
)

// ConnectionError reports a failure to start a transport or complete the
// initialization handshake. Nothing is cached when it is returned.
type ConnectionError struct {
	ServerID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpmgr: connect %q: %v", e.ServerID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportBrokenError reports that a previously healthy session stopped
// responding. The session has been evicted by the time the error is seen.
type TransportBrokenError struct {
	ServerID string
	Err      error
}

func (e *TransportBrokenError) Error() string {
	return fmt.Sprintf("mcpmgr: transport to %q broken: %v", e.ServerID, e.Err)
}

func (e *TransportBrokenError) Unwrap() error { return e.Err }

// RemoteError reports that the backend answered but signalled failure. The
// session stays cached.
type RemoteError struct {
	ServerID string
	Method   string
	Message  string
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *RemoteError) Unwrap() error { return e.Err }

// KindOf classifies err into one of the ErrorKind values.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		connErr   *ConnectionError
		brokenErr *TransportBrokenError
		remoteErr *RemoteError
	)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		return KindConfigNotFound
	case errors.As(err, &brokenErr):
		return KindTransportBroken
	case errors.As(err, &connErr), errors.Is(err, ErrManagerClosed):
		return KindConnection
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// isTransportFailure reports whether err means the underlying connection is
// gone rather than that the remote rejected a request.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mcp.ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused")
}

// codeMethodNotFound is the JSON-RPC code for an unimplemented method.
const codeMethodNotFound = -32601

// IsMethodUnavailable reports whether err carries a JSON-RPC "method not
// found" reply from the remote. Only errors from a live session can match;
// connection failures never do, whatever their text.
func IsMethodUnavailable(err error) bool {
	switch KindOf(err) {
	case KindNone, KindConfigNotFound, KindConnection, KindTransportBroken:
		return false
	}
	code, ok := rpcErrorCode(err)
	return ok && code == codeMethodNotFound
}

// rpcErrorCode finds the first JSON-RPC error in err's chain and returns its
// code. go-sdk keeps its wire error type internal, so links are matched by
// their JSON shape ({"code": ..., "message": ...}).
func rpcErrorCode(err error) (int64, bool) {
	for err != nil {
		if code, ok := wireCode(err); ok {
			return code, true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if code, ok := rpcErrorCode(e); ok {
					return code, true
				}
			}
			return 0, false
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}

func wireCode(err error) (int64, bool) {
	raw, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		return 0, false
	}
	var wire struct {
		Code    *int64  `json:"code"`
		Message *string `json:"message"`
	}
	if json.Unmarshal(raw, &wire) != nil || wire.Code == nil || wire.Message == nil {
		return 0, false
	}
	return *wire.Code, true
}
