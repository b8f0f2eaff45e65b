package errors

import (
	"fmt"
	"time"
)

// ConnectionErrorData contains structured data for connection-related errors
type ConnectionErrorData struct {
	Transport string        `json:"transport"`
	Target    string        `json:"target,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// ConnectionFailed reports a counterpart process that could not be started
// or reached. The caller may retry Connect.
func ConnectionFailed(transport, target string, cause error) MCPError {
	message := fmt.Sprintf("failed to connect via %s", transport)
	if target != "" {
		message = fmt.Sprintf("failed to connect via %s to %s", transport, target)
	}
	data := &ConnectionErrorData{Transport: transport, Target: target}
	if cause != nil {
		data.Reason = cause.Error()
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return WrapError(cause, CodeConnectionFailed, message, CategoryConnection, SeverityCritical).WithData(data)
}

// HandshakeTimeout reports an initialize exchange that did not finish in time.
func HandshakeTimeout(transport string, timeout time.Duration) MCPError {
	return NewError(
		CodeHandshakeTimeout,
		fmt.Sprintf("handshake over %s timed out after %v", transport, timeout),
		CategoryConnection,
		SeverityCritical,
	).WithData(&ConnectionErrorData{Transport: transport, Timeout: timeout})
}

// ConnectionClosed is delivered to every request whose transport stopped
// before a response arrived, and to requests sent after it stopped.
func ConnectionClosed(transport string, cause error) MCPError {
	message := fmt.Sprintf("%s connection closed", transport)
	data := &ConnectionErrorData{Transport: transport}
	if cause != nil {
		data.Reason = cause.Error()
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return WrapError(cause, CodeConnectionClosed, message, CategoryClosed, SeverityError).WithData(data)
}

// OperationTimeout reports a request that exceeded its bounded wait.
func OperationTimeout(method string, timeout time.Duration) MCPError {
	return NewError(
		CodeOperationTimeout,
		fmt.Sprintf("%s timed out after %v", method, timeout),
		CategoryTimeout,
		SeverityError,
	).WithContext(&Context{Method: method})
}

// MalformedResponse reports a counterpart answer that failed validation.
func MalformedResponse(method string, cause error) MCPError {
	return WrapError(
		cause,
		CodeMalformedResponse,
		fmt.Sprintf("malformed %s response: %v", method, cause),
		CategoryProtocol,
		SeverityError,
	).WithContext(&Context{Method: method})
}
