package errors

import "github.com/ajitpratap0/mcp-relay/pkg/protocol"

// JSON-RPC 2.0 Standard Error Codes
const (
	CodeParseError     = int(protocol.ParseError)
	CodeInvalidRequest = int(protocol.InvalidRequest)
	CodeMethodNotFound = int(protocol.MethodNotFound)
	CodeInvalidParams  = int(protocol.InvalidParams)
	CodeInternalError  = int(protocol.InternalError)
)

// Codes that cross the wire. A server reports NotFound and InvalidArgument
// with these so the client can rebuild the same category.
const (
	CodeResourceNotFound = int(protocol.ResourceNotFound)
	CodeRequestTimeout   = int(protocol.RequestTimeout)
)

// Codes that only exist on the local side of a connection.
const (
	CodeOperationTimeout  = -32301
	CodeExecutionFailed   = -32302
	CodeConnectionFailed  = -32501
	CodeConnectionClosed  = -32502
	CodeHandshakeTimeout  = -32503
	CodeMissingArgument   = -32751
	CodeInvalidArgument   = -32752
	CodeAmbiguousResource = -32204
	CodeMalformedResponse = -32900
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code     int
	Name     string
	Category Category
	Severity Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", CategoryNotFound, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", CategoryInternal, SeverityError},

	CodeResourceNotFound: {CodeResourceNotFound, "NotFound", CategoryNotFound, SeverityError},
	CodeRequestTimeout:   {CodeRequestTimeout, "RequestTimeout", CategoryTimeout, SeverityError},

	CodeOperationTimeout:  {CodeOperationTimeout, "OperationTimeout", CategoryTimeout, SeverityError},
	CodeExecutionFailed:   {CodeExecutionFailed, "ExecutionFailed", CategoryExecution, SeverityWarning},
	CodeConnectionFailed:  {CodeConnectionFailed, "ConnectionFailed", CategoryConnection, SeverityCritical},
	CodeConnectionClosed:  {CodeConnectionClosed, "ConnectionClosed", CategoryClosed, SeverityError},
	CodeHandshakeTimeout:  {CodeHandshakeTimeout, "HandshakeTimeout", CategoryConnection, SeverityCritical},
	CodeMissingArgument:   {CodeMissingArgument, "MissingArgument", CategoryValidation, SeverityError},
	CodeInvalidArgument:   {CodeInvalidArgument, "InvalidArgument", CategoryValidation, SeverityError},
	CodeAmbiguousResource: {CodeAmbiguousResource, "AmbiguousResource", CategoryNotFound, SeverityWarning},
	CodeMalformedResponse: {CodeMalformedResponse, "MalformedResponse", CategoryProtocol, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}
