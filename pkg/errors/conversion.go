package errors

import (
	"encoding/json"

	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

// ToJSONRPCError converts any error to a JSON-RPC error object. Validation
// failures travel as InvalidParams so generic JSON-RPC peers understand them;
// the detailed field list rides in data.
func ToJSONRPCError(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	mcpErr, ok := AsMCPError(err)
	if !ok {
		return &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	code := mcpErr.Code()
	switch mcpErr.Category() {
	case CategoryValidation:
		code = CodeInvalidParams
	case CategoryNotFound:
		if code != CodeAmbiguousResource && code != CodeMethodNotFound {
			code = CodeResourceNotFound
		}
	}

	rpcErr := &protocol.Error{Code: protocol.ErrorCode(code), Message: mcpErr.Error()}
	if data := mcpErr.Data(); data != nil {
		if raw, err := json.Marshal(data); err == nil {
			rpcErr.Data = raw
		}
	}
	return rpcErr
}

// FromJSONRPCError converts a JSON-RPC error to an MCPError, decoding the
// structured data of the categories that carry any.
func FromJSONRPCError(rpcErr *protocol.Error) MCPError {
	if rpcErr == nil {
		return nil
	}

	code := int(rpcErr.Code)
	category := GetErrorCodeCategory(code)
	err := NewError(code, rpcErr.Message, category, GetErrorCodeSeverity(code))
	if len(rpcErr.Data) == 0 {
		return err
	}

	switch category {
	case CategoryNotFound:
		var data NotFoundData
		if json.Unmarshal(rpcErr.Data, &data) == nil {
			return err.WithData(&data)
		}
	case CategoryValidation:
		var data ValidationErrorData
		if json.Unmarshal(rpcErr.Data, &data) == nil {
			return err.WithData(&data)
		}
	}
	return err.WithData(rpcErr.Data)
}
