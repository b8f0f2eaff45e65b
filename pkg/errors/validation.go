package errors

import (
	"fmt"
	"strings"
)

// FieldError describes one rejected argument.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Reason)
}

// ValidationErrorData contains structured data for argument errors
type ValidationErrorData struct {
	Target string       `json:"target,omitempty"`
	Fields []FieldError `json:"fields"`
}

// InvalidArgument reports a single malformed argument.
func InvalidArgument(field, reason string) MCPError {
	return NewError(
		CodeInvalidArgument,
		fmt.Sprintf("invalid argument %s: %s", field, reason),
		CategoryValidation,
		SeverityError,
	).WithData(&ValidationErrorData{Fields: []FieldError{{Field: field, Reason: reason}}})
}

// MissingArgument reports an absent required argument.
func MissingArgument(field string) MCPError {
	return NewError(
		CodeMissingArgument,
		fmt.Sprintf("missing required argument: %s", field),
		CategoryValidation,
		SeverityError,
	).WithData(&ValidationErrorData{Fields: []FieldError{{Field: field, Reason: "required"}}})
}

// InvalidArguments folds every problem found for target into one error.
// It returns nil when fields is empty.
func InvalidArguments(target string, fields []FieldError) MCPError {
	if len(fields) == 0 {
		return nil
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return NewError(
		CodeInvalidArgument,
		fmt.Sprintf("invalid arguments for %s: %s", target, strings.Join(parts, "; ")),
		CategoryValidation,
		SeverityError,
	).WithData(&ValidationErrorData{Target: target, Fields: fields})
}

// ExecutionFailed describes a tool handler failure. The registry turns it
// into an error-flagged tool result rather than returning it.
func ExecutionFailed(tool string, cause error) MCPError {
	return WrapError(
		cause,
		CodeExecutionFailed,
		fmt.Sprintf("tool %s failed: %v", tool, cause),
		CategoryExecution,
		SeverityWarning,
	)
}
