package reports

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a definition, schedule or execution does
// not exist
var ErrNotFound = errors.New("not found")

// Definition error codes
const (
	CodeUnknownEntity        = "unknown_entity"
	CodeUnknownField         = "unknown_field"
	CodeUnknownRelation      = "unknown_relation"
	CodeUnsupportedOperator  = "unsupported_operator"
	CodeMalformedFilterValue = "malformed_filter_value"
	CodeInvalidGrouping      = "invalid_grouping"
	CodeInvalidColumn        = "invalid_column"
	CodeImmutableField       = "immutable_field"
)

// DefinitionError is a problem with the report definition itself, caught
// at plan-build time. It never reaches the data store.
type DefinitionError struct {
	Code    string
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func definitionErr(code, field, format string, args ...interface{}) *DefinitionError {
	return &DefinitionError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExecutionError wraps a store-level failure during query execution
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ExportError wraps a serialization or filesystem failure during export
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// DeliveryError wraps a transport failure delivering a scheduled export.
// The underlying execution stays completed since the export itself
// succeeded; the failure is recorded on the schedule.
type DeliveryError struct {
	Method string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Method, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsDefinitionError reports whether err is a plan-build-time definition
// problem (maps to a 400 at the HTTP surface)
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}
