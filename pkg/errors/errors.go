package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	// Standard error sentinel values
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternalError      = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnavailable        = errors.New("service unavailable")
	ErrFailedPrecondition = errors.New("failed precondition")

	// Domain-specific error sentinel values
	ErrTranscriptionFailed   = errors.New("transcription failed")
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskAlreadyProcessing = errors.New("task is already processing")
	ErrTranscriptNotFound    = errors.New("indexed transcript not found")
	ErrIndexStorage          = errors.New("index storage failure")
	ErrNoScoringItems        = errors.New("scoring category has no weighted items")
	ErrMalformedPayload      = errors.New("malformed message payload")
)

// Error represents a structured error with location and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: err,
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	result := e.clone(0)
	result.Code = code
	return result
}

// clone copies the error so With* helpers never mutate the original.
func (e *Error) clone(extraFields int) *Error {
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+extraFields),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	if e.message == e.original.Error() {
		return e.message
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrNotFound,
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
		Code:     "NOT_FOUND",
	}
}

// NewTranscriptionFailed creates a new ErrTranscriptionFailed with additional context
func NewTranscriptionFailed(details string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{
		original: ErrTranscriptionFailed,
		message:  fmt.Sprintf("transcription failed: %s", details),
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
		Code:     "TRANSCRIPTION_FAILED",
	}
}

// NewTranscriptNotFound creates a new ErrTranscriptNotFound for a task id
func NewTranscriptNotFound(taskID string, fields ...map[string]interface{}) *Error {
	fieldMap := firstFieldMap(fields)
	fieldMap["task_id"] = taskID

	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrTranscriptNotFound,
		message:  fmt.Sprintf("indexed transcript not found: %s", taskID),
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     "TRANSCRIPT_NOT_FOUND",
	}
}

// NewNoScoringItems creates a new ErrNoScoringItems for a settings category
func NewNoScoringItems(settingsID string, fields ...map[string]interface{}) *Error {
	fieldMap := firstFieldMap(fields)
	fieldMap["settings_id"] = settingsID

	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrNoScoringItems,
		message:  fmt.Sprintf("scoring category %s has no weighted items", settingsID),
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     "NO_SCORING_ITEMS",
	}
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}

func firstFieldMap(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 && fields[0] != nil {
		return fields[0]
	}
	return make(map[string]interface{})
}
