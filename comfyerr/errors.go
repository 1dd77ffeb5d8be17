package comfyerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	NormalizationError        Code = "NORMALIZATION_ERROR"
	NodeNotFound              Code = "NODE_NOT_FOUND"
	InputsNotFound            Code = "INPUTS_NOT_FOUND"
	RemoteTemplateFetchFailed Code = "REMOTE_TEMPLATE_FETCH_FAILED"
	RemoteUserdataFetchFailed Code = "REMOTE_USERDATA_FETCH_FAILED"
	RemoteWorkflowNotFound    Code = "REMOTE_WORKFLOW_NOT_FOUND"
	Timeout                   Code = "TIMEOUT"
	InvalidParam              Code = "INVALID_PARAM"
	UnknownParam              Code = "UNKNOWN_PARAM"
	MissingRequiredParam      Code = "MISSING_REQUIRED_PARAM"
	MissingSeedTarget         Code = "MISSING_SEED_TARGET"
	APIError                  Code = "API_ERROR"
	PresetNotFound            Code = "PRESET_NOT_FOUND"
	PresetSourceAmbiguous     Code = "PRESET_SOURCE_AMBIGUOUS"
	InvalidPreset             Code = "INVALID_PRESET"
	InvalidWorkflow           Code = "INVALID_WORKFLOW"
	FileNotFound              Code = "FILE_NOT_FOUND"
	WorkdirNotFound           Code = "WORKDIR_NOT_FOUND"
	InvalidName               Code = "INVALID_NAME"
	FileExists                Code = "FILE_EXISTS"
	Unexpected                Code = "UNEXPECTED"
)

// Exit codes returned by the CLI.
const (
	ExitValidation = 2
	ExitRemote     = 3
)

// Error is a coded failure carrying structured details for machine-readable output.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns e with details set. The receiver is modified.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Wrap records the underlying cause. The receiver is modified.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ExitCode maps the error code to the process exit status.
func (e *Error) ExitCode() int {
	switch e.Code {
	case APIError, Timeout, RemoteTemplateFetchFailed, RemoteUserdataFetchFailed, Unexpected:
		return ExitRemote
	}
	return ExitValidation
}

// Sentinel returns a bare error for use with errors.Is.
func Sentinel(code Code) error {
	return &Error{Code: code}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the code of err, or Unexpected for foreign errors.
func CodeOf(err error) Code {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return Unexpected
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, Sentinel(code))
}

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ce, ok := As(err); ok {
		return ce.ExitCode()
	}
	return ExitRemote
}

type PayloadError struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Payload is the JSON document printed for failures in machine-readable mode.
type Payload struct {
	OK    bool         `json:"ok"`
	Error PayloadError `json:"error"`
}

func PayloadFrom(err error) Payload {
	if ce, ok := As(err); ok {
		return Payload{Error: PayloadError{Code: ce.Code, Message: ce.Message, Details: ce.Details}}
	}
	return Payload{Error: PayloadError{
		Code:    Unexpected,
		Message: err.Error(),
		Details: map[string]any{"cause": err.Error()},
	}}
}
