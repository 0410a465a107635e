package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how the orchestrator must react to them.
type ErrorKind int

const (
	// KindConfig is a bad endpoint, path or selector. Fatal, never retried.
	KindConfig ErrorKind = iota + 1
	// KindTransient is a connection reset or timeout. Retried with backoff.
	KindTransient
	// KindStructural means the site's markup or API shape changed. Surfaced
	// immediately.
	KindStructural
	// KindResource is a driver process that failed to start or connect.
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindStructural:
		return "structural"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Code identifies a specific failure.
type Code string

const (
	CodeInvalidConfig     Code = "invalid_config"
	CodeInvalidSelector   Code = "invalid_selector"
	CodeNotFound          Code = "not_found"
	CodeAttributeMissing  Code = "attribute_missing"
	CodeNoText            Code = "no_text"
	CodeNavigationFailed  Code = "navigation_failed"
	CodeWaitTimedOut      Code = "wait_timed_out"
	CodeInputFailed       Code = "input_failed"
	CodeClickFailed       Code = "click_failed"
	CodeStartFailed       Code = "start_failed"
	CodeStartTimeout      Code = "start_timeout"
	CodeConnectFailed     Code = "connect_failed"
	CodeOpenFailed        Code = "open_failed"
	CodeCsrfTokenMissing  Code = "csrf_token_missing"
	CodeSearchFailed      Code = "search_failed"
	CodeMalformedResponse Code = "malformed_response"
	CodeFieldMissing      Code = "field_missing"
	CodeFieldInvalid      Code = "field_invalid"
)

var defaultKinds = map[Code]ErrorKind{
	CodeInvalidConfig:     KindConfig,
	CodeInvalidSelector:   KindConfig,
	CodeNotFound:          KindStructural,
	CodeAttributeMissing:  KindStructural,
	CodeNoText:            KindStructural,
	CodeNavigationFailed:  KindTransient,
	CodeWaitTimedOut:      KindTransient,
	CodeInputFailed:       KindTransient,
	CodeClickFailed:       KindTransient,
	CodeStartFailed:       KindResource,
	CodeStartTimeout:      KindResource,
	CodeConnectFailed:     KindResource,
	CodeOpenFailed:        KindTransient,
	CodeCsrfTokenMissing:  KindStructural,
	CodeSearchFailed:      KindTransient,
	CodeMalformedResponse: KindStructural,
	CodeFieldMissing:      KindStructural,
	CodeFieldInvalid:      KindStructural,
}

// Error is the typed failure returned by every leaf component.
type Error struct {
	Code   Code
	Kind   ErrorKind
	Field  string
	Detail string
	Err    error
}

// NewError builds an Error with the default kind of code.
func NewError(code Code, detail string, err error) *Error {
	return &Error{Code: code, Kind: defaultKinds[code], Detail: detail, Err: err}
}

// NewFieldError builds an Error that names the record field it is about.
func NewFieldError(code Code, field string, err error) *Error {
	return &Error{Code: code, Kind: defaultKinds[code], Field: field, Err: err}
}

// WithKind returns a copy of e with a different kind.
func (e *Error) WithKind(kind ErrorKind) *Error {
	c := *e
	c.Kind = kind
	return &c
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code, so sentinels like ErrNotFound work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidSelector   = &Error{Code: CodeInvalidSelector}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrAttributeMissing  = &Error{Code: CodeAttributeMissing}
	ErrNoText            = &Error{Code: CodeNoText}
	ErrNavigationFailed  = &Error{Code: CodeNavigationFailed}
	ErrWaitTimedOut      = &Error{Code: CodeWaitTimedOut}
	ErrStartFailed       = &Error{Code: CodeStartFailed}
	ErrStartTimeout      = &Error{Code: CodeStartTimeout}
	ErrConnectFailed     = &Error{Code: CodeConnectFailed}
	ErrOpenFailed        = &Error{Code: CodeOpenFailed}
	ErrCsrfTokenMissing  = &Error{Code: CodeCsrfTokenMissing}
	ErrSearchFailed      = &Error{Code: CodeSearchFailed}
	ErrMalformedResponse = &Error{Code: CodeMalformedResponse}
	ErrFieldMissing      = &Error{Code: CodeFieldMissing}
	ErrFieldInvalid      = &Error{Code: CodeFieldInvalid}
	ErrInvalidConfig     = &Error{Code: CodeInvalidConfig}
)

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err may succeed if retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
