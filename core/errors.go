package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// Messages lists the field errors as "field: error" lines.
func (err ValidationError) Messages() []string {
	msgs := make([]string, 0, len(err.Fields))
	for _, fe := range err.Fields {
		if fe.Field == "" {
			msgs = append(msgs, fe.Error)
			continue
		}
		msgs = append(msgs, fe.Field+": "+fe.Error)
	}
	return msgs
}

// Detail is the single human readable message for the whole error.
func (err ValidationError) Detail() string {
	msgs := err.Messages()
	if len(msgs) == 0 {
		return err.Error()
	}
	return err.Error() + ": " + strings.Join(msgs, "; ")
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
