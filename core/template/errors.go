package template

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPassageNotFound   = errors.Wrap(ErrNotFound, "passage")
	ErrQuestionNotFound  = errors.Wrap(ErrNotFound, "question")
	ErrEditorClosed      = errors.New("editor closed")
	ErrSaveInProgress    = errors.New("a save is already in progress")
	ErrValidationFailure = errors.New("template is invalid")
	ErrUnresolvedMedia   = errors.New("passage media has not been uploaded")
	ErrOptionIndex       = errors.New("option index out of range")
	ErrDuplicateRef      = errors.New("passage ref already in use")
	ErrNotMedia          = errors.New("passage does not hold media")
	ErrInvalidValue      = errors.New("invalid value")
)

// MediaError is returned by the client-side checks on a staged file, before any network call.
type MediaError struct {
	Type     ContentType
	Reason   string
	TooLarge bool
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s file rejected: %s", e.Type, e.Reason)
}

// UploadRejectedError means the asset service refused the file.
type UploadRejectedError struct {
	Status  int
	Message string
}

func (e *UploadRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upload rejected (status %d)", e.Status)
	}
	return "upload rejected: " + e.Message
}

// UploadNetworkError is a transport failure while signing or uploading a file.
type UploadNetworkError struct {
	Err error
}

func (e *UploadNetworkError) Error() string { return "upload failed: " + e.Err.Error() }
func (e *UploadNetworkError) Unwrap() error { return e.Err }

// SubmissionRejectedError means the import endpoint answered with a non-success status.
type SubmissionRejectedError struct {
	Status  int
	Message string
}

func (e *SubmissionRejectedError) Error() string { return e.Message }

// SubmissionNetworkError is a transport failure while submitting the payload.
type SubmissionNetworkError struct {
	Err error
}

func (e *SubmissionNetworkError) Error() string { return "submission failed: " + e.Err.Error() }
func (e *SubmissionNetworkError) Unwrap() error { return e.Err }
