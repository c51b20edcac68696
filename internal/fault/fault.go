package fault

import (
	"errors"
	"fmt"
)

var (
	ErrFormNotFound         = errors.New("form not found")
	ErrFormExpired          = errors.New("form has expired")
	ErrFormInactive         = errors.New("form is not active")
	ErrNotOwner             = errors.New("form belongs to another user")
	ErrResponseNotFound     = errors.New("response not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDuplicateTransient   = errors.New("duplicate frontend id in document")
	ErrDuplicateAnswer      = errors.New("duplicate answer for question")
)

type ErrorType int

const (
	ErrClient ErrorType = iota
	ErrInternal
)

type Fault struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.typeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.typeString(), e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

func (e *Fault) typeString() string {
	switch e.Type {
	case ErrClient:
		return "ClientError"
	case ErrInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// NewClientError creates a new client error.
func NewClientError(msg string, err error) error {
	return &Fault{Type: ErrClient, Message: msg, Err: err}
}

// NewInternalError creates a new internal server error.
func NewInternalError(msg string, err error) error {
	return &Fault{Type: ErrInternal, Message: msg, Err: err}
}

// IsClientError checks if an error is a client error.
func IsClientError(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Type == ErrClient
	}
	return false
}

// MissingQuestion identifies a required question that received no answer.
type MissingQuestion struct {
	QuestionID   int64  `json:"question_id"`
	QuestionText string `json:"question_text"`
}

// ValidationError rejects a submission with the full detail the client
// needs to repair it: which required questions are unanswered and which
// submitted question ids do not belong to the form.
type ValidationError struct {
	MissingRequired  []MissingQuestion `json:"missing_questions,omitempty"`
	ForeignQuestions []int64           `json:"invalid_questions,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.MissingRequired) > 0 {
		return fmt.Sprintf("missing %d required question(s)", len(e.MissingRequired))
	}
	return fmt.Sprintf("%d question(s) do not belong to this form", len(e.ForeignQuestions))
}
