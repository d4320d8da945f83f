package processor

import (
	"errors"
	"strings"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrorKind is the taxonomy used to decide retry eligibility and
// the user-facing error code.
type ErrorKind string

const (
	KindValidation     ErrorKind = "ValidationError"
	KindNotFound       ErrorKind = "NotFoundError"
	KindAuth           ErrorKind = "AuthError"
	KindCredit         ErrorKind = "CreditInsufficient"
	KindNetwork        ErrorKind = "NetworkError"
	KindProvider       ErrorKind = "ProviderError"
	KindContextLength  ErrorKind = "context_length_exceeded"
	KindInternal       ErrorKind = "InternalError"
	KindCanceled       ErrorKind = "Canceled"
)

// classify maps an error into its taxonomy. Unclassified errors
// default to InternalError, which is not retried.
func classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, interfaces.ErrCreditInsufficient) {
		return KindCredit
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) && pe.Code == "context_length_exceeded" {
		return KindContextLength
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "canceled"):
		return KindCanceled
	case strings.Contains(msg, "not found"):
		return KindNotFound
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "api key"):
		return KindAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return KindNetwork
	case strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return KindProvider
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "required") || strings.Contains(msg, "missing"):
		return KindValidation
	default:
		return KindInternal
	}
}

// retryable reports whether kind's taxonomy allows a retry.
func retryable(kind ErrorKind) bool {
	switch kind {
	case KindNetwork, KindProvider:
		return true
	default:
		return false
	}
}
