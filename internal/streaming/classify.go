package streaming

import (
	"errors"
	"strings"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// errorKind is the taxonomy used for metadata.errorDetails.code, mirroring
// the Processor Registry's own classification in internal/processor/classify.go.
type errorKind string

const (
	kindValidation    errorKind = "ValidationError"
	kindAuth          errorKind = "AuthError"
	kindCredit        errorKind = "CreditInsufficient"
	kindNetwork       errorKind = "NetworkError"
	kindProvider      errorKind = "ProviderError"
	kindContextLength errorKind = "context_length_exceeded"
	kindInternal      errorKind = "InternalError"
	kindCanceled      errorKind = "Canceled"
)

func classify(err error) errorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, interfaces.ErrCreditInsufficient) {
		return kindCredit
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) && pe.Code == "context_length_exceeded" {
		return kindContextLength
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "canceled"):
		return kindCanceled
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "api key"):
		return kindAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return kindNetwork
	case strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return kindProvider
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "required") || strings.Contains(msg, "missing"):
		return kindValidation
	default:
		return kindInternal
	}
}
