package models

import "errors"

// ErrorDetails builds the metadata.errorDetails payload spec.md §7
// requires on a failed job: {code, message, provider_error?,
// fallback_attempted}. kind is the processor's error taxonomy label,
// used as code unless cause unwraps to a more specific ProviderError.
func ErrorDetails(kind string, cause error, fallbackAttempted bool) map[string]interface{} {
	details := map[string]interface{}{
		"code":               kind,
		"message":            cause.Error(),
		"fallback_attempted": fallbackAttempted,
	}

	var pe *ProviderError
	if errors.As(cause, &pe) {
		details["code"] = pe.Code
		providerErr := map[string]interface{}{"message": pe.Message}
		if pe.Code == "context_length_exceeded" {
			providerErr["requested_tokens"] = pe.RequestedTokens
			providerErr["model_limit"] = pe.ModelLimit
		}
		details["provider_error"] = providerErr
	}

	return details
}

// RetryHistoryPatch builds the metadata.retry_count/errors[] patch for a
// failed attempt. current is the job's metadata as it stood before this
// failure; DeepMergeJSON overwrites arrays and scalars wholesale, so the
// running count and history have to be read out of current and
// recomputed here rather than merged incrementally.
func RetryHistoryPatch(current map[string]interface{}, errorDetails map[string]interface{}) map[string]interface{} {
	count := 0
	switch v := current["retry_count"].(type) {
	case float64:
		count = int(v)
	case int:
		count = v
	}
	count++

	var history []interface{}
	if existing, ok := current["errors"].([]interface{}); ok {
		history = append(history, existing...)
	}
	history = append(history, map[string]interface{}{
		"code":    errorDetails["code"],
		"message": errorDetails["message"],
		"at":      NowMillis(),
	})

	return map[string]interface{}{
		"retry_count": count,
		"errors":      history,
	}
}
