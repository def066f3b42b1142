// Package generate orchestrates translation, budget optimization, transport
// and history recording for chat completion requests.
package generate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("generate: failed to connect to backend")
	ErrRequestTimeout   = errors.New("generate: request timeout")
	ErrInvalidResponse  = errors.New("generate: invalid response from backend")
	ErrEmptyResponse    = errors.New("generate: backend returned no choices")
)

// BackendError wraps a non-2xx HTTP response from the backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generate: backend returned status %d: %s", e.Status, e.Body)
}

// budgetVocabulary is matched against a 400 response body to detect a
// context/token limit rejection.
var budgetVocabulary = []string{
	"token limit",
	"context length",
	"context window",
	"maximum context",
	"max_tokens",
	"exceeded",
	"too long",
}

// IsBudgetError reports whether the error indicates the request exceeded
// the backend's context limit: either an explicit context-length-exceeded
// marker, or a 400 status whose body uses limit/maximum/exceeded/too-long
// vocabulary. Budget errors trigger exactly one retry with a harsher
// output-token budget.
func IsBudgetError(err error) bool {
	if err == nil {
		return false
	}
	var be *BackendError
	if !errors.As(err, &be) {
		return false
	}
	body := strings.ToLower(be.Body)
	if strings.Contains(body, "context_length_exceeded") {
		return true
	}
	if be.Status != http.StatusBadRequest {
		return false
	}
	for _, kw := range budgetVocabulary {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}
