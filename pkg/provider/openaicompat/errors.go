package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/werkstatt/pkg/api"
)

// HTTPError is a non-2xx answer of the backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// MapHTTPError converts an HTTP response with a non-2xx status code into
// a model error wrapping an *HTTPError.
func MapHTTPError(resp *http.Response) *api.Error {
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    ExtractErrorMessage(resp.Body),
	}

	var message string
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		message = "invalid request to backend"
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		message = "backend authentication failed"
	case resp.StatusCode == http.StatusNotFound:
		message = "backend model or endpoint not found"
	case resp.StatusCode == http.StatusTooManyRequests:
		message = "backend rate limit exceeded"
	case resp.StatusCode >= http.StatusInternalServerError:
		message = "backend server error"
	default:
		message = "unexpected backend error"
	}
	return api.NewModelError(message, httpErr)
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS resolution failure) into a model error.
func MapNetworkError(err error) *api.Error {
	return api.NewModelError("backend connection error", err)
}

// ExtractErrorMessage tries to parse the response body as a ChatErrorResponse
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
