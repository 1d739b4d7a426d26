package commerce

import (
	"errors"
	"fmt"
)

// Errors returned by the commerce client.
var (
	// ErrRequestFailed wraps every request that did not produce a usable response.
	ErrRequestFailed = errors.New("commerce: request failed")
	// ErrInvalidJSON is returned when a response body is not a JSON object.
	ErrInvalidJSON = errors.New("commerce: response is not a JSON object")
	// ErrMissingID is returned when a create call answers without an id.
	ErrMissingID = errors.New("commerce: response has no id")
	// ErrLicenseeNotFound is returned when a licensee lookup matches nothing.
	ErrLicenseeNotFound = errors.New("commerce: licensee not found")
	// ErrLicenseeAmbiguous is returned when a licensee lookup matches several records.
	ErrLicenseeAmbiguous = errors.New("commerce: multiple licensees found")
	// ErrPaginationStalled is returned when the served offset stops advancing
	// while more records are announced.
	ErrPaginationStalled = errors.New("commerce: pagination offset did not advance")
)

// maxErrorBody caps the response body kept on an HTTPError.
const maxErrorBody = 500

// HTTPError is a response with a status of 400 or above.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if body == "" {
		body = "No response body"
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, body)
}

func newHTTPError(method, url string, status int, body []byte) *HTTPError {
	return &HTTPError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       truncate(string(body), maxErrorBody),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
