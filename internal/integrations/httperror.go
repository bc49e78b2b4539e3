package integrations

import (
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 4 << 10

// HTTPError is returned by outbound clients for non-2xx responses.
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, e.Body)
}

// CheckResponse turns a non-2xx response into *HTTPError, reading a bounded
// prefix of the body for the message.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{Service: service, StatusCode: resp.StatusCode, Body: string(b)}
}
