package relay

import "fmt"

// UpstreamError is a non-2xx reply from the backend. The HTTP layer maps
// it to 502 with the backend's status and body attached.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Snippet())
}

// Snippet returns the first 200 bytes of the backend body, enough to
// diagnose the failure without relaying a full error page.
func (e *UpstreamError) Snippet() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// ConnectError is a transport-level failure reaching the backend: refused
// connection, DNS failure, timeout. The HTTP layer maps it to 503.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "backend unreachable: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
