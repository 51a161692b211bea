package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransportError reports a network failure or a non-2xx response.
type TransportError struct {
	Op         string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Unauthorized reports whether the server rejected the bearer token.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Timeout reports whether the request hit its deadline.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsUnauthorized reports whether err is a TransportError for a rejected token.
func IsUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Unauthorized()
}
