package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout allows for world-scale geo.json responses, which can run to
// tens of megabytes.
const DefaultTimeout = 120 * time.Second

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
