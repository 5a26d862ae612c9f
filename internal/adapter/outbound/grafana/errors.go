package grafana

import "fmt"

// APIError is a non-2xx response from a Grafana cluster. The message is
// the server-reported message when the body was parseable, the raw body
// otherwise (truncated).
type APIError struct {
	Cluster    string
	StatusCode int
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("grafana cluster %q: status %d: %s", e.Cluster, e.StatusCode, e.Message)
}
