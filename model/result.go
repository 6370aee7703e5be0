package model

import "fmt"

// Result is the normalized outcome of one backend call: the upstream HTTP
// status plus the decoded response body. Every gateway method returns a
// Result even for transport failures, so route handlers deal with exactly
// one shape.
type Result struct {
	Status int
	Data   any
}

// OK reports whether the backend answered with a 2xx status.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// DataMap returns the body as a map when the backend sent a JSON object,
// or nil otherwise.
func (r Result) DataMap() map[string]any {
	m, _ := r.Data.(map[string]any)
	return m
}

// ID extracts a numeric "id" field from an object body. The backend encodes
// ids as JSON numbers; ok is false when the body has no usable id.
func (r Result) ID() (int64, bool) {
	m := r.DataMap()
	if m == nil {
		return 0, false
	}
	switch v := m["id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// UpstreamError wraps a failed backend Result so multi-step workflows can
// abort and still surface the backend's own status and body to the caller.
type UpstreamError struct {
	Result Result
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Result.Status)
}

// NewUpstreamError wraps a backend result as an error.
func NewUpstreamError(res Result) *UpstreamError {
	return &UpstreamError{Result: res}
}
