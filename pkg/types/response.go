package types

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error body. Both the API and pkg/storefront
// decode it.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError.Details is omitted for codes whose details are internal.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
