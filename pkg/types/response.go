package types

// SuccessEnvelope wraps every 2xx body so clients can branch on the
// presence of "data" vs "error" without inspecting the status first.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public half of a typed error. Message and Details appear
// only for codes whose metadata allows exposing them; Details carries
// structured context such as the short line on an insufficient-stock
// rejection.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
