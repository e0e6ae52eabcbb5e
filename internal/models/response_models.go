package models

// ErrorResponse is the body of every non-2xx response, whether written by a handler or by
// middleware that aborts the request.
type ErrorResponse struct {
	Error string `json:"error"`
}
