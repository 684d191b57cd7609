package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx answer from the API.
type Error struct {
	Method string
	URL    string
	Status int
	Body   string
	// Message is the API's "message" field when the body carried one.
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("shop api: %s %s: %d %s", e.Method, e.URL, e.Status, msg)
}

// Unauthorized reports a 401 or 403.
func (e *Error) Unauthorized() bool {
	return e != nil && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// apiError is the API's error body. message is a string or a list of
// validation messages.
type apiError struct {
	Message json.RawMessage `json:"message"`
}

func newError(method, url string, status int, body []byte) *Error {
	e := &Error{Method: method, URL: url, Status: status, Body: string(body)}
	var ae apiError
	if json.Unmarshal(body, &ae) != nil || len(ae.Message) == 0 {
		return e
	}
	var one string
	if json.Unmarshal(ae.Message, &one) == nil {
		e.Message = one
		return e
	}
	var many []string
	if json.Unmarshal(ae.Message, &many) == nil {
		e.Message = strings.Join(many, "; ")
	}
	return e
}
