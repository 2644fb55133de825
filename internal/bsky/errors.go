package bsky

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AuthError reports a failed session handshake: bad credentials or an
// unreachable server.
type AuthError struct {
	Status  int    // HTTP status, 0 for transport failures
	Code    string // XRPC error code, e.g. "AuthenticationRequired"
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return "bluesky auth: " + describe(e.Status, e.Code, e.Message, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// PublishError reports a failed createRecord call. It is fatal for the run.
type PublishError struct {
	Status      int
	Code        string
	Message     string
	RateLimited bool
	ResetAt     time.Time // from the ratelimit-reset header, zero if absent
	Err         error
}

func (e *PublishError) Error() string {
	msg := "bluesky publish: " + describe(e.Status, e.Code, e.Message, e.Err)
	if e.RateLimited && !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(" (rate limit resets %s)", e.ResetAt.UTC().Format(time.RFC3339))
	}
	return msg
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// xrpcError is a non-2xx XRPC response.
type xrpcError struct {
	Status  int         `json:"-"`
	Code    string      `json:"error"`
	Message string      `json:"message"`
	Header  http.Header `json:"-"`
}

func (e *xrpcError) Error() string {
	return describe(e.Status, e.Code, e.Message, nil)
}

func (e *xrpcError) rateLimited() bool {
	return e.Status == http.StatusTooManyRequests || e.Code == "RateLimitExceeded"
}

func (e *xrpcError) resetAt() time.Time {
	v := strings.TrimSpace(e.Header.Get("ratelimit-reset"))
	if v == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

func describe(status int, code, message string, err error) string {
	var parts []string
	if status > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", status))
	}
	if code != "" {
		parts = append(parts, code)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if err != nil && status == 0 {
		parts = append(parts, err.Error())
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, ": ")
}
