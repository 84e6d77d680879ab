// Package apierr provides the structured error envelope returned to UI
// clients, with one distinct code per user-actionable error class.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeUpstreamError     = "upstream_error"
	TypeServerError       = "server_error"
)

// Code constants. Each maps to a distinct user-facing message in the UI:
// retries_exhausted → "AI service is busy, please try again shortly";
// unauthorized → "Check your API key in Settings"; and so on.
const (
	CodeRateLimited        = "rate_limited"
	CodeUnauthorized       = "unauthorized"
	CodeMalformedRequest   = "malformed_request"
	CodeRetriesExhausted   = "retries_exhausted"
	CodeNetworkUnreachable = "network_unreachable"
	CodeInternalError      = "internal_error"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given
// HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteMalformed writes a 400 for requests the daemon could not parse.
func WriteMalformed(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusBadRequest, msg, TypeInvalidRequest, CodeMalformedRequest)
}

// WriteUnauthorized writes a 401 for missing or rejected API keys.
func WriteUnauthorized(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusUnauthorized, msg, TypeAuthenticationErr, CodeUnauthorized)
}

// WriteRateLimited writes a 429 with a Retry-After hint.
func WriteRateLimited(ctx *fasthttp.RequestCtx, msg string) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, msg, TypeRateLimitError, CodeRateLimited)
}

// WriteExhausted writes a 503 for requests that failed transiently on every
// allowed attempt, distinct from a single fatal failure so the UI can show
// "service busy, try later" instead of "check your configuration".
func WriteExhausted(ctx *fasthttp.RequestCtx, msg string) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusServiceUnavailable, msg, TypeUpstreamError, CodeRetriesExhausted)
}

// WriteUnreachable writes a 502 for network-level failures reaching the
// upstream API.
func WriteUnreachable(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusBadGateway, msg, TypeUpstreamError, CodeNetworkUnreachable)
}

// WriteInternal writes a 500 for unexpected daemon-side failures.
func WriteInternal(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusInternalServerError, msg, TypeServerError, CodeInternalError)
}
