package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Echo is a smoke-test handler: it returns the payload unchanged. Useful
// for exercising the dispatcher/router/event-bus path without a real
// upstream dependency.
func Echo(taskID, payload string, cc *CallContext) (string, *HandlerError) {
	return payload, nil
}

// HTTPCall is a reference handler exercising ctx.call_provider (§4.8):
// payload is treated as a bare URL, fetched with GET, and the response
// body (truncated to maxBodyLen) becomes the result.
func HTTPCall(taskID, payload string, cc *CallContext) (string, *HandlerError) {
	url := strings.TrimSpace(payload)
	if url == "" {
		return "", &HandlerError{Classification: "validation", Message: "empty payload", Retryable: false}
	}

	var body string
	var statusCode int

	err := cc.CallProvider(30*time.Second, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = string(raw)

		if resp.StatusCode >= 400 {
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return nil
	})

	if err != nil {
		return "", classifyHTTPError(err, statusCode)
	}
	return body, nil
}

const maxBodyLen = 64 * 1024

func classifyHTTPError(err error, statusCode int) *HandlerError {
	he := &HandlerError{Message: err.Error(), StatusCode: statusCode, Retryable: true}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || statusCode == http.StatusNotFound:
		he.Classification = "auth"
		he.Retryable = false
	case statusCode == http.StatusTooManyRequests:
		he.Classification = "rate_limited"
	case statusCode == http.StatusPaymentRequired:
		he.Classification = "credits_exhausted"
	case statusCode >= 500:
		he.Classification = "service_unavailable"
	default:
		he.Classification = "network_error"
	}
	return he
}
