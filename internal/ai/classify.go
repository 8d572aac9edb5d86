package ai

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

type statusCoder interface {
	HTTPStatusCode() int
}

// Classify maps a provider error to its retry kind.
// Typed checks run first, then message matching. Unknown errors are transient.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrModelNotReady):
		return KindModelNotReady
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if k, ok := kindForCode(apiErr.ErrorCode()); ok {
			return k
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if k, ok := kindForStatus(httpErr.StatusCode); ok {
			return k
		}
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if k, ok := kindForStatus(sc.HTTPStatusCode()); ok {
			return k
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return kindForMessage(err.Error())
}

func kindForCode(code string) (Kind, bool) {
	switch code {
	case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException", "ProvisionedThroughputExceededException":
		return KindRateLimited, true
	case "ModelNotReadyException", "ModelTimeoutException":
		return KindModelNotReady, true
	case "ServiceUnavailableException", "InternalServerException", "InternalFailure", "ModelStreamErrorException":
		return KindTransient, true
	case "ValidationException", "AccessDeniedException", "UnrecognizedClientException",
		"InvalidSignatureException", "ResourceNotFoundException", "ModelErrorException", "ExpiredTokenException":
		return KindFatal, true
	}
	return KindTransient, false
}

func kindForStatus(status int) (Kind, bool) {
	switch {
	case status == 429:
		return KindRateLimited, true
	case status == 408:
		return KindTransient, true
	case status >= 500 && status < 600:
		return KindTransient, true
	case status >= 400 && status < 500:
		return KindFatal, true
	}
	return KindTransient, false
}

func kindForMessage(msg string) Kind {
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "throttl") || strings.Contains(s, "too many requests") || strings.Contains(s, "rate limit"):
		return KindRateLimited
	case strings.Contains(s, "model is not ready") || strings.Contains(s, "modelnotready") || strings.Contains(s, "model timeout"):
		return KindModelNotReady
	case strings.Contains(s, "unrecognizedclient") || strings.Contains(s, "invalidsignature") ||
		strings.Contains(s, "security token") || strings.Contains(s, "access denied") ||
		strings.Contains(s, "validation failed") || strings.Contains(s, "malformed"):
		return KindFatal
	}
	return KindTransient
}
