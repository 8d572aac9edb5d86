package ai

import (
    "errors"
    "fmt"
)

// Kind is the retry class of a model error.
type Kind int

const (
    KindTransient Kind = iota
    KindRateLimited
    KindModelNotReady
    KindFatal
)

func (k Kind) String() string {
    switch k {
    case KindRateLimited:
        return "rate_limited"
    case KindModelNotReady:
        return "model_not_ready"
    case KindFatal:
        return "fatal"
    default:
        return "transient"
    }
}

// Retryable reports whether another attempt could succeed.
func (k Kind) Retryable() bool { return k != KindFatal }

var (
    ErrRateLimited   = errors.New("rate_limited")
    ErrModelNotReady = errors.New("model_not_ready")
    ErrTransient     = errors.New("transient")
    ErrFatal         = errors.New("fatal")
)

func (k Kind) sentinel() error {
    switch k {
    case KindRateLimited:
        return ErrRateLimited
    case KindModelNotReady:
        return ErrModelNotReady
    case KindFatal:
        return ErrFatal
    default:
        return ErrTransient
    }
}

// Error wraps a provider error with its classification.
type Error struct {
    Kind     Kind
    Provider string
    Model    string
    Err      error
}

func (e *Error) Error() string {
    return fmt.Sprintf("%s: %s/%s: %v", e.Kind, e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// HTTPError represents an HTTP status error from an AI provider
type HTTPError struct {
    StatusCode int
    Body       string
    Provider   string
}

func (e *HTTPError) Error() string {
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

// Wrap classifies err and returns it as *Error. Nil stays nil and *Error passes through.
func Wrap(provider, model string, err error) error {
    if err == nil { return nil }
    var e *Error
    if errors.As(err, &e) { return err }
    return &Error{Kind: Classify(err), Provider: provider, Model: model, Err: err}
}

func IsRateLimited(err error) bool   { return errors.Is(err, ErrRateLimited) }
func IsModelNotReady(err error) bool { return errors.Is(err, ErrModelNotReady) }
func IsFatal(err error) bool         { return errors.Is(err, ErrFatal) }
