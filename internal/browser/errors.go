package browser

import "errors"

// Kind classifies a browser/extraction failure so callers can decide
// whether to retry, fall back, or surface it fatally — spec.md §7's
// "kinds, not types" error taxonomy.
type Kind string

const (
	KindTransient    Kind = "transient"
	KindStaleElement Kind = "stale_element"
	KindCaptcha      Kind = "captcha_required"
	KindParser       Kind = "parser_miss"
	KindOversized    Kind = "oversized"
	KindPoisoned     Kind = "poisoned"
	KindFatalConfig  Kind = "fatal_config"
	KindFatal        Kind = "fatal"
)

// ClassifiedError pairs a Kind with the underlying error, wrapped with
// %w so errors.Is/errors.As keep working against it.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err as a ClassifiedError of the given kind. A nil err
// returns nil.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *ClassifiedError; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is classified as transient or a stale
// DOM element — the two kinds spec.md §7 says callers retry.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindTransient || kind == KindStaleElement
}
