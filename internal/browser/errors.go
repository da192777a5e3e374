// File: internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired reports that the session is absent or its page is
	// unusable. The caller owns recovery: call EnsurePage and retry.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotDetected reports that classification exhausted its retries
	// without matching a known page. Retryable, never fatal.
	ErrNotDetected = errors.New("page type not detected")

	// ErrPageNotResolvable reports that a login step could not classify the
	// current page at all. Surfaced to the user as "log in again".
	ErrPageNotResolvable = errors.New("page not resolvable")

	// ErrStepPending reports that a submitted step has not produced a page
	// transition yet, but the page is still alive. Retry the same step.
	ErrStepPending = errors.New("login step still pending")

	// ErrRetriesExhausted is returned by the retry helper when all attempts
	// are consumed without the operation reporting completion.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ElementErrorKind distinguishes element-level failures.
type ElementErrorKind int

const (
	// ElementNotReady means the element never became visible in time.
	ElementNotReady ElementErrorKind = iota
	// ClickBlocked means the element was found but the click was
	// intercepted or otherwise rejected.
	ClickBlocked
)

func (k ElementErrorKind) String() string {
	if k == ClickBlocked {
		return "click blocked"
	}
	return "element not ready"
}

// ElementError is an element-level failure, wrapped with enough context
// (selector, page URL) to diagnose selector drift from the log alone.
type ElementError struct {
	Kind     ElementErrorKind
	Selector string
	URL      string
	Err      error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: selector %q on page %q: %v", e.Kind, e.Selector, e.URL, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// IsElementNotReady reports whether err is an ElementNotReady element error.
func IsElementNotReady(err error) bool {
	var ee *ElementError
	return errors.As(err, &ee) && ee.Kind == ElementNotReady
}

// IsClickBlocked reports whether err is a ClickBlocked element error.
func IsClickBlocked(err error) bool {
	var ee *ElementError
	return errors.As(err, &ee) && ee.Kind == ClickBlocked
}

// CredentialError carries the bank's literal inline rejection text. The
// message is forwarded verbatim; it often contains actionable detail
// ("too many attempts", "wrong code") that must reach the user.
type CredentialError struct {
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials rejected: %s", e.Message)
}

// AsCredentialError extracts a CredentialError from err, if present.
func AsCredentialError(err error) (*CredentialError, bool) {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
