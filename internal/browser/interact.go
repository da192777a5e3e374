// File: internal/browser/interact.go
package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// errorCheckTimeout bounds the inline-error probe. The error banner either
// is already rendered or is not coming; waiting longer only slows the flow.
const errorCheckTimeout = 1500 * time.Millisecond

// Interactor performs element-level page operations by logical element name.
// Every operation requires a live session and resets the idle timer, so
// activity keeps the watchdog at bay.
type Interactor struct {
	mgr     *Manager
	sel     Selectors
	timeout time.Duration
	logger  *zap.Logger
}

func NewInteractor(mgr *Manager, sel Selectors, elementTimeout time.Duration, logger *zap.Logger) *Interactor {
	return &Interactor{
		mgr:     mgr,
		sel:     sel,
		timeout: elementTimeout,
		logger:  logger.Named("interact"),
	}
}

func (it *Interactor) ensureLive() error {
	if it.mgr.State() != StateLive {
		return ErrSessionExpired
	}
	it.mgr.Touch()
	return nil
}

// wrapElementErr classifies a driver failure. Timeouts mean the element
// never became ready; anything else on a click means the click was blocked.
func (it *Interactor) wrapElementErr(ctx context.Context, kind ElementErrorKind, selector string, err error) error {
	url, locErr := it.mgr.Driver().Location(ctx)
	if locErr != nil {
		url = "<unavailable>"
	}
	ee := &ElementError{Kind: kind, Selector: selector, URL: url, Err: err}
	it.logger.Warn("Element operation failed.",
		zap.String("kind", kind.String()),
		zap.String("selector", selector),
		zap.String("url", url),
		zap.Error(err))
	return ee
}

// Fill types a value into the named element.
func (it *Interactor) Fill(ctx context.Context, name, value string) error {
	if err := it.ensureLive(); err != nil {
		return err
	}
	selector := it.sel.Get(name)
	if err := it.mgr.Driver().Fill(ctx, selector, value, it.timeout); err != nil {
		return it.wrapElementErr(ctx, ElementNotReady, selector, err)
	}
	return nil
}

// FillPin types one digit into the i-th quick-login PIN input.
func (it *Interactor) FillPin(ctx context.Context, i int, digit string) error {
	if err := it.ensureLive(); err != nil {
		return err
	}
	selector := it.sel.Pin(i)
	if err := it.mgr.Driver().Fill(ctx, selector, digit, it.timeout); err != nil {
		return it.wrapElementErr(ctx, ElementNotReady, selector, err)
	}
	return nil
}

// Click clicks the named element.
func (it *Interactor) Click(ctx context.Context, name string) error {
	if err := it.ensureLive(); err != nil {
		return err
	}
	selector := it.sel.Get(name)
	if err := it.mgr.Driver().Click(ctx, selector, it.timeout); err != nil {
		kind := ClickBlocked
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ElementNotReady
		}
		return it.wrapElementErr(ctx, kind, selector, err)
	}
	return nil
}

// ReadText returns the text content of the named element.
func (it *Interactor) ReadText(ctx context.Context, name string) (string, error) {
	if err := it.ensureLive(); err != nil {
		return "", err
	}
	selector := it.sel.Get(name)
	text, err := it.mgr.Driver().Text(ctx, selector, it.timeout)
	if err != nil {
		return "", it.wrapElementErr(ctx, ElementNotReady, selector, err)
	}
	return text, nil
}

// CheckError probes for the bank's inline error banner after a submit. A
// rendered banner yields a CredentialError carrying the bank's literal
// message; an absent banner yields nil.
func (it *Interactor) CheckError(ctx context.Context) error {
	if err := it.ensureLive(); err != nil {
		return err
	}
	selector := it.sel.Get(SelServerError)
	text, err := it.mgr.Driver().Text(ctx, selector, errorCheckTimeout)
	if err != nil {
		// No banner appeared, which is the success path.
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	it.logger.Info("Bank rejected the submitted value.", zap.String("message", text))
	return &CredentialError{Message: text}
}

// Content returns the current page HTML, touching the idle timer.
func (it *Interactor) Content(ctx context.Context) (string, error) {
	if err := it.ensureLive(); err != nil {
		return "", err
	}
	return it.mgr.Driver().Content(ctx)
}

// Navigate loads a URL in the live page.
func (it *Interactor) Navigate(ctx context.Context, url string) error {
	if err := it.ensureLive(); err != nil {
		return err
	}
	return it.mgr.Driver().Navigate(ctx, url)
}

// Location returns the live page URL.
func (it *Interactor) Location(ctx context.Context) (string, error) {
	if err := it.ensureLive(); err != nil {
		return "", err
	}
	return it.mgr.Driver().Location(ctx)
}
