// File: internal/browser/login.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// pinDigits is the length of the bank's quick-login PIN.
const pinDigits = 4

var greetingRe = regexp.MustCompile(`Здравствуйте, (.+?)!`)

// Router drives one login step at a time: classify the current page, perform
// the fill-and-submit sequence that page expects, then re-classify to detect
// the transition. Interstitial pages are auto-advanced and never surface to
// the caller.
type Router struct {
	mgr        *Manager
	it         *Interactor
	classifier *Classifier
	logger     *zap.Logger
}

func NewRouter(mgr *Manager, it *Interactor, classifier *Classifier, logger *zap.Logger) *Router {
	return &Router{
		mgr:        mgr,
		it:         it,
		classifier: classifier,
		logger:     logger.Named("login"),
	}
}

// CurrentPage classifies the page the session is on, auto-advancing
// interstitials until a renderable type (or an error) comes out.
func (r *Router) CurrentPage(ctx context.Context) (PageType, error) {
	t, err := r.classifier.Classify(ctx)
	if err != nil {
		if errors.Is(err, ErrNotDetected) {
			return PageUnknown, ErrPageNotResolvable
		}
		return PageUnknown, err
	}
	return r.advanceInterstitials(ctx, t)
}

// advanceInterstitials runs the skip routine for any auto-advanced page
// until a renderable type remains. Bounded: each interstitial appears at
// most once per flow, so two passes cover every combination.
func (r *Router) advanceInterstitials(ctx context.Context, t PageType) (PageType, error) {
	for range [2]struct{}{} {
		var err error
		switch t {
		case PageSMSOffer:
			t, err = r.CloseSMSOffer(ctx)
		case PageControlQuestions:
			t, err = r.SkipControlQuestions(ctx)
		default:
			return t, nil
		}
		if err != nil {
			return PageUnknown, err
		}
	}
	return t, nil
}

// CloseSMSOffer declines the bank's default SMS-based login offer, falling
// through to the phone/password flow.
func (r *Router) CloseSMSOffer(ctx context.Context) (PageType, error) {
	prevURL, err := r.it.Location(ctx)
	if err != nil {
		return PageUnknown, err
	}
	if err := r.it.Click(ctx, SelCancelButton); err != nil {
		return PageUnknown, err
	}
	r.logger.Debug("Declined SMS login offer.")
	t, err := r.classifier.ClassifyAfterURLChange(ctx, prevURL)
	if err != nil {
		if errors.Is(err, ErrNotDetected) {
			return PageUnknown, ErrPageNotResolvable
		}
		return PageUnknown, err
	}
	return t, nil
}

// SkipControlQuestions auto-advances the security-question interstitial.
func (r *Router) SkipControlQuestions(ctx context.Context) (PageType, error) {
	if err := r.it.Click(ctx, SelResetButton); err != nil {
		return PageUnknown, err
	}
	r.logger.Debug("Skipped control questions.")
	t, err := r.classifier.WaitForChange(ctx, PageControlQuestions)
	if err != nil {
		if errors.Is(err, ErrStepPending) {
			return PageUnknown, ErrPageNotResolvable
		}
		return PageUnknown, err
	}
	return t, nil
}

// SubmitStep performs the fill-and-submit sequence for the current page with
// the caller-supplied input, then re-classifies. It returns the page type
// the input was entered on and the type the flow landed on afterward.
func (r *Router) SubmitStep(ctx context.Context, input string) (current, next PageType, err error) {
	current, err = r.CurrentPage(ctx)
	if err != nil {
		return PageUnknown, PageUnknown, err
	}

	r.logger.Info("Submitting login step.", zap.String("page", current.String()))

	switch current {
	case PagePhone:
		err = r.submitWithButton(ctx, SelPhoneInput, input)
	case PageSMSCode:
		// The code input auto-submits on the last digit.
		err = r.it.Fill(ctx, SelSMSCodeInput, input)
	case PagePassword:
		err = r.submitWithButton(ctx, SelPasswordInput, input)
	case PageCreateOTP:
		err = r.submitPin(ctx, input, true)
	case PageOTP:
		err = r.submitPin(ctx, input, false)
	case PageExpenses:
		// Already authenticated, nothing to submit.
		return current, current, nil
	default:
		return PageUnknown, PageUnknown, fmt.Errorf("page %s accepts no login input", current)
	}
	if err != nil {
		return current, PageUnknown, err
	}

	if err := r.it.CheckError(ctx); err != nil {
		return current, PageUnknown, err
	}

	next, err = r.classifier.WaitForChange(ctx, current)
	if err != nil {
		if errors.Is(err, ErrStepPending) {
			// Distinguish "still resolving" from a dead page.
			if !r.mgr.PageActive(ctx) {
				return current, PageUnknown, ErrSessionExpired
			}
			return current, current, ErrStepPending
		}
		return current, PageUnknown, err
	}

	next, err = r.advanceInterstitials(ctx, next)
	if err != nil {
		return current, PageUnknown, err
	}
	r.logger.Info("Login step completed.",
		zap.String("from", current.String()),
		zap.String("to", next.String()))
	return current, next, nil
}

// submitWithButton fills a single input, clicks submit and probes for an
// inline rejection.
func (r *Router) submitWithButton(ctx context.Context, inputName, value string) error {
	if err := r.it.Fill(ctx, inputName, value); err != nil {
		return err
	}
	if err := r.it.Click(ctx, SelSubmitButton); err != nil {
		return err
	}
	return r.it.CheckError(ctx)
}

// submitPin types the 4-digit PIN one input at a time. Creation requires an
// explicit submit; entry auto-submits on the last digit.
func (r *Router) submitPin(ctx context.Context, pin string, withSubmit bool) error {
	digits := []rune(strings.TrimSpace(pin))
	if len(digits) != pinDigits {
		return &CredentialError{Message: fmt.Sprintf("код должен состоять из %d цифр", pinDigits)}
	}
	for i, d := range digits {
		if err := r.it.FillPin(ctx, i, string(d)); err != nil {
			return err
		}
	}
	if withSubmit {
		return r.it.Click(ctx, SelSubmitButton)
	}
	return nil
}

// GreetingName extracts the account holder's name from the authenticated
// landing page greeting. Empty when the greeting is not rendered.
func (r *Router) GreetingName(ctx context.Context) (string, error) {
	content, err := r.it.Content(ctx)
	if err != nil {
		return "", err
	}
	m := greetingRe.FindStringSubmatch(content)
	if m == nil {
		return "", nil
	}
	return strings.TrimSpace(m[1]), nil
}

// SMSTimer reads the "resend available in" countdown from the SMS page.
func (r *Router) SMSTimer(ctx context.Context) (string, error) {
	return r.it.ReadText(ctx, SelSMSTimer)
}

// ResendSMS requests a fresh SMS code.
func (r *Router) ResendSMS(ctx context.Context) error {
	if err := r.it.Click(ctx, SelResendButton); err != nil {
		return err
	}
	return r.it.CheckError(ctx)
}

// CancelOTP abandons the quick-login PIN prompt, falling back to the
// password flow.
func (r *Router) CancelOTP(ctx context.Context) (PageType, error) {
	if err := r.it.Click(ctx, SelCancelButton); err != nil {
		return PageUnknown, err
	}
	t, err := r.classifier.WaitForChange(ctx, PageOTP)
	if err != nil {
		if errors.Is(err, ErrStepPending) {
			return PageUnknown, ErrPageNotResolvable
		}
		return PageUnknown, err
	}
	return r.advanceInterstitials(ctx, t)
}
