// File: internal/browser/classify.go
package browser

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Classifier resolves the currently rendered page into a PageType by
// matching known copy against the page content. Rendering is asynchronous,
// so classification retries on a short cadence before giving up.
type Classifier struct {
	it     *Interactor
	policy Policy
	logger *zap.Logger
}

func NewClassifier(it *Interactor, policy Policy, logger *zap.Logger) *Classifier {
	return &Classifier{it: it, policy: policy, logger: logger.Named("classify")}
}

// Classify returns the current page type. ErrNotDetected means the retry
// budget ran out without a match; it is retryable, never fatal.
func (c *Classifier) Classify(ctx context.Context) (PageType, error) {
	result := PageUnknown
	err := c.policy.Do(ctx, func(attemptCtx context.Context) (bool, error) {
		content, err := c.it.Content(attemptCtx)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return false, err
			}
			// Transient read failure mid-render; let the policy retry.
			c.logger.Debug("Page content read failed, retrying.", zap.Error(err))
			return false, nil
		}
		t, ok := matchPage(content)
		if !ok {
			return false, nil
		}
		result = t
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			return PageUnknown, ErrNotDetected
		}
		return PageUnknown, err
	}
	c.logger.Debug("Page classified.", zap.String("page", result.String()))
	return result, nil
}

// ClassifyAfterURLChange first waits (bounded by the retry budget) for the
// page URL to depart from prevURL, then runs the normal classify. Used after
// actions expected to navigate, so stale content is never classified.
func (c *Classifier) ClassifyAfterURLChange(ctx context.Context, prevURL string) (PageType, error) {
	err := c.policy.Do(ctx, func(attemptCtx context.Context) (bool, error) {
		url, err := c.it.Location(attemptCtx)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return false, err
			}
			return false, nil
		}
		return url != prevURL, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			return PageUnknown, ErrNotDetected
		}
		return PageUnknown, err
	}
	return c.Classify(ctx)
}

// WaitForChange re-classifies until the page type departs from prev, using
// the same retry budget. ErrStepPending means the page never moved on: the
// caller may retry the submitted step.
func (c *Classifier) WaitForChange(ctx context.Context, prev PageType) (PageType, error) {
	result := PageUnknown
	err := c.policy.Do(ctx, func(attemptCtx context.Context) (bool, error) {
		content, err := c.it.Content(attemptCtx)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return false, err
			}
			return false, nil
		}
		t, ok := matchPage(content)
		if !ok || t == prev {
			return false, nil
		}
		result = t
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) {
			return prev, ErrStepPending
		}
		return PageUnknown, err
	}
	return result, nil
}
