// File: internal/browser/driver.go
package browser

import (
	"context"
	"time"
)

// Cookie is the persisted subset of a browser cookie, enough to restore an
// authenticated session across process restarts.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StorageState is the serializable authentication snapshot: cookies plus the
// origin's localStorage entries.
type StorageState struct {
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
}

// Driver abstracts the browser backend behind the session manager and the
// login flow. The production implementation drives Chrome over CDP; tests
// substitute an in-memory stub.
type Driver interface {
	// Launch starts the browser process. Idempotent while connected.
	Launch(ctx context.Context) error
	// Connected reports whether the browser process is up.
	Connected() bool
	// NewPage opens a page, restoring the given storage state when non-nil.
	NewPage(ctx context.Context, state *StorageState) error
	// PageOpen reports whether a page currently exists.
	PageOpen() bool
	// CaptureStorage snapshots cookies and localStorage from the open page.
	CaptureStorage(ctx context.Context) (*StorageState, error)
	// ClosePage closes the page, leaving the browser running.
	ClosePage(ctx context.Context) error
	// Shutdown closes the page and the browser process.
	Shutdown(ctx context.Context) error

	// Navigate loads a URL in the open page and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)
	// Title returns the page's document title.
	Title(ctx context.Context) (string, error)
	// Content returns the page's rendered HTML.
	Content(ctx context.Context) (string, error)

	// Fill waits for the element and types the value into it.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// Click waits for the element and clicks it.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Text waits for the element and returns its text content.
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
}
