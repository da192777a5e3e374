// File: internal/browser/stub_test.go
package browser

import (
	"context"
	"sync"
	"time"
)

// stubDriver is an in-memory Driver for exercising the session manager, the
// classifier and the login router without a real browser.
type stubDriver struct {
	mu sync.Mutex

	launched bool
	pageOpen bool

	content string
	url     string
	title   string

	// elementText holds readable text per selector. Selectors absent from
	// the map behave like elements that never become visible.
	elementText map[string]string
	// fillable marks selectors that accept input.
	fillable map[string]bool

	filled  map[string]string
	clicked []string

	// onClick lets a test mutate page state in response to a click.
	onClick func(selector string)
	// onFill lets a test mutate page state in response to a fill.
	onFill func(selector, value string)

	restoredState *StorageState
	captureState  *StorageState

	launchErr error
	pageErr   error
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		elementText: map[string]string{},
		fillable:    map[string]bool{},
		filled:      map[string]string{},
	}
}

func (d *stubDriver) setContent(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
}

func (d *stubDriver) setElementText(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elementText[selector] = text
}

func (d *stubDriver) setURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

func (d *stubDriver) allowFill(selectors ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range selectors {
		d.fillable[s] = true
	}
}

func (d *stubDriver) Launch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.launchErr != nil {
		return d.launchErr
	}
	d.launched = true
	return nil
}

func (d *stubDriver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launched
}

func (d *stubDriver) NewPage(ctx context.Context, state *StorageState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pageErr != nil {
		return d.pageErr
	}
	d.pageOpen = true
	d.restoredState = state
	return nil
}

func (d *stubDriver) PageOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageOpen
}

func (d *stubDriver) CaptureStorage(ctx context.Context) (*StorageState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.captureState != nil {
		return d.captureState, nil
	}
	return &StorageState{}, nil
}

func (d *stubDriver) ClosePage(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pageOpen = false
	return nil
}

func (d *stubDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pageOpen = false
	d.launched = false
	return nil
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return nil
}

func (d *stubDriver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *stubDriver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pageOpen {
		return "", context.DeadlineExceeded
	}
	return d.title, nil
}

func (d *stubDriver) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, nil
}

func (d *stubDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	d.mu.Lock()
	ok := d.fillable[selector]
	hook := d.onFill
	if ok {
		d.filled[selector] = value
	}
	d.mu.Unlock()
	if !ok {
		return context.DeadlineExceeded
	}
	if hook != nil {
		hook(selector, value)
	}
	return nil
}

func (d *stubDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	d.mu.Lock()
	_, present := d.elementText[selector]
	hook := d.onClick
	if present {
		d.clicked = append(d.clicked, selector)
	}
	d.mu.Unlock()
	if !present {
		return context.DeadlineExceeded
	}
	if hook != nil {
		hook(selector)
	}
	return nil
}

func (d *stubDriver) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.elementText[selector]
	if !ok {
		return "", context.DeadlineExceeded
	}
	return text, nil
}
