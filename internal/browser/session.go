// File: internal/browser/session.go
package browser

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/config"
)

// SessionState describes how much of the browser stack is alive.
type SessionState int

const (
	// StateAbsent means no browser process is running.
	StateAbsent SessionState = iota
	// StateBrowserOnly means the process is up but no page is open.
	StateBrowserOnly
	// StateLive means a page is open and usable.
	StateLive
)

func (s SessionState) String() string {
	switch s {
	case StateBrowserOnly:
		return "browser_only"
	case StateLive:
		return "live"
	default:
		return "absent"
	}
}

// watchdogInterval is how often the idle watchdog checks the activity timer.
const watchdogInterval = 5 * time.Second

// Manager owns the single browser session: it lazily builds the stack up to a
// live page, tracks activity, and tears the page down when it sits idle. All
// session-mutating operations serialize on one mutex, so concurrent callers
// never interleave half-built states.
type Manager struct {
	driver  Driver
	cfg     config.BrowserConfig
	storage *StorageFile
	logger  *zap.Logger

	mu           sync.Mutex
	state        SessionState
	lastActivity time.Time
	watchCancel  context.CancelFunc
	watchDone    chan struct{}

	// Overridable in tests.
	now          func() time.Time
	pollInterval time.Duration
}

func NewManager(driver Driver, cfg config.BrowserConfig, storage *StorageFile, logger *zap.Logger) *Manager {
	return &Manager{
		driver:       driver,
		cfg:          cfg,
		storage:      storage,
		logger:       logger.Named("session"),
		state:        StateAbsent,
		now:          time.Now,
		pollInterval: watchdogInterval,
	}
}

// State returns the current session state.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Touch resets the idle timer. Every page interaction calls this.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
}

// IdleFor reports how long the session has been without activity.
func (m *Manager) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLive {
		return 0
	}
	return m.now().Sub(m.lastActivity)
}

// EnsurePage builds the stack up to a live page: launches the browser if
// needed, opens a page restoring the persisted storage state, and arms the
// idle watchdog. Idempotent while the page is already live.
func (m *Manager) EnsurePage(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.driver.Launch(ctx); err != nil {
		return err
	}
	if m.state == StateAbsent {
		m.state = StateBrowserOnly
	}

	if m.state == StateLive && m.driver.PageOpen() {
		m.lastActivity = m.now()
		return nil
	}

	state, err := m.storage.Load()
	if err != nil {
		m.logger.Warn("Could not load persisted storage state, starting clean.", zap.Error(err))
		state = nil
	}
	if err := m.driver.NewPage(ctx, state); err != nil {
		return err
	}

	m.state = StateLive
	m.lastActivity = m.now()
	m.startWatchdogLocked()
	m.logger.Info("Page session established.", zap.Bool("restored_state", state != nil))
	return nil
}

// PageActive reports whether the live page still responds. Used by handlers
// to distinguish an expired session from a merely idle one.
func (m *Manager) PageActive(ctx context.Context) bool {
	m.mu.Lock()
	live := m.state == StateLive && m.driver.PageOpen()
	m.mu.Unlock()
	if !live {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := m.driver.Title(probeCtx)
	return err == nil
}

// TeardownContext persists the storage state, closes the page and purges
// downloads. The browser process keeps running.
func (m *Manager) TeardownContext(ctx context.Context) error {
	m.stopWatchdog()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLive {
		return nil
	}
	m.teardownPageLocked(ctx, true)
	return nil
}

// TeardownBrowser persists state, then shuts the whole browser process down.
func (m *Manager) TeardownBrowser(ctx context.Context) error {
	m.stopWatchdog()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLive {
		m.teardownPageLocked(ctx, true)
	}
	if err := m.driver.Shutdown(ctx); err != nil {
		return err
	}
	m.state = StateAbsent
	return nil
}

// Reset discards the session entirely: no state is persisted and the saved
// snapshot is deleted, forcing a full login next time.
func (m *Manager) Reset(ctx context.Context) error {
	m.stopWatchdog()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLive {
		m.teardownPageLocked(ctx, false)
	}
	if err := m.driver.Shutdown(ctx); err != nil {
		m.logger.Warn("Browser shutdown during reset failed.", zap.Error(err))
	}
	m.state = StateAbsent
	if err := m.storage.Delete(); err != nil {
		return err
	}
	m.logger.Info("Session reset, storage state deleted.")
	return nil
}

// teardownPageLocked closes the page, optionally persisting storage first,
// and purges the download directory. Caller holds m.mu.
func (m *Manager) teardownPageLocked(ctx context.Context, persist bool) {
	if persist && m.driver.PageOpen() {
		state, err := m.driver.CaptureStorage(ctx)
		if err != nil {
			m.logger.Warn("Could not capture storage state before teardown.", zap.Error(err))
		} else if err := m.storage.Save(state); err != nil {
			m.logger.Error("Could not persist storage state.", zap.Error(err))
		}
	}
	if err := m.driver.ClosePage(ctx); err != nil {
		m.logger.Warn("Page close failed.", zap.Error(err))
	}
	if err := PurgeDownloads(m.cfg.DownloadDir, m.logger); err != nil {
		m.logger.Warn("Could not purge download directory.", zap.Error(err))
	}
	m.state = StateBrowserOnly
}

// startWatchdogLocked arms the idle watchdog goroutine. Caller holds m.mu.
func (m *Manager) startWatchdogLocked() {
	if m.watchCancel != nil {
		return
	}
	wctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.watchCancel = cancel
	m.watchDone = done
	go m.watch(wctx, done)
}

// stopWatchdog cancels the watchdog and waits for it to exit. Must be called
// without m.mu held: the watchdog takes the same lock.
func (m *Manager) stopWatchdog() {
	m.mu.Lock()
	cancel, done := m.watchCancel, m.watchDone
	m.watchCancel, m.watchDone = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// watch polls the activity timer and tears the page down once the idle
// timeout elapses. It exits on its own after the teardown, so the teardown
// path inside it must not wait for the watchdog.
func (m *Manager) watch(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.state != StateLive {
				m.releaseSelfLocked()
				m.mu.Unlock()
				return
			}
			idle := m.now().Sub(m.lastActivity)
			if idle < m.cfg.IdleTimeout {
				m.mu.Unlock()
				continue
			}
			m.logger.Info("Idle timeout reached, closing page.",
				zap.Duration("idle", idle),
				zap.Duration("timeout", m.cfg.IdleTimeout))
			m.teardownPageLocked(context.Background(), true)
			m.releaseSelfLocked()
			m.mu.Unlock()
			return
		}
	}
}

// releaseSelfLocked is the watchdog's own exit path: it cancels the context
// it was spawned with and clears the registration so a later stopWatchdog
// has nothing to wait on. Caller is the watchdog itself, holding m.mu.
func (m *Manager) releaseSelfLocked() {
	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.watchCancel = nil
	m.watchDone = nil
}

// Driver exposes the underlying page driver for interactors and flows.
func (m *Manager) Driver() Driver { return m.driver }
