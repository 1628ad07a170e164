package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// actionTimeout bounds each DevTools round-trip. The dispatcher's own tool
// timeout still applies on top.
const actionTimeout = 30 * time.Second

// ErrNotRunning is returned by Run when no browser has been launched.
var ErrNotRunning = errors.New("browser not running")

// Session owns one headless Chrome instance. The chromedp contexts live
// beyond a single tool call, so they hang off context.Background and are
// torn down by Close.
type Session struct {
	mu          sync.Mutex
	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
}

// NewSession creates an unstarted session.
func NewSession() *Session {
	return &Session{}
}

// Launch starts a fresh headless browser, replacing any running one.
func (s *Session) Launch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser process to start so launch
	// failures surface here instead of on the first action.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return err
	}

	s.allocCancel = allocCancel
	s.taskCtx = taskCtx
	s.taskCancel = taskCancel
	return nil
}

// Active reports whether a browser is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskCtx != nil
}

// Run executes actions against the running browser with the session's
// per-action timeout.
func (s *Session) Run(actions ...chromedp.Action) error {
	s.mu.Lock()
	taskCtx := s.taskCtx
	s.mu.Unlock()
	if taskCtx == nil {
		return ErrNotRunning
	}

	runCtx, cancel := context.WithTimeout(taskCtx, actionTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Close shuts the browser down. It is safe to call on a stopped session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	if s.taskCancel != nil {
		s.taskCancel()
		s.taskCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.taskCtx = nil
}
