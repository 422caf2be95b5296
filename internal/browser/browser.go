// Package browser drives a shared headless Chromium through the DevTools
// protocol. Every call runs in its own incognito context which is disposed
// when the call returns.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/semaphore"

	"github.com/muandane/glimpse/internal/config"
)

// SupportedBrowser is the only engine the service can drive.
const SupportedBrowser = "chromium"

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// idleWindow is how long the network must be quiet to count as idle.
	idleWindow = 500 * time.Millisecond
	// idleTimeout caps the wait for network idle. Pages that poll forever
	// are captured once it expires.
	idleTimeout = 10 * time.Second
)

// CheckName validates a browser name supplied by a client.
func CheckName(name string) error {
	if name == "" || strings.EqualFold(name, SupportedBrowser) {
		return nil
	}
	return fmt.Errorf("browser %q is not supported", name)
}

// Browser wraps one Chromium process.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   *slog.Logger
}

// New launches Chromium and connects to it. The process lives until Close.
func New(cfg *config.BrowserConfig, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	pages := cfg.MaxConcurrentPages
	if pages < 1 {
		pages = 1
	}
	timeout := cfg.CaptureTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info("browser started", "control_url", controlURL, "max_pages", pages)
	return &Browser{
		browser:  rb,
		launcher: l,
		sem:      semaphore.NewWeighted(pages),
		timeout:  timeout,
		logger:   logger.With("component", "browser"),
	}, nil
}

// Ping asks the browser for its version to confirm the CDP connection is up.
func (b *Browser) Ping(ctx context.Context) error {
	if _, err := b.browser.Context(ctx).Version(); err != nil {
		return fmt.Errorf("browser unreachable: %w", err)
	}
	return nil
}

// Close shuts the browser down and cleans up the launcher.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

// session is one isolated page. release must be called exactly once.
type session struct {
	page    *rod.Page
	release func()
}

// openSession acquires a page slot, creates an incognito context and opens a
// blank page bound to ctx. The returned release disposes the context even
// when ctx has already expired.
func (b *Browser) openSession(ctx context.Context, width, height int) (*session, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	incognito, err := b.browser.Incognito()
	if err != nil {
		b.sem.Release(1)
		return nil, err
	}
	release := func() {
		if err := incognito.Close(); err != nil {
			b.logger.Warn("dispose browser context failed", "error", err)
		}
		b.sem.Release(1)
	}

	page, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		release()
		return nil, err
	}

	if width <= 0 {
		width = DefaultViewportWidth
	}
	if height <= 0 {
		height = DefaultViewportHeight
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		release()
		return nil, err
	}

	return &session{page: page, release: release}, nil
}

// withTimeout bounds a call by the configured capture timeout.
func (b *Browser) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// navigate loads url and waits for the load event followed by a quiet
// network.
func navigate(page *rod.Page, url string) error {
	idle := page.Timeout(idleTimeout)
	defer idle.CancelTimeout()
	waitIdle := idle.WaitRequestIdle(idleWindow, nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		return err
	}
	waitIdle()
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
