// Package portal drives the gated online document portal through a single
// headless browser session.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"crossref/internal/browser"
	"crossref/internal/config"
	"crossref/internal/logging"
	"crossref/internal/resilience"
	"crossref/internal/types"
)

// Sentinel errors.
var (
	ErrNotReady      = errors.New("portal session not ready")
	ErrNoSearchInput = errors.New("search input not found")
	ErrStopped       = errors.New("portal client stopped")
)

// State is the lifecycle state of the portal session.
type State int

const (
	StateUninitialized State = iota
	StateLaunching
	StateGatePassing
	StateSearchReady
	StateSearching
	StateCrashed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLaunching:
		return "launching"
	case StateGatePassing:
		return "gate_passing"
	case StateSearchReady:
		return "search_ready"
	case StateSearching:
		return "searching"
	case StateCrashed:
		return "crashed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResultCache is the subset of cache.Store used by the client.
type ResultCache interface {
	Get(query string) (*types.OnlineResult, bool)
	Put(query string, res types.OnlineResult) error
}

// Option configures a Client.
type Option func(*Client)

// WithCache makes SearchOne consult and fill c.
func WithCache(c ResultCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithRetryConfig overrides the backoff used for gates and searches. The
// attempt counts still come from the portal config.
func WithRetryConfig(rc resilience.RetryConfig) Option {
	return func(cl *Client) { cl.backoff = rc }
}

// WithSessionManager supplies the browser session manager.
func WithSessionManager(sm *browser.SessionManager) Option {
	return func(cl *Client) { cl.sessions = sm }
}

// Client owns one browser session against the portal. Calls are serialized;
// the client is meant to be owned by a single runner.
type Client struct {
	cfg           config.PortalConfig
	gateTimeout   time.Duration
	resultTimeout time.Duration
	minSurname    int

	sessions *browser.SessionManager
	cache    ResultCache
	backoff  resilience.RetryConfig

	// sem serializes operations; a buffered channel so waits honor ctx.
	sem chan struct{}

	stateMu         sync.RWMutex
	state           State
	sessionID       string
	page            *rod.Page
	consecutiveErrs int
}

// New builds a client from the full configuration. No browser is started
// until Start.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg.Portal,
		gateTimeout:   cfg.GetGateTimeout(),
		resultTimeout: cfg.GetResultTimeout(),
		minSurname:    cfg.Matching.MinSurnameLength,
		backoff:       resilience.DefaultRetryConfig(),
		sem:           make(chan struct{}, 1),
	}
	if c.cfg.MaxResults <= 0 {
		c.cfg.MaxResults = 10
	}
	if c.cfg.CrashThreshold <= 0 {
		c.cfg.CrashThreshold = 3
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessions == nil {
		c.sessions = browser.NewSessionManager(browser.Config{
			Bin:                 cfg.Browser.Bin,
			DebuggerURL:         cfg.Browser.DebuggerURL,
			Flags:               cfg.Browser.Flags,
			Headless:            cfg.Browser.Headless,
			NoSandbox:           cfg.Browser.NoSandbox,
			UserAgent:           cfg.Browser.UserAgent,
			ViewportWidth:       cfg.Browser.ViewportWidth,
			ViewportHeight:      cfg.Browser.ViewportHeight,
			NavigationTimeoutMs: int(cfg.GetNavigationTimeout() / time.Millisecond),
		})
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	id := c.sessionID
	c.stateMu.Unlock()
	if id != "" {
		c.sessions.Touch(id, s.String())
	}
	if prev != s {
		logging.PortalDebug("state %s -> %s", prev, s)
	}
}

// Session returns the metadata of the open portal page, if any.
func (c *Client) Session() (browser.Session, bool) {
	c.stateMu.RLock()
	id := c.sessionID
	c.stateMu.RUnlock()
	if id == "" {
		return browser.Session{}, false
	}
	return c.sessions.GetSession(id)
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// acquireOrKill waits up to grace for the lock. If an abandoned call still
// holds it, the browser process is killed so the call fails fast, then the
// lock is awaited under ctx.
func (c *Client) acquireOrKill(ctx context.Context, grace time.Duration) error {
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	err := c.acquire(graceCtx)
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.PortalWarn("Portal busy after %v, killing browser", grace)
	c.sessions.Kill()
	return c.acquire(ctx)
}

// Start launches the browser, opens the portal and passes its gates.
func (c *Client) Start(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	return c.startLocked(ctx)
}

func (c *Client) startLocked(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryPortal, "start")
	defer timer.Stop()

	if c.cfg.URL == "" {
		return fmt.Errorf("portal url not configured: %w", ErrNotReady)
	}

	c.setState(StateLaunching)
	if err := c.sessions.Start(ctx); err != nil {
		c.setState(StateCrashed)
		return fmt.Errorf("start browser: %w", err)
	}

	retry := c.backoff
	retry.MaxRetries = c.cfg.GateRetries
	retry.OnRetry = func(attempt int, err error) {
		logging.PortalWarn("Gate attempt %d failed: %v", attempt, err)
	}

	err := resilience.RetryWithBackoff(ctx, retry, func(ctx context.Context) error {
		c.closePage()
		sess, err := c.sessions.CreateSession(ctx, c.cfg.URL)
		if err != nil {
			return err
		}
		page, _ := c.sessions.Page(sess.ID)
		c.stateMu.Lock()
		c.sessionID, c.page = sess.ID, page
		c.stateMu.Unlock()

		c.setState(StateGatePassing)
		return c.passGates(ctx, page)
	})
	if err != nil {
		c.setState(StateCrashed)
		return fmt.Errorf("open portal: %w", err)
	}

	c.consecutiveErrs = 0
	c.setState(StateSearchReady)
	logging.Portal("Portal ready at %s", c.cfg.URL)
	return nil
}

func (c *Client) closePage() {
	c.stateMu.Lock()
	id := c.sessionID
	c.sessionID, c.page = "", nil
	c.stateMu.Unlock()
	if id != "" {
		_ = c.sessions.CloseSession(id)
	}
}

// EnsureReady health-checks the session and restarts it when the browser is
// gone, the search input is missing or a previous call was abandoned.
func (c *Client) EnsureReady(ctx context.Context) error {
	if err := c.acquireOrKill(ctx, c.gateTimeout); err != nil {
		return err
	}
	defer c.release()
	return c.ensureReadyLocked(ctx)
}

func (c *Client) ensureReadyLocked(ctx context.Context) error {
	switch c.State() {
	case StateStopped:
		return ErrStopped
	case StateSearchReady:
		if c.healthy(ctx) {
			return nil
		}
		if sess, ok := c.Session(); ok {
			logging.PortalWarn("Portal session %s unhealthy after %s idle, restarting",
				sess.ID, time.Since(sess.LastActive).Round(time.Second))
		} else {
			logging.PortalWarn("Portal session unhealthy, restarting")
		}
	default:
		logging.PortalWarn("Portal session in state %s, restarting", c.State())
	}
	return c.restartLocked(ctx)
}

func (c *Client) restartLocked(ctx context.Context) error {
	c.closePage()
	if err := c.sessions.Shutdown(); err != nil {
		logging.PortalDebug("shutdown before restart: %v", err)
	}
	return c.startLocked(ctx)
}

func (c *Client) healthy(ctx context.Context) bool {
	if !c.sessions.Healthy(2 * time.Second) {
		return false
	}
	c.stateMu.RLock()
	page := c.page
	c.stateMu.RUnlock()
	if page == nil {
		return false
	}
	has, _, err := page.Context(ctx).Timeout(2 * time.Second).Has(c.cfg.SearchInput)
	return err == nil && has
}

// noteFailure counts consecutive low-level errors and marks the session
// crashed once the threshold is reached.
func (c *Client) noteFailure(err error) {
	c.consecutiveErrs++
	logging.PortalWarn("Search failure %d/%d: %v", c.consecutiveErrs, c.cfg.CrashThreshold, err)
	if c.consecutiveErrs >= c.cfg.CrashThreshold {
		c.setState(StateCrashed)
	}
}

// Stop releases the page, the browser and any launched process. It is safe
// to call more than once and from every exit path.
func (c *Client) Stop() error {
	if c.State() == StateStopped {
		return nil
	}
	if err := c.acquireOrKill(context.Background(), 2*time.Second); err != nil {
		return err
	}
	defer c.release()

	c.closePage()
	err := c.sessions.Shutdown()
	c.setState(StateStopped)
	logging.Portal("Portal client stopped")
	return err
}
