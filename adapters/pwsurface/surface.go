// Package pwsurface opens OAuth authorization pages in a headed Chromium
// window driven by playwright and reports when the user has closed it.
package pwsurface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

var ErrUnknownHandle = errors.New("pwsurface: unknown surface handle")

// Handle is the core.SurfaceHandle returned by Surface.Open.
type Handle string

type session interface {
	Done() bool
	Close() error
}

type opener func(ctx context.Context, url string) (session, error)

type Config struct {
	Headless bool
	Width    int
	Height   int
	// CallbackPrefix, when set, marks the surface done once the page lands
	// on a URL with this prefix (the provider redirected back).
	CallbackPrefix string
}

// Surface implements core.AuthorizationSurface and core.SurfaceCloser.
type Surface struct {
	open     opener
	shutdown func() error

	mu       sync.Mutex
	sessions map[Handle]session
}

// Launch starts playwright and a Chromium instance. Shutdown releases both.
func Launch(cfg Config) (*Surface, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("pwsurface: start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     []string{`--no-default-browser-check`},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("pwsurface: launch chromium: %w", err)
	}
	surface := NewSurface(browser, cfg)
	surface.shutdown = func() error {
		return errors.Join(browser.Close(), pw.Stop())
	}
	return surface, nil
}

// NewSurface wraps an already launched browser. Each Open gets its own
// browser context so cookies do not leak between authorizations.
func NewSurface(browser playwright.Browser, cfg Config) *Surface {
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 768
	}
	prefix := strings.TrimSpace(cfg.CallbackPrefix)
	return newSurface(func(_ context.Context, url string) (session, error) {
		if browser == nil {
			return nil, fmt.Errorf("pwsurface: browser is not configured")
		}
		bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport: &playwright.Size{Width: width, Height: height},
		})
		if err != nil {
			return nil, fmt.Errorf("pwsurface: new context: %w", err)
		}
		page, err := bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("pwsurface: new page: %w", err)
		}
		if _, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("pwsurface: navigate: %w", err)
		}
		return &pageSession{bctx: bctx, page: page, prefix: prefix}, nil
	})
}

func newSurface(open opener) *Surface {
	return &Surface{open: open, sessions: map[Handle]session{}}
}

func (s *Surface) Open(ctx context.Context, url string) (core.SurfaceHandle, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("pwsurface: url is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := s.open(ctx, url)
	if err != nil {
		return nil, err
	}
	handle := Handle(uuid.NewString())
	s.mu.Lock()
	s.sessions[handle] = sess
	s.mu.Unlock()
	return handle, nil
}

// IsClosed reports true once the window is gone. The session is released
// at that point so a later Close is a no-op.
func (s *Surface) IsClosed(_ context.Context, handle core.SurfaceHandle) (bool, error) {
	key, sess, err := s.lookup(handle)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return true, nil
	}
	if !sess.Done() {
		return false, nil
	}
	s.release(key)
	return true, sess.Close()
}

func (s *Surface) Close(_ context.Context, handle core.SurfaceHandle) error {
	key, sess, err := s.lookup(handle)
	if err != nil || sess == nil {
		return err
	}
	s.release(key)
	return sess.Close()
}

// Shutdown closes every open window and, for launched surfaces, the browser.
func (s *Surface) Shutdown() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = map[Handle]session{}
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		errs = append(errs, sess.Close())
	}
	if s.shutdown != nil {
		errs = append(errs, s.shutdown())
	}
	return errors.Join(errs...)
}

func (s *Surface) lookup(handle core.SurfaceHandle) (Handle, session, error) {
	key, ok := handle.(Handle)
	if !ok {
		return "", nil, ErrUnknownHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return key, s.sessions[key], nil
}

func (s *Surface) release(key Handle) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

type pageSession struct {
	bctx   playwright.BrowserContext
	page   playwright.Page
	prefix string
	once   sync.Once
	err    error
}

func (p *pageSession) Done() bool {
	if p.page.IsClosed() {
		return true
	}
	return p.prefix != "" && strings.HasPrefix(p.page.URL(), p.prefix)
}

func (p *pageSession) Close() error {
	p.once.Do(func() {
		p.err = p.bctx.Close()
	})
	return p.err
}

var (
	_ core.AuthorizationSurface = (*Surface)(nil)
	_ core.SurfaceCloser        = (*Surface)(nil)
)
