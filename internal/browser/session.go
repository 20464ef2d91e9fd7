package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrNoSelectorWorked reports that none of the variants for a logical control
// could be located or operated.
var ErrNoSelectorWorked = errors.New("no selector variant worked")

// Session owns one Chrome instance and the single page the automation drives.
// The portal's session model does not tolerate parallel pages, so there is
// exactly one page per Session.
type Session struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page
	log     *zap.Logger
}

// NewSession returns an unconnected session.
func NewSession(cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, log: log}
}

// Connect launches (or attaches to) Chrome and opens the working page.
func (s *Session) Connect(ctx context.Context) error {
	controlURL := s.cfg.DebuggerURL
	if controlURL == "" && len(s.cfg.Launch) > 0 {
		bin := s.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(s.cfg.Headless)
		for _, rawFlag := range s.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}
	if controlURL == "" {
		url, err := launcher.New().Headless(s.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		s.browser = nil
		return fmt.Errorf("create page: %w", err)
	}
	s.page = page

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		s.log.Warn("failed to set viewport", zap.Error(err))
	}

	if s.cfg.DownloadDir != "" {
		if err := (proto.PageSetDownloadBehavior{
			Behavior:     proto.PageSetDownloadBehaviorBehaviorAllow,
			DownloadPath: s.cfg.DownloadDir,
		}).Call(page); err != nil {
			s.log.Warn("failed to set download directory", zap.Error(err))
		}
	}
	return nil
}

// Alive reports whether the browser connection still answers.
func (s *Session) Alive() bool {
	if s.browser == nil {
		return false
	}
	_, err := s.browser.Version()
	return err == nil
}

// Close tears down the page and browser. Safe to call on a dead session.
func (s *Session) Close() error {
	var err error
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	return err
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// ClearLoadingOverlay removes the portal's pace-active loading element so it
// cannot intercept clicks, then gives the UI a beat to settle.
func (s *Session) ClearLoadingOverlay() {
	_, err := s.page.Evaluate(&rod.EvalOptions{
		JS:      `() => { document.querySelector('.pace-active')?.remove(); }`,
		ByValue: true,
	})
	if err != nil {
		s.log.Debug("could not remove loading overlay", zap.Error(err))
	}
	time.Sleep(400 * time.Millisecond)
}

// element waits up to timeout for the selector to be present in the DOM.
func (s *Session) element(sel Selector, timeout time.Duration) (*rod.Element, error) {
	page := s.page.Timeout(timeout)
	if sel.Kind == XPath {
		return page.ElementX(sel.Value)
	}
	return page.Element(sel.Value)
}

// Present returns the element for sel, or an error after timeout.
func (s *Session) Present(sel Selector, timeout time.Duration) (*rod.Element, error) {
	el, err := s.element(sel, timeout)
	if err != nil {
		return nil, fmt.Errorf("element not present: %s: %w", sel, err)
	}
	return el, nil
}

// Visible reports whether sel becomes visible within timeout. Presence alone
// is not enough: an element already in the DOM but hidden is re-sampled until
// it shows or the deadline passes.
func (s *Session) Visible(sel Selector, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	el, err := s.element(sel, timeout)
	if err != nil {
		return false
	}
	return waitTrue(deadline, 200*time.Millisecond, func() bool {
		visible, err := el.Visible()
		return err == nil && visible
	})
}

// FirstPresent returns the first element among sels present in the DOM,
// trying each variant for timeoutEach.
func (s *Session) FirstPresent(timeoutEach time.Duration, sels ...Selector) (*rod.Element, error) {
	for _, sel := range sels {
		if el, err := s.element(sel, timeoutEach); err == nil {
			return el, nil
		}
	}
	return nil, ErrNoSelectorWorked
}

// Click locates sel and clicks it, preferring a JS click because the portal's
// overlays routinely intercept native clicks.
func (s *Session) Click(sel Selector, timeout time.Duration) error {
	el, err := s.element(sel, timeout)
	if err != nil {
		return fmt.Errorf("click target not found: %s: %w", sel, err)
	}
	return s.clickElement(el)
}

// ClickElement clicks an already-located element, used when the caller picked
// it out of a collection (result-table rows) rather than by selector.
func (s *Session) ClickElement(el *rod.Element) error {
	return s.clickElement(el)
}

func (s *Session) clickElement(el *rod.Element) error {
	_, _ = el.Eval(`() => this.scrollIntoView({block: 'center'})`)
	if _, err := el.Eval(`() => this.click()`); err == nil {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("native click failed: %w", err)
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

// ClickFirst tries each selector variant in order and clicks the first one
// that can be located; the remaining variants are not attempted.
func (s *Session) ClickFirst(timeoutEach time.Duration, sels ...Selector) error {
	for _, sel := range sels {
		el, err := s.element(sel, timeoutEach)
		if err != nil {
			s.log.Debug("selector variant not found", zap.String("selector", sel.Value))
			continue
		}
		if err := s.clickElement(el); err != nil {
			s.log.Warn("click failed on variant", zap.String("selector", sel.Value), zap.Error(err))
			continue
		}
		return nil
	}
	return ErrNoSelectorWorked
}

// TypeAndVerify fills a text field and confirms the value actually landed.
// The read-back check retries the whole clear/type cycle and falls back to a
// JS value set. Password fields cannot be read back literally, so for those
// only a non-empty length is verified.
func (s *Session) TypeAndVerify(sel Selector, text string, password bool) error {
	verify := func(el *rod.Element) bool {
		value, err := el.Property("value")
		if err != nil {
			return false
		}
		current := value.Str()
		if password {
			return len(current) > 0
		}
		return strings.TrimSpace(current) == text
	}

	return attempt(s.cfg.TypeRetryCount(), 200*time.Millisecond, func() error {
		el, err := s.element(sel, s.cfg.ElementTimeout())
		if err != nil {
			return fmt.Errorf("field not found: %s: %w", sel, err)
		}
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
		if err := el.Input(text); err != nil {
			return fmt.Errorf("type into %s: %w", sel, err)
		}
		time.Sleep(200 * time.Millisecond)
		if verify(el) {
			return nil
		}

		// JS fallback for fields that eat keystrokes
		_, err = el.Eval(`(v) => {
			this.value = v;
			this.dispatchEvent(new Event('input', { bubbles: true }));
			this.dispatchEvent(new Event('change', { bubbles: true }));
		}`, text)
		if err != nil {
			return fmt.Errorf("js value set on %s: %w", sel, err)
		}
		time.Sleep(200 * time.Millisecond)
		if verify(el) {
			return nil
		}
		return fmt.Errorf("could not confirm value of field %s", sel)
	})
}

// Text returns the rendered text of sel, falling back to textContent when the
// element renders empty.
func (s *Session) Text(sel Selector, timeout time.Duration) (string, error) {
	el, err := s.element(sel, timeout)
	if err != nil {
		return "", fmt.Errorf("text target not found: %s: %w", sel, err)
	}
	text, err := el.Text()
	if err != nil || strings.TrimSpace(text) == "" {
		if prop, perr := el.Property("textContent"); perr == nil {
			return strings.TrimSpace(prop.Str()), nil
		}
	}
	return strings.TrimSpace(text), err
}

// Attribute returns an attribute of sel, or "" when the attribute is absent.
func (s *Session) Attribute(sel Selector, attr string, timeout time.Duration) (string, error) {
	el, err := s.element(sel, timeout)
	if err != nil {
		return "", fmt.Errorf("attribute target not found: %s: %w", sel, err)
	}
	value, err := el.Attribute(attr)
	if err != nil {
		return "", fmt.Errorf("read attribute %s of %s: %w", attr, sel, err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// All returns every element currently matching sel, without waiting.
func (s *Session) All(sel Selector) ([]*rod.Element, error) {
	if sel.Kind == XPath {
		els, err := s.page.ElementsX(sel.Value)
		return els, err
	}
	els, err := s.page.Elements(sel.Value)
	return els, err
}

// SaveArtifacts captures a screenshot and the raw page markup into dir for
// post-mortem debugging of unexpected failures.
func (s *Session) SaveArtifacts(dir, base string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare artifact dir %s: %w", dir, err)
	}

	var firstErr error
	if shot, err := s.page.Screenshot(false, nil); err != nil {
		s.log.Error("could not capture screenshot", zap.Error(err))
		firstErr = err
	} else if err := os.WriteFile(filepath.Join(dir, base+".png"), shot, 0o644); err != nil {
		s.log.Error("could not save screenshot", zap.Error(err))
		firstErr = err
	}

	if html, err := s.page.HTML(); err != nil {
		s.log.Error("could not capture page markup", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	} else if err := os.WriteFile(filepath.Join(dir, base+".html"), []byte(html), 0o644); err != nil {
		s.log.Error("could not save page markup", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
