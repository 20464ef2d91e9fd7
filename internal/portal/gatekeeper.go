package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lanceiro/internal/browser"
)

// Authentication failures the orchestrator's retry envelope discriminates on.
var (
	ErrCaptchaDetected    = errors.New("captcha detected on page")
	ErrInvalidCredentials = errors.New("login rejected: invalid CPF/CNPJ or password")
)

// Credentials is the portal login pair, environment-fixed for a run.
type Credentials struct {
	CPFCNPJ string
	Senha   string
}

// Gatekeeper owns login and CAPTCHA detection for one browser session. The
// retry policy around failed logins belongs to the orchestrator, not here.
type Gatekeeper struct {
	session *browser.Session
	siteURL string
	creds   Credentials
	log     *zap.Logger

	// captchaVisible probes the challenge marker, swapped out in tests.
	captchaVisible func() bool
}

func NewGatekeeper(session *browser.Session, siteURL string, creds Credentials, log *zap.Logger) *Gatekeeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gatekeeper{
		session: session,
		siteURL: siteURL,
		creds:   creds,
		log:     log,
		captchaVisible: func() bool {
			return session.Visible(locCaptcha, 2*time.Second)
		},
	}
}

// CheckCaptcha probes for the CAPTCHA marker with a short bounded wait. Also
// used mid-flow, since the site can challenge an already-authenticated
// session.
func (g *Gatekeeper) CheckCaptcha() error {
	if g.captchaVisible() {
		return ErrCaptchaDetected
	}
	return nil
}

// loginFailure re-probes for a challenge before surfacing err. The site can
// raise the CAPTCHA between the initial probe and credential entry, and that
// case must come back as the retryable sentinel, not a generic field error.
func (g *Gatekeeper) loginFailure(err error) error {
	if cerr := g.CheckCaptcha(); cerr != nil {
		g.log.Warn("captcha appeared during credential entry", zap.Error(err))
		return cerr
	}
	return err
}

// Login navigates to the portal root and authenticates. CAPTCHA is probed
// before any credential entry so a challenged page fails fast without
// burning a login attempt on it.
func (g *Gatekeeper) Login(ctx context.Context) error {
	g.log.Info("opening login page", zap.String("url", g.siteURL))
	if err := g.session.Navigate(ctx, g.siteURL); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}
	g.session.ClearLoadingOverlay()

	if err := g.CheckCaptcha(); err != nil {
		return err
	}

	g.log.Info("no captcha, filling credentials")
	if err := g.session.TypeAndVerify(locUsername, g.creds.CPFCNPJ, false); err != nil {
		return g.loginFailure(fmt.Errorf("fill CPF/CNPJ field: %w", err))
	}
	if err := g.session.TypeAndVerify(locPassword, g.creds.Senha, true); err != nil {
		return g.loginFailure(fmt.Errorf("fill password field: %w", err))
	}
	if err := g.session.Click(locLoginBtn, 10*time.Second); err != nil {
		return g.loginFailure(fmt.Errorf("click login button: %w", err))
	}

	if g.session.Visible(locLoginError, 3*time.Second) {
		return ErrInvalidCredentials
	}

	// The logout control's absence is not conclusive, so a missed
	// confirmation only warns.
	if !g.session.Visible(locLogout, 10*time.Second) {
		g.log.Warn("logout control not visible after login, proceeding without explicit confirmation")
	} else {
		g.log.Info("logout control visible, login confirmed")
	}

	g.session.ClearLoadingOverlay()
	return nil
}
