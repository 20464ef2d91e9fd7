// Package batch iterates input records through the portal workflow: skip-list
// precheck, login retry envelope, cooperative cancellation between records and
// the unconditional finalization pass.
package batch

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanceiro/internal/browser"
	"lanceiro/internal/config"
	"lanceiro/internal/cota"
	"lanceiro/internal/portal"
	"lanceiro/internal/reconcile"
	"lanceiro/internal/report"
)

const maxLoginAttempts = 3

// Summary aggregates one run's counts. Read-only once returned.
type Summary struct {
	Total     int
	Skipped   int
	ToProcess int
	Success   int
	Benign    int
	Critical  int
}

// PortalSession is one authenticated browser session driving the portal.
type PortalSession interface {
	Login(ctx context.Context) error
	Process(ctx context.Context, rec cota.Record) portal.Outcome
	ResetToHome(ctx context.Context) error
	Alive() bool
	Close() error
}

// SessionFactory creates a fresh portal session. The login retry envelope
// discards and recreates sessions through it.
type SessionFactory func(ctx context.Context) (PortalSession, error)

// Reconciler is the post-run filename reconciliation pass.
type Reconciler interface {
	Run(folder string) (reconcile.Report, error)
}

// Orchestrator runs one batch for one operator.
type Orchestrator struct {
	cfg        *config.Config
	factory    SessionFactory
	reconciler Reconciler
	log        *zap.Logger

	// backoff is time.Sleep unless a test swaps it out.
	backoff func(time.Duration)
}

func New(cfg *config.Config, factory SessionFactory, reconciler Reconciler, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		factory:    factory,
		reconciler: reconciler,
		log:        log,
		backoff:    time.Sleep,
	}
}

// Run processes the input lines for one operator. Cancellation is cooperative
// and checked only between records, never mid-record. The error report is
// returned in memory for immediate display alongside the persisted file.
func (o *Orchestrator) Run(ctx context.Context, operator, input string) (Summary, *report.ErrorReport) {
	var sum Summary
	rep := report.New(uuid.NewString()[:8])

	operatorDir := o.cfg.OperatorDir(operator)
	if err := os.MkdirAll(operatorDir, 0o755); err != nil {
		o.log.Error("could not create operator folder", zap.Error(err))
	}
	if o.cfg.Browser.DownloadDir != "" {
		if err := os.MkdirAll(o.cfg.Browser.DownloadDir, 0o755); err != nil {
			o.log.Error("could not create download folder", zap.Error(err))
		}
	}

	records, invalid := cota.ParseLines(input)
	sum.Total = len(records)
	for _, line := range invalid {
		rep.AddInvalidLine(line)
	}
	if len(records) == 0 {
		o.log.Error("no valid records to process")
		o.writeReport(rep, operator, sum.Total)
		return sum, rep
	}

	queue := o.applySkipList(records, operatorDir, &sum)
	sum.ToProcess = len(queue)
	o.log.Info("precheck finished",
		zap.Int("total", sum.Total),
		zap.Int("already_filed", sum.Skipped),
		zap.Int("to_process", sum.ToProcess))

	if len(queue) == 0 {
		o.log.Info("nothing new to process after precheck")
		o.writeReport(rep, operator, sum.Total)
		return sum, rep
	}

	sess, ok := o.loginEnvelope(ctx, queue, &sum, rep)
	if !ok {
		o.finalize(nil, operatorDir, rep, operator, sum.Total)
		return sum, rep
	}

	o.processQueue(ctx, sess, queue, &sum, rep)
	o.finalize(sess, operatorDir, rep, operator, sum.Total)
	return sum, rep
}

// applySkipList drops records that already have a filed document under the
// operator folder. Filename identities are parsed once per name and cached.
func (o *Orchestrator) applySkipList(records []cota.Record, operatorDir string, sum *Summary) []cota.Record {
	entries, err := os.ReadDir(operatorDir)
	if err != nil {
		o.log.Warn("operator folder not readable, treating all records as new", zap.Error(err))
		return records
	}

	filed := make(map[cota.Identity]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".pdf") ||
			!strings.HasPrefix(strings.ToUpper(name), "LANCE") {
			continue
		}
		if id, ok := cota.ExtractFromFilename(name); ok {
			filed[id] = name
		}
	}
	o.log.Info("filed documents scanned", zap.Int("count", len(filed)))

	var queue []cota.Record
	for _, rec := range records {
		if name, ok := filed[rec.Identity]; ok {
			o.log.Info("skipping already-filed record",
				zap.String("cota", rec.Original), zap.String("file", name))
			sum.Skipped++
			continue
		}
		queue = append(queue, rec)
	}
	return queue
}

// loginEnvelope runs the bounded login retry policy. CAPTCHA discards the
// session and retries with a fresh one after a longer backoff; invalid
// credentials retry after a short one; anything else aborts immediately.
// Exhaustion marks every queued record critical; a cooperative stop leaves
// them unmarked, an operator abort is not a login failure.
func (o *Orchestrator) loginEnvelope(ctx context.Context, queue []cota.Record, sum *Summary, rep *report.ErrorReport) (PortalSession, bool) {
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		if ctx.Err() != nil {
			o.log.Warn("stop requested before login")
			break
		}
		o.log.Info("login attempt", zap.Int("attempt", attempt), zap.Int("max", maxLoginAttempts))

		sess, err := o.factory(ctx)
		if err == nil {
			if err = sess.Login(ctx); err == nil {
				o.log.Info("login succeeded")
				return sess, true
			}
			if cerr := sess.Close(); cerr != nil {
				o.log.Warn("discarding session failed", zap.Error(cerr))
			}
		}

		switch {
		case errors.Is(err, portal.ErrCaptchaDetected):
			o.log.Warn("captcha blocked the login, retrying with a fresh session", zap.Int("attempt", attempt))
			o.backoff(5 * time.Second)
		case errors.Is(err, portal.ErrInvalidCredentials):
			o.log.Warn("credentials rejected, retrying", zap.Int("attempt", attempt))
			o.backoff(2 * time.Second)
		default:
			o.log.Error("unrecoverable login failure, aborting attempts", zap.Error(err))
			attempt = maxLoginAttempts
		}
	}

	if ctx.Err() != nil {
		o.log.Info("stop requested, leaving queued records unprocessed")
		return nil, false
	}

	o.log.Error("authentication never succeeded, marking all queued records critical",
		zap.Int("records", len(queue)))
	sum.Critical += len(queue)
	for _, rec := range queue {
		rep.AddCritical(report.CriticalLogin, rec.Original)
	}
	return nil, false
}

func (o *Orchestrator) processQueue(ctx context.Context, sess PortalSession, queue []cota.Record, sum *Summary, rep *report.ErrorReport) {
	for i, rec := range queue {
		if ctx.Err() != nil {
			o.log.Info("stop requested, ending record processing")
			break
		}
		if !sess.Alive() {
			remaining := queue[i:]
			o.log.Error("browser session lost, marking remaining records critical",
				zap.Int("remaining", len(remaining)))
			sum.Critical += len(remaining)
			for _, r := range remaining {
				rep.AddCritical(report.CriticalSession, r.Original)
			}
			break
		}

		out := sess.Process(ctx, rec)
		o.log.Info("record finished",
			zap.String("cota", rec.Original),
			zap.Int("kind", int(out.Kind)),
			zap.String("detail", out.Detail))

		switch out.Kind {
		case portal.OutcomeSuccess:
			sum.Success++
		case portal.OutcomeBenign:
			sum.Benign++
			rep.AddBenign(out.Reason.Category(), rec.Original)
		default:
			sum.Critical++
			rep.AddCritical(report.ClassifyCritical(out.Detail), rec.Original)
		}

		if out.Kind != portal.OutcomeSuccess {
			if err := sess.ResetToHome(ctx); err != nil {
				o.log.Error("could not return to the landing page, session may be unstable", zap.Error(err))
			}
		}
	}
}

// finalize runs the post-batch trio. Each action is independently guarded so
// a failure in one never suppresses the others.
func (o *Orchestrator) finalize(sess PortalSession, operatorDir string, rep *report.ErrorReport, operator string, total int) {
	if o.reconciler != nil {
		if res, err := o.reconciler.Run(operatorDir); err != nil {
			o.log.Error("filename reconciliation failed", zap.Error(err))
		} else {
			o.log.Info("filename reconciliation finished",
				zap.Int("scanned", res.Scanned),
				zap.Int("renamed", res.Renamed),
				zap.Int("conflicts", res.Conflicts))
		}
	}

	o.writeReport(rep, operator, total)

	if sess != nil {
		if err := sess.Close(); err != nil {
			o.log.Warn("session close failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) writeReport(rep *report.ErrorReport, operator string, total int) {
	if err := rep.AppendToFile(o.cfg.ErrorReportFile, operator, total); err != nil {
		o.log.Error("could not write error report", zap.Error(err))
	}
}

// liveSession binds a real browser session to the portal gatekeeper and
// workflow for one operator.
type liveSession struct {
	session *browser.Session
	gate    *portal.Gatekeeper
	flow    *portal.Workflow
}

// NewLiveFactory builds the production SessionFactory from configuration.
func NewLiveFactory(cfg *config.Config, operator string, log *zap.Logger) SessionFactory {
	return func(ctx context.Context) (PortalSession, error) {
		s := browser.NewSession(cfg.Browser, log)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		creds := portal.Credentials{CPFCNPJ: cfg.Credentials.CPFCNPJ, Senha: cfg.Credentials.Senha}
		gate := portal.NewGatekeeper(s, cfg.SiteURL, creds, log)
		flow := portal.NewWorkflow(s, gate, portal.WorkflowConfig{
			SiteURL:     cfg.SiteURL,
			LancesURL:   cfg.LancesURL,
			Bid:         portal.BidConfig{Percentual: cfg.PercentualText(), DescontarCarta: cfg.DescontarText()},
			DownloadDir: cfg.Browser.DownloadDir,
			OperatorDir: cfg.OperatorDir(operator),
		}, log)
		return &liveSession{session: s, gate: gate, flow: flow}, nil
	}
}

func (l *liveSession) Login(ctx context.Context) error { return l.gate.Login(ctx) }

func (l *liveSession) Process(ctx context.Context, rec cota.Record) portal.Outcome {
	return l.flow.ProcessRecord(ctx, rec)
}

func (l *liveSession) ResetToHome(ctx context.Context) error { return l.flow.ResetToHome(ctx) }

func (l *liveSession) Alive() bool { return l.session.Alive() }

func (l *liveSession) Close() error { return l.session.Close() }
