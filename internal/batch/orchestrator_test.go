package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lanceiro/internal/config"
	"lanceiro/internal/cota"
	"lanceiro/internal/portal"
	"lanceiro/internal/reconcile"
	"lanceiro/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSession struct {
	loginErr  error
	process   func(ctx context.Context, rec cota.Record) portal.Outcome
	alive     func() bool
	processed []string
	resets    int
	closes    int
}

func (s *stubSession) Login(ctx context.Context) error { return s.loginErr }

func (s *stubSession) Process(ctx context.Context, rec cota.Record) portal.Outcome {
	s.processed = append(s.processed, rec.Original)
	if s.process != nil {
		return s.process(ctx, rec)
	}
	return portal.Succeeded("ok")
}

func (s *stubSession) ResetToHome(ctx context.Context) error { s.resets++; return nil }

func (s *stubSession) Alive() bool {
	if s.alive != nil {
		return s.alive()
	}
	return true
}

func (s *stubSession) Close() error { s.closes++; return nil }

type stubReconciler struct {
	folders []string
	report  reconcile.Report
}

func (r *stubReconciler) Run(folder string) (reconcile.Report, error) {
	r.folders = append(r.folders, folder)
	return r.report, nil
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SiteURL = "https://portal.example"
	cfg.LancesRoot = filepath.Join(dir, "Lances")
	cfg.ErrorReportFile = filepath.Join(dir, "erros_lances.txt")
	cfg.Browser.DownloadDir = filepath.Join(dir, "downloads")
	return cfg
}

func newOrchestrator(cfg *config.Config, sess *stubSession, rec *stubReconciler) (*Orchestrator, *int) {
	factoryCalls := 0
	factory := func(ctx context.Context) (PortalSession, error) {
		factoryCalls++
		return sess, nil
	}
	o := New(cfg, factory, rec, nil)
	o.backoff = func(time.Duration) {}
	return o, &factoryCalls
}

func TestRun(t *testing.T) {
	t.Run("End To End With Invalid Line", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{}
		rec := &stubReconciler{}
		o, _ := newOrchestrator(cfg, sess, rec)

		sum, rep := o.Run(context.Background(), "Teste", "1564,221,1\nnotanumber\n9999,55,0")

		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 0, sum.Skipped)
		assert.Equal(t, 2, sum.ToProcess)
		assert.Equal(t, 2, sum.Success)
		assert.Equal(t, 0, sum.Benign)
		assert.Equal(t, 0, sum.Critical)

		require.Len(t, rep.InvalidLines, 1)
		assert.Equal(t, 2, rep.InvalidLines[0].Number)
		assert.Equal(t, "notanumber", rep.InvalidLines[0].Text)

		assert.Equal(t, []string{"1564,221,1", "9999,55,0"}, sess.processed)
		assert.Equal(t, 0, sess.resets)
		assert.Equal(t, 1, sess.closes)
		assert.Equal(t, []string{cfg.OperatorDir("Teste")}, rec.folders)

		content, err := os.ReadFile(cfg.ErrorReportFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "Linha 2: 'notanumber'")
	})

	t.Run("Already Filed Records Are Skipped", func(t *testing.T) {
		cfg := newTestConfig(t)
		operatorDir := cfg.OperatorDir("Teste")
		require.NoError(t, os.MkdirAll(operatorDir, 0o755))
		filed := filepath.Join(operatorDir, "LANCE- JOAO SILVA 1564.221-1.pdf")
		require.NoError(t, os.WriteFile(filed, []byte("pdf"), 0o644))

		sess := &stubSession{}
		o, _ := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, _ := o.Run(context.Background(), "Teste", "1564,221,1\n9999,55,0")

		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 1, sum.Skipped)
		assert.Equal(t, 1, sum.ToProcess)
		assert.Equal(t, []string{"9999,55,0"}, sess.processed)
	})

	t.Run("Benign Outcome Is Bucketed By Category", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{
			process: func(ctx context.Context, rec cota.Record) portal.Outcome {
				return portal.Skipped(portal.ReasonAlreadyContemplated, "Cota já está contemplada.")
			},
		}
		o, _ := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, rep := o.Run(context.Background(), "Teste", "1564,221,1")

		assert.Equal(t, 1, sum.Benign)
		assert.Equal(t, []string{"1564,221,1"}, rep.Benign(report.BenignContemplated))
		assert.Equal(t, 1, sess.resets)
	})

	t.Run("Critical Outcome Is Classified", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{
			process: func(ctx context.Context, rec cota.Record) portal.Outcome {
				return portal.Failed("timeout waiting for bid page tab-switcher")
			},
		}
		o, _ := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, rep := o.Run(context.Background(), "Teste", "1564,221,1")

		assert.Equal(t, 1, sum.Critical)
		assert.Equal(t, []string{"1564,221,1"}, rep.Critical(report.CriticalTimeout))
	})

	t.Run("Captcha On Every Attempt Marks All Critical", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{loginErr: portal.ErrCaptchaDetected}
		rec := &stubReconciler{}
		o, factoryCalls := newOrchestrator(cfg, sess, rec)

		sum, rep := o.Run(context.Background(), "Teste", "1564,221,1\n9999,55,0")

		assert.Equal(t, 3, *factoryCalls)
		assert.Empty(t, sess.processed)
		assert.Equal(t, 2, sum.Critical)
		assert.Len(t, rep.Critical(report.CriticalLogin), 2)
		// finalization still runs without a session
		assert.Len(t, rec.folders, 1)
	})

	t.Run("Unrecoverable Login Failure Aborts Retries", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{loginErr: errors.New("geckodriver not found")}
		o, factoryCalls := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, _ := o.Run(context.Background(), "Teste", "1564,221,1")

		assert.Equal(t, 1, *factoryCalls)
		assert.Equal(t, 1, sum.Critical)
	})

	t.Run("Cancellation Before Login Leaves Records Unmarked", func(t *testing.T) {
		cfg := newTestConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sess := &stubSession{}
		rec := &stubReconciler{}
		o, factoryCalls := newOrchestrator(cfg, sess, rec)

		sum, rep := o.Run(ctx, "Teste", "1564,221,1\n9999,55,0")

		assert.Equal(t, 0, *factoryCalls)
		assert.Empty(t, sess.processed)
		assert.Equal(t, 0, sum.Critical)
		assert.Empty(t, rep.Critical(report.CriticalLogin))
		// finalization still runs
		assert.Len(t, rec.folders, 1)
		assert.FileExists(t, cfg.ErrorReportFile)
	})

	t.Run("Cancellation Is Checked Between Records", func(t *testing.T) {
		cfg := newTestConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sess := &stubSession{
			process: func(ctx context.Context, rec cota.Record) portal.Outcome {
				cancel()
				return portal.Succeeded("ok")
			},
		}
		o, _ := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, _ := o.Run(ctx, "Teste", "1564,221,1\n9999,55,0\n1111,22,3")

		assert.Equal(t, 1, sum.Success)
		assert.Len(t, sess.processed, 1)
	})

	t.Run("Session Loss Marks Remainder Critical", func(t *testing.T) {
		cfg := newTestConfig(t)
		aliveCalls := 0
		sess := &stubSession{
			alive: func() bool {
				aliveCalls++
				return aliveCalls == 1
			},
		}
		o, _ := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, rep := o.Run(context.Background(), "Teste", "1564,221,1\n9999,55,0\n1111,22,3")

		assert.Equal(t, 1, sum.Success)
		assert.Equal(t, 2, sum.Critical)
		assert.Len(t, rep.Critical(report.CriticalSession), 2)
	})

	t.Run("No Valid Records Still Writes Report", func(t *testing.T) {
		cfg := newTestConfig(t)
		sess := &stubSession{}
		o, factoryCalls := newOrchestrator(cfg, sess, &stubReconciler{})

		sum, rep := o.Run(context.Background(), "Teste", "notanumber\n\n")

		assert.Equal(t, 0, sum.Total)
		assert.Equal(t, 0, *factoryCalls)
		require.Len(t, rep.InvalidLines, 1)
		assert.FileExists(t, cfg.ErrorReportFile)
	})
}
