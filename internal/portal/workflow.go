package portal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanceiro/internal/browser"
	"lanceiro/internal/cota"
)

// BidConfig holds the free-bid form values, applied to every free-bid record
// in a run. Fixed bids take no values at all.
type BidConfig struct {
	Percentual     string
	DescontarCarta string
}

// WorkflowConfig parameterizes the per-record engine.
type WorkflowConfig struct {
	SiteURL     string
	LancesURL   string
	Bid         BidConfig
	DownloadDir string
	OperatorDir string
}

// Workflow is the per-record state machine. It is entered only with an
// authenticated session; one call produces exactly one Outcome and any
// unexpected failure inside a step is converted to a critical outcome at the
// boundary, never propagated.
type Workflow struct {
	session *browser.Session
	gate    *Gatekeeper
	watcher *browser.Watcher
	cfg     WorkflowConfig
	log     *zap.Logger

	// artifacts captures the page state, swapped out in tests.
	artifacts func(dir, base string) error
}

func NewWorkflow(session *browser.Session, gate *Gatekeeper, cfg WorkflowConfig, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{
		session:   session,
		gate:      gate,
		watcher:   browser.NewWatcher(cfg.DownloadDir, log),
		cfg:       cfg,
		log:       log,
		artifacts: session.SaveArtifacts,
	}
}

// ProcessRecord runs the full bid flow for one record. Panics from the rod
// layer are recovered here and reported as critical with debug artifacts.
func (w *Workflow) ProcessRecord(ctx context.Context, rec cota.Record) (out Outcome) {
	w.log.Info("processing record", zap.String("cota", rec.Original))
	defer func() {
		if r := recover(); r != nil {
			diag := fmt.Sprintf("unexpected failure: %v", r)
			w.log.Error("record flow panicked", zap.String("cota", rec.Original), zap.String("diag", diag))
			w.saveArtifacts(rec, "")
			out = Failed(diag)
		}
	}()

	if err := w.searchRecord(rec); err != nil {
		return w.fail(rec, "busca", err.Error())
	}

	rowOutcome, ok := w.locateActiveRow(rec)
	if !ok {
		return rowOutcome
	}

	w.session.ClearLoadingOverlay()
	if stmt, ok := w.checkStatement(rec); !ok {
		return stmt
	}

	if w.session.Visible(locContemplatedMarker, 3*time.Second) {
		return Skipped(ReasonAlreadyContemplated, "Cota já está contemplada.")
	}

	if out, ok := w.openBidPage(ctx, rec); !ok {
		return out
	}

	if w.session.Visible(locFidelityTab, 2*time.Second) {
		return Skipped(ReasonFidelityLocked, "A cota possui Lance Fidelidade e não pode ser processada.")
	}

	if out, ok := w.fillBidForm(rec); !ok {
		return out
	}

	if out, ok := w.simulate(rec); !ok {
		return out
	}

	if w.session.Visible(locPriorProtocol, 3*time.Second) {
		return Skipped(ReasonRequiresProtocol, "Lance já realizado (protocolo anterior encontrado).")
	}

	return w.registerAndFile(ctx, rec)
}

// searchRecord opens the admin search screen and submits the identity triple.
// Navigation failures here are critical, the search path is not optional.
func (w *Workflow) searchRecord(rec cota.Record) error {
	id := rec.Identity
	w.log.Info("navigating to cota search", zap.String("identity", id.String()))

	if err := w.session.Click(locAdminMenu, 10*time.Second); err != nil {
		return fmt.Errorf("click 'Ferramentas Admin' menu: %w", err)
	}
	w.session.ClearLoadingOverlay()

	if err := w.session.ClickFirst(10*time.Second, locSearchMenu...); err != nil {
		return fmt.Errorf("click 'Buscar' submenu: %w", err)
	}
	w.session.ClearLoadingOverlay()

	if err := w.session.TypeAndVerify(locGroupInput, id.Group, false); err != nil {
		return fmt.Errorf("fill group field: %w", err)
	}
	if err := w.session.TypeAndVerify(locCotaInput, id.Account, false); err != nil {
		return fmt.Errorf("fill account field: %w", err)
	}
	if err := w.session.TypeAndVerify(locDigitInput, id.Digit, false); err != nil {
		return fmt.Errorf("fill digit field: %w", err)
	}

	if err := w.session.Click(locSearchBtn, 10*time.Second); err != nil {
		return fmt.Errorf("click search button: %w", err)
	}
	w.session.ClearLoadingOverlay()
	return nil
}

// locateActiveRow scans the result table top to bottom for the first row
// whose status column reads ATIVO and clicks it. The bool is false when the
// flow must stop with the returned outcome.
func (w *Workflow) locateActiveRow(rec cota.Record) (Outcome, bool) {
	if _, err := w.session.Present(locResultBody, 15*time.Second); err != nil {
		return Skipped(ReasonCotaNotFound, "Cota não encontrada na busca."), false
	}

	rows, err := w.session.All(locResultRows)
	if err != nil || len(rows) == 0 {
		return Skipped(ReasonCotaNotFound, "Cota não encontrada na busca."), false
	}
	w.log.Info("result rows found", zap.Int("count", len(rows)))

	for _, row := range rows {
		cells, err := row.Elements("td")
		if err != nil || len(cells) < 8 {
			continue
		}
		status, err := cells[7].Text()
		if err != nil {
			continue
		}
		if strings.ToUpper(strings.TrimSpace(status)) == "ATIVO" {
			if err := w.session.ClickElement(row); err != nil {
				return w.fail(rec, "clicar-cota", fmt.Sprintf("click active result row: %v", err)), false
			}
			return Outcome{}, true
		}
	}
	return Skipped(ReasonCotaNotActive, "Nenhuma cota com status 'ATIVO' foi encontrada."), false
}

// checkStatement reads the extrato header, fast path first. An unreadable
// header falls back to the explicit cancelled/normal markers before giving
// up as critical.
func (w *Workflow) checkStatement(rec cota.Record) (Outcome, bool) {
	header, err := w.session.Text(locExtratoHeaderAny, 3*time.Second)
	if err == nil {
		title := strings.ToUpper(strings.TrimSpace(header))
		if strings.Contains(title, "EXTRATO - CANCELADO") {
			return Skipped(ReasonStatementCancelled, "Extrato da cota está cancelado."), false
		}
		if title == "EXTRATO" {
			return Outcome{}, true
		}
		w.log.Warn("unexpected extrato header, falling back to marker checks", zap.String("header", title))
	} else {
		w.log.Warn("extrato header not readable quickly, falling back to marker checks")
	}

	if w.session.Visible(locExtratoCancelled, 2*time.Second) {
		return Skipped(ReasonStatementCancelled, "Extrato da cota está cancelado."), false
	}
	if !w.session.Visible(locExtratoNormal, 3*time.Second) {
		return w.fail(rec, "extrato", "statement page did not load as expected"), false
	}
	return Outcome{}, true
}

// openBidPage goes straight to the bids URL instead of walking the menus,
// re-probes for a mid-session CAPTCHA and waits for the page's two key
// controls.
func (w *Workflow) openBidPage(ctx context.Context, rec cota.Record) (Outcome, bool) {
	w.log.Info("opening bid page", zap.String("url", w.cfg.LancesURL))
	if err := w.session.Navigate(ctx, w.cfg.LancesURL); err != nil {
		return w.fail(rec, "lances-navegacao", fmt.Sprintf("navigate to bid page: %v", err)), false
	}
	w.session.ClearLoadingOverlay()

	if err := w.gate.CheckCaptcha(); err != nil {
		return w.fail(rec, "captcha", "captcha challenge appeared mid-session"), false
	}

	if _, err := w.session.Present(locTabSwitcher, 12*time.Second); err != nil {
		return w.fail(rec, "lances-load", "timeout waiting for bid page tab-switcher"), false
	}
	if _, err := w.session.Present(locSimulate[0], 12*time.Second); err != nil {
		return w.fail(rec, "lances-load", "timeout waiting for simulate control"), false
	}
	return Outcome{}, true
}

// freeBid decides the bid-type branch from the active tab's data attribute
// and label. Whatever tab the site activated is followed as-is.
func freeBid(dataLance, label string) bool {
	if strings.ToUpper(strings.TrimSpace(dataLance)) == "L" {
		return true
	}
	return strings.Contains(strings.ToUpper(label), "LIVRE")
}

// fillBidForm fills the free-bid fields when the active tab denotes a free
// bid; fixed bids take no input and the two branches are mutually exclusive.
func (w *Workflow) fillBidForm(rec cota.Record) (Outcome, bool) {
	tab, err := w.session.Present(locActiveTab, 6*time.Second)
	var label, dataLance string
	if err == nil {
		if txt, terr := tab.Text(); terr == nil {
			label = txt
		}
		if attr, aerr := tab.Attribute("data-lance"); aerr == nil && attr != nil {
			dataLance = *attr
		}
	}

	if !freeBid(dataLance, label) {
		w.log.Info("active tab denotes fixed bid, no fields to fill")
		return Outcome{}, true
	}

	w.log.Info("active tab denotes free bid, filling form",
		zap.String("percentual", w.cfg.Bid.Percentual),
		zap.String("descontar", w.cfg.Bid.DescontarCarta))

	filled := false
	for _, sel := range locPercentual {
		if err := w.session.TypeAndVerify(sel, w.cfg.Bid.Percentual, false); err == nil {
			filled = true
			break
		}
	}
	if !filled {
		return w.fail(rec, "preencher-percentual", "fill free-bid percentual field: no input variant accepted the value"), false
	}

	if err := w.session.TypeAndVerify(locDescontar, w.cfg.Bid.DescontarCarta, false); err != nil {
		return w.fail(rec, "preencher-descontar", fmt.Sprintf("fill 'Descontar da Carta' field: %v", err)), false
	}
	return Outcome{}, true
}

func (w *Workflow) simulate(rec cota.Record) (Outcome, bool) {
	w.log.Info("simulating bid")
	if err := w.session.ClickFirst(10*time.Second, locSimulate...); err != nil {
		return w.fail(rec, "simular", fmt.Sprintf("click 'Simular Lance': %v", err)), false
	}

	time.Sleep(500 * time.Millisecond)
	w.session.ClearLoadingOverlay()

	// Any of these signals the post-simulate screen; absence is not fatal,
	// the protocol check and register step verify on their own timeouts.
	if _, err := w.session.FirstPresent(4*time.Second, locRegisterLink, locRegisterBtn, locPriorProtocol); err != nil {
		w.log.Info("no post-simulate signal appeared in time, proceeding with standard checks")
	}
	return Outcome{}, true
}

// registerAndFile clicks Registrar, then races the download against the
// assembly-block modal: a modal with no PDF yet is a benign skip, anything
// else proceeds to the stabilization wait and canonical filing.
func (w *Workflow) registerAndFile(ctx context.Context, rec cota.Record) Outcome {
	w.log.Info("registering bid")
	if err := w.session.ClickFirst(8*time.Second, locRegisterBtn, locRegisterLink, locRegisterAbsolute); err != nil {
		return w.fail(rec, "registrar", fmt.Sprintf("click 'Registrar': %v", err))
	}

	quick := w.watcher.AwaitPDF(ctx, 4*time.Second)
	if quick == "" {
		if _, err := w.session.Present(locModalContainer, 3*time.Second); err == nil {
			modalText, _ := w.session.Text(locModalText, 2*time.Second)
			modalText = strings.TrimSpace(modalText)
			w.log.Info("modal detected after register", zap.String("message", modalText))
			if err := w.session.ClickFirst(2*time.Second, locModalOK...); err != nil {
				w.log.Warn("could not dismiss modal via known OK controls")
			}
			return Skipped(ReasonAssemblyBlocked, "Bloqueio de assembleia / modal após Registrar: "+modalText)
		}
	}

	pdfName, err := w.watcher.AwaitStable(ctx, 90*time.Second)
	if err != nil {
		return w.fail(rec, "download", fmt.Sprintf("wait for confirmation download: %v", err))
	}

	clientName, err := w.session.Text(locClientName, 10*time.Second)
	if err != nil {
		return w.fail(rec, "nome-cliente", fmt.Sprintf("read client name from confirmation page: %v", err))
	}

	target := cota.Filename(strings.TrimSpace(clientName), rec.Identity)
	dest := filepath.Join(w.cfg.OperatorDir, target)
	if err := moveFile(filepath.Join(w.cfg.DownloadDir, pdfName), dest); err != nil {
		return w.fail(rec, "arquivar", fmt.Sprintf("file confirmation PDF: %v", err))
	}
	w.log.Info("confirmation filed", zap.String("path", dest))
	return Succeeded("Lance registrado e PDF salvo com sucesso.")
}

// ResetToHome forces the session back to the landing page, used by the
// orchestrator after any non-success outcome so state never leaks into the
// next record.
func (w *Workflow) ResetToHome(ctx context.Context) error {
	if err := w.session.Click(locHomeLogo, 10*time.Second); err != nil {
		w.log.Warn("home logo click failed, reloading root URL", zap.Error(err))
		if err := w.session.Navigate(ctx, w.cfg.SiteURL); err != nil {
			return fmt.Errorf("reload root url: %w", err)
		}
	}
	w.session.ClearLoadingOverlay()
	if _, err := w.session.Present(locAdminMenu, 10*time.Second); err != nil {
		return fmt.Errorf("confirm landing page: %w", err)
	}
	return nil
}

// fail is the single exit for critical outcomes: the page state is captured
// first so every entry in the report's critical section has its screenshot
// and markup alongside.
func (w *Workflow) fail(rec cota.Record, step, diag string) Outcome {
	w.saveArtifacts(rec, step)
	return Failed(diag)
}

func (w *Workflow) saveArtifacts(rec cota.Record, step string) {
	base := debugBase(rec.Original, step)
	if err := w.artifacts(w.cfg.OperatorDir, base); err != nil {
		w.log.Error("saving debug artifacts failed", zap.Error(err))
	}
}

// debugBase derives the artifact base name from the record's original text,
// commas replaced by hyphens. An empty original falls back to a random id so
// artifacts never clobber each other.
func debugBase(original, step string) string {
	name := strings.ReplaceAll(original, ",", "-")
	if name == "" {
		name = uuid.NewString()
	}
	base := "ERRO-" + name
	if step != "" {
		base += "-" + step
	}
	return base
}

// moveFile renames src to dst, copying across filesystems when the download
// directory and the operator folder sit on different mounts.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
