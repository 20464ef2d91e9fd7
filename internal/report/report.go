// Package report accumulates per-run error buckets and renders them into the
// append-only error report file consumed by the operators.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"lanceiro/internal/cota"
)

// BenignCategory labels an expected business-rule rejection bucket.
type BenignCategory string

// CriticalCategory labels a coarse classification of a critical diagnostic.
type CriticalCategory string

const (
	BenignNotFound     BenignCategory = "Cota Não Existe"
	BenignNotActive    BenignCategory = "Cota Não Ativa"
	BenignProtocol     BenignCategory = "Requer Protocolo"
	BenignFidelity     BenignCategory = "Lance Fidelidade"
	BenignCancelled    BenignCategory = "Extrato Cancelado"
	BenignContemplated BenignCategory = "Cota Contemplada"
	BenignAssembly     BenignCategory = "Bloqueio de Assembleia"
	BenignOther        BenignCategory = "Benigno"

	CriticalTimeout    CriticalCategory = "Timeout"
	CriticalNavigation CriticalCategory = "Falha de Navegação"
	CriticalClick      CriticalCategory = "Erro de Clique"
	CriticalFill       CriticalCategory = "Falha de Preenchimento"
	CriticalSession    CriticalCategory = "Sessão Perdida"
	CriticalLogin      CriticalCategory = "Falha de Login"
	CriticalGeneric    CriticalCategory = "Erro Genérico"
)

// ClassifyCritical maps a free-text diagnostic to a coarse category. Pure
// function so the bucketing is testable in isolation.
func ClassifyCritical(diag string) CriticalCategory {
	if diag == "" {
		return CriticalGeneric
	}
	m := strings.ToLower(diag)
	switch {
	case strings.Contains(m, "login"):
		return CriticalLogin
	case strings.Contains(m, "session") || strings.Contains(m, "sessão"):
		return CriticalSession
	case strings.Contains(m, "timeout") || strings.Contains(m, "context deadline"):
		return CriticalTimeout
	case strings.Contains(m, "navigate") || strings.Contains(m, "navega"):
		return CriticalNavigation
	case strings.Contains(m, "click") || strings.Contains(m, "clicar") || strings.Contains(m, "acionar"):
		return CriticalClick
	case strings.Contains(m, "preench") || strings.Contains(m, "fill"):
		return CriticalFill
	default:
		return CriticalGeneric
	}
}

// ErrorReport is the append-only structured log of one run: invalid input
// lines, benign outcomes bucketed by category and critical outcomes bucketed
// by classified diagnostic. Record texts are preserved verbatim.
type ErrorReport struct {
	RunID        string
	InvalidLines []cota.InvalidLine
	benign       map[BenignCategory][]string
	critical     map[CriticalCategory][]string
}

// New returns an empty report tagged with the given run ID.
func New(runID string) *ErrorReport {
	return &ErrorReport{
		RunID:    runID,
		benign:   make(map[BenignCategory][]string),
		critical: make(map[CriticalCategory][]string),
	}
}

// AddInvalidLine records a malformed input line.
func (r *ErrorReport) AddInvalidLine(line cota.InvalidLine) {
	r.InvalidLines = append(r.InvalidLines, line)
}

// AddBenign records a record text under a benign category.
func (r *ErrorReport) AddBenign(cat BenignCategory, original string) {
	r.benign[cat] = append(r.benign[cat], original)
}

// AddCritical records a record text under a critical category.
func (r *ErrorReport) AddCritical(cat CriticalCategory, original string) {
	r.critical[cat] = append(r.critical[cat], original)
}

// Benign returns the benign bucket for a category.
func (r *ErrorReport) Benign(cat BenignCategory) []string { return r.benign[cat] }

// Critical returns the critical bucket for a category.
func (r *ErrorReport) Critical(cat CriticalCategory) []string { return r.critical[cat] }

// Empty reports whether the run recorded no failures of any kind.
func (r *ErrorReport) Empty() bool {
	return len(r.InvalidLines) == 0 && len(r.benign) == 0 && len(r.critical) == 0
}

// Render produces the timestamped report block: invalid input lines first,
// then critical buckets, then benign buckets, or a plain summary line when
// nothing failed.
func (r *ErrorReport) Render(operator string, totalRecords int, now time.Time) string {
	ts := now.Format("2006-01-02 15:04:05")
	var b strings.Builder

	fmt.Fprintln(&b, strings.Repeat("=", 50))
	fmt.Fprintf(&b, "Relatório de Erros da Execução - %s\n", ts)
	fmt.Fprintln(&b, strings.Repeat("=", 50))
	fmt.Fprintf(&b, "Lances *%s* (execução %s)\n\n", operator, r.RunID)

	if len(r.InvalidLines) > 0 || len(r.critical) > 0 {
		fmt.Fprintln(&b, "Erros de Lances (Críticos):")
		if len(r.InvalidLines) > 0 {
			fmt.Fprintln(&b, "  Tipo: Linha inválida na entrada de cotas")
			for _, line := range r.InvalidLines {
				fmt.Fprintf(&b, "    - Linha %d: '%s'\n", line.Number, line.Text)
			}
		}
		for _, cat := range sortedKeys(r.critical) {
			records := r.critical[cat]
			fmt.Fprintf(&b, "  %s (%d cota(s)):\n", cat, len(records))
			for _, rec := range records {
				fmt.Fprintf(&b, "    - %s\n", rec)
			}
		}
		fmt.Fprintln(&b)
	}

	if len(r.benign) > 0 {
		fmt.Fprintln(&b, "Erros de Lances:")
		for _, cat := range sortedKeys(r.benign) {
			records := r.benign[cat]
			fmt.Fprintf(&b, "  %s (%d cota(s)):\n", cat, len(records))
			for _, rec := range records {
				fmt.Fprintf(&b, "    - %s\n", rec)
			}
		}
		fmt.Fprintln(&b)
	}

	if r.Empty() {
		fmt.Fprintf(&b, "Resumo para o consultor %s:\n", operator)
		fmt.Fprintf(&b, "  %d cotas totais do consultor %s\n", totalRecords, operator)
		fmt.Fprintln(&b, "  0 cotas com erros")
	}

	b.WriteString("\n")
	return b.String()
}

// AppendToFile flushes the rendered block to the persistent report file.
// The file is only ever appended to, never truncated.
func (r *ErrorReport) AppendToFile(path, operator string, totalRecords int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open error report %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(r.Render(operator, totalRecords, time.Now())); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
