package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanceiro/internal/cota"
)

func TestClassifyCritical(t *testing.T) {
	cases := []struct {
		diag string
		want CriticalCategory
	}{
		{"", CriticalGeneric},
		{"context deadline exceeded", CriticalTimeout},
		{"timeout waiting for element", CriticalTimeout},
		{"falha ao acionar 'Registrar'", CriticalClick},
		{"element click intercepted", CriticalClick},
		{"falha ao preencher o campo de Percentual", CriticalFill},
		{"navigate to bids page failed", CriticalNavigation},
		{"browser session lost", CriticalSession},
		{"login never succeeded", CriticalLogin},
		{"something else entirely", CriticalGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyCritical(tc.diag), "diag %q", tc.diag)
	}
}

func TestRender(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)

	t.Run("Buckets In Order", func(t *testing.T) {
		r := New("run-1")
		r.AddInvalidLine(cota.InvalidLine{Number: 2, Text: "notanumber"})
		r.AddCritical(CriticalTimeout, "1564,221,1")
		r.AddBenign(BenignContemplated, "9999,55,0")

		out := r.Render("Maria", 3, now)
		assert.Contains(t, out, "2026-08-29 10:30:00")
		assert.Contains(t, out, "Lances *Maria*")
		assert.Contains(t, out, "Linha 2: 'notanumber'")
		assert.Contains(t, out, "Timeout (1 cota(s)):")
		assert.Contains(t, out, "Cota Contemplada (1 cota(s)):")
		// original record text preserved verbatim
		assert.Contains(t, out, "- 1564,221,1")
		assert.Contains(t, out, "- 9999,55,0")
		// invalid lines and criticals come before benigns
		assert.Less(t, strings.Index(out, "Timeout"), strings.Index(out, "Cota Contemplada"))
	})

	t.Run("Zero Errors Summary", func(t *testing.T) {
		r := New("run-2")
		out := r.Render("Maria", 5, now)
		assert.Contains(t, out, "5 cotas totais do consultor Maria")
		assert.Contains(t, out, "0 cotas com erros")
		assert.NotContains(t, out, "Erros de Lances")
	})
}

func TestAppendToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erros_lances.txt")

	r1 := New("run-1")
	r1.AddBenign(BenignNotFound, "1,2,3")
	require.NoError(t, r1.AppendToFile(path, "Maria", 1))

	r2 := New("run-2")
	require.NoError(t, r2.AppendToFile(path, "Maria", 0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	// both runs present: the file accumulates, never truncates
	assert.Contains(t, content, "run-1")
	assert.Contains(t, content, "run-2")
	assert.Equal(t, 2, strings.Count(content, "Relatório de Erros da Execução"))
}
