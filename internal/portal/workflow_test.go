package portal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanceiro/internal/cota"
)

func TestFreeBid(t *testing.T) {
	cases := []struct {
		name      string
		dataLance string
		label     string
		want      bool
	}{
		{"Data Attribute Uppercase", "L", "", true},
		{"Data Attribute Lowercase", "l", "", true},
		{"Label Livre", "", "Lance Livre", true},
		{"Label Livre Mixed Case", "", "livre", true},
		{"Fixed Tab", "F", "Fixo", false},
		{"Empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, freeBid(tc.dataLance, tc.label))
		})
	}
}

func TestDebugBase(t *testing.T) {
	t.Run("Commas Become Hyphens", func(t *testing.T) {
		assert.Equal(t, "ERRO-1564-221-1", debugBase("1564,221,1", ""))
	})

	t.Run("Step Suffix", func(t *testing.T) {
		assert.Equal(t, "ERRO-1564-221-1-extrato", debugBase("1564,221,1", "extrato"))
	})

	t.Run("Empty Original Gets Fallback Id", func(t *testing.T) {
		a := debugBase("", "simular")
		b := debugBase("", "simular")
		assert.NotEqual(t, a, b)
		assert.Contains(t, a, "ERRO-")
	})
}

func TestFailCapturesArtifacts(t *testing.T) {
	rec := cota.Record{Original: "1564,221,1"}

	t.Run("Artifacts Saved Alongside The Critical Outcome", func(t *testing.T) {
		w := NewWorkflow(nil, nil, WorkflowConfig{OperatorDir: "/tmp/operador"}, nil)
		var gotDir, gotBase string
		w.artifacts = func(dir, base string) error {
			gotDir, gotBase = dir, base
			return nil
		}

		out := w.fail(rec, "busca", "click search button: timeout")

		assert.Equal(t, OutcomeCritical, out.Kind)
		assert.Equal(t, "click search button: timeout", out.Detail)
		assert.Equal(t, "/tmp/operador", gotDir)
		assert.Equal(t, "ERRO-1564-221-1-busca", gotBase)
	})

	t.Run("Recovered Panic Also Captures", func(t *testing.T) {
		w := NewWorkflow(nil, nil, WorkflowConfig{}, nil)
		captured := 0
		w.artifacts = func(dir, base string) error {
			captured++
			return nil
		}

		out := w.ProcessRecord(context.Background(), rec)

		assert.Equal(t, OutcomeCritical, out.Kind)
		assert.Equal(t, 1, captured)
	})
}

func TestMoveFile(t *testing.T) {
	t.Run("Moves Into New Directory", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "download.pdf")
		require.NoError(t, os.WriteFile(src, []byte("conteudo"), 0o644))

		dst := filepath.Join(dir, "Lances", "Teste", "LANCE- JOAO 1564.221-1.pdf")
		require.NoError(t, moveFile(src, dst))

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "conteudo", string(got))
		assert.NoFileExists(t, src)
	})

	t.Run("Missing Source Errors", func(t *testing.T) {
		dir := t.TempDir()
		err := moveFile(filepath.Join(dir, "nope.pdf"), filepath.Join(dir, "out.pdf"))
		assert.Error(t, err)
	})
}
