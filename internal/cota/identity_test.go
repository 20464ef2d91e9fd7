package cota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Run("Separator Variants", func(t *testing.T) {
		want := Identity{Group: "1564", Account: "221", Digit: "1"}
		for _, in := range []string{"1564,221,1", "1564.221-1", "1564 221 1", "1564/221/1"} {
			id, ok := Extract(in)
			require.True(t, ok, "input %q", in)
			assert.Equal(t, want, id, "input %q", in)
		}
	})

	t.Run("Single Long Run", func(t *testing.T) {
		id, ok := Extract("1564221")
		require.True(t, ok)
		assert.Equal(t, Identity{Group: "1564", Account: "22", Digit: "1"}, id)
	})

	t.Run("Single Short Run Is Ambiguous", func(t *testing.T) {
		_, ok := Extract("15642")
		assert.False(t, ok)
	})

	t.Run("Merged Runs Too Short", func(t *testing.T) {
		_, ok := Extract("15,1")
		assert.False(t, ok)
	})

	t.Run("No Digits", func(t *testing.T) {
		_, ok := Extract("notanumber")
		assert.False(t, ok)
	})

	t.Run("Three Runs Merge In Order", func(t *testing.T) {
		// last run is the digit, 1564+22 merge into group+account
		id, ok := Extract("1564 22 7")
		require.True(t, ok)
		assert.Equal(t, Identity{Group: "1564", Account: "22", Digit: "7"}, id)
	})

	t.Run("Multi Digit Last Run Keeps Last Char", func(t *testing.T) {
		id, ok := Extract("1564,221,19")
		require.True(t, ok)
		assert.Equal(t, "9", id.Digit)
	})
}

func TestExtractFromFilename(t *testing.T) {
	t.Run("Canonical Name", func(t *testing.T) {
		id, ok := ExtractFromFilename("LANCE- JOAO SILVA 1564.221-3.pdf")
		require.True(t, ok)
		assert.Equal(t, Identity{Group: "1564", Account: "221", Digit: "3"}, id)
	})

	t.Run("Separator Variants Parse Identically", func(t *testing.T) {
		want := Identity{Group: "1564", Account: "221", Digit: "3"}
		names := []string{
			"LANCE- A 1564.221-3.pdf",
			"LANCE- A 1564,221-3.pdf",
			"LANCE- A 1564 221 3.pdf",
			"LANCE- A 1564221-3.pdf",
		}
		for _, name := range names {
			id, ok := ExtractFromFilename(name)
			require.True(t, ok, "name %q", name)
			assert.Equal(t, want, id, "name %q", name)
		}
	})

	t.Run("Case Insensitive", func(t *testing.T) {
		_, ok := ExtractFromFilename("lance- joao 1564.221-3.PDF")
		assert.True(t, ok)
	})

	t.Run("Missing Suffix", func(t *testing.T) {
		_, ok := ExtractFromFilename("LANCE- JOAO 1564.221-3.txt")
		assert.False(t, ok)
	})

	t.Run("Unrelated File", func(t *testing.T) {
		_, ok := ExtractFromFilename("relatorio-2024.pdf")
		assert.False(t, ok)
	})
}

func TestExtractWithName(t *testing.T) {
	t.Run("Identity After Name", func(t *testing.T) {
		text := "Consorciado: JOAO DA SILVA 1564.221-3 Grupo ..."
		name, id, diag := ExtractWithName(text)
		require.Empty(t, diag)
		assert.Equal(t, "JOAO DA SILVA", name)
		assert.Equal(t, Identity{Group: "1564", Account: "221", Digit: "3"}, id)
	})

	t.Run("Identity After Cota Label", func(t *testing.T) {
		text := "Consorciado MARIA OLIVEIRA, Cota 1564,221-3 valores"
		name, id, diag := ExtractWithName(text)
		require.Empty(t, diag)
		assert.Equal(t, "MARIA OLIVEIRA", name)
		assert.Equal(t, "1564", id.Group)
	})

	t.Run("Identity Anywhere", func(t *testing.T) {
		text := "9999.55-0 emissao: 2024 Consorciado PEDRO SANTOS"
		name, id, diag := ExtractWithName(text)
		require.Empty(t, diag)
		assert.Equal(t, "PEDRO SANTOS", name)
		assert.Equal(t, Identity{Group: "9999", Account: "55", Digit: "0"}, id)
	})

	t.Run("Missing Name", func(t *testing.T) {
		_, _, diag := ExtractWithName("sem rotulo 1564.221-3")
		assert.Contains(t, diag, "name")
	})

	t.Run("Missing Identity", func(t *testing.T) {
		_, _, diag := ExtractWithName("Consorciado JOAO DA SILVA sem numeros")
		assert.Contains(t, diag, "identity")
	})

	t.Run("Collapses Whitespace", func(t *testing.T) {
		text := "Consorciado:\n  JOAO DA SILVA\t1564.221-3"
		name, _, diag := ExtractWithName(text)
		require.Empty(t, diag)
		assert.Equal(t, "JOAO DA SILVA", name)
	})
}

func TestIdentityString(t *testing.T) {
	id := Identity{Group: "1564", Account: "221", Digit: "1"}
	assert.Equal(t, "1564.221-1", id.String())
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "A_B_C_D_E_F_G_H_I", SanitizeName(`A\B/C:D*E?F"G<H>I`))
	assert.Equal(t, "JOAO DA SILVA", SanitizeName("JOAO DA SILVA"))
}

func TestFilename(t *testing.T) {
	id := Identity{Group: "1564", Account: "221", Digit: "1"}
	assert.Equal(t, "LANCE- JOAO SILVA 1564.221-1.pdf", Filename("JOAO SILVA", id))

	// round trip through the filename parser
	parsed, ok := ExtractFromFilename(Filename("JOAO SILVA", id))
	require.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestParseLines(t *testing.T) {
	t.Run("Mixed Valid And Invalid", func(t *testing.T) {
		records, invalid := ParseLines("1564,221,1\nnotanumber\n9999,55,0")
		require.Len(t, records, 2)
		require.Len(t, invalid, 1)
		assert.Equal(t, 2, invalid[0].Number)
		assert.Equal(t, "notanumber", invalid[0].Text)
		assert.Equal(t, "1564,221,1", records[0].Original)
		assert.Equal(t, Identity{Group: "9999", Account: "55", Digit: "0"}, records[1].Identity)
	})

	t.Run("Blank Lines Skipped Without Renumbering", func(t *testing.T) {
		records, invalid := ParseLines("\n1564,221,1\n\nbad\n")
		require.Len(t, records, 1)
		require.Len(t, invalid, 1)
		assert.Equal(t, 4, invalid[0].Number)
	})

	t.Run("Empty Input", func(t *testing.T) {
		records, invalid := ParseLines("")
		assert.Empty(t, records)
		assert.Empty(t, invalid)
	})
}

func TestParseLinesLegacy(t *testing.T) {
	records := ParseLinesLegacy("# comment\n1564,221,1\n\nbad\n9999,55,0")
	require.Len(t, records, 2)
	assert.Equal(t, "1564,221,1", records[0].Original)
	assert.Equal(t, "9999,55,0", records[1].Original)
}
