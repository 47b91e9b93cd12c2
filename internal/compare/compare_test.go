package compare

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddtcorpus/internal/schema"
)

func testConfig() Config {
	return DefaultConfig(schema.Fields())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   string
		wantOK bool
	}{
		{"nil is absent", nil, "", false},
		{"empty string is absent", "", "", false},
		{"whitespace only is absent", "   \t ", "", false},
		{"lowercases", "Barilla S.p.A.", "barilla s.p.a", true},
		{"collapses internal whitespace", "Via  Roma \t 12", "via roma 12", true},
		{"strips trailing punctuation", "Mulino Bianco S.r.l.;", "mulino bianco s.r.l", true},
		{"strips space-separated trailing punctuation", "Barilla S.p.A .", "barilla s.p.a", true},
		{"keeps internal punctuation", "n. 1234/A", "n. 1234/a", true},
		{"punctuation only is absent", ".,;:", "", false},
		{"integral float renders without decimals", float64(42), "42", true},
		{"bool renders as text", true, "true", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Barilla S.p.A.", "Barilla S.p.A .", "  Via  Roma 12 ", "n. 1234/A;", "TRENTO", ".,;:", "",
	}
	for _, in := range inputs {
		once, _ := Normalize(in)
		twice, _ := Normalize(once)
		assert.Equal(t, once, twice, "normalize(%q) should be a fixed point", in)
	}
}

func TestValuesMatch(t *testing.T) {
	cfg := testConfig()

	t.Run("both absent match", func(t *testing.T) {
		assert.True(t, cfg.ValuesMatch(nil, nil))
		assert.True(t, cfg.ValuesMatch("", nil))
		assert.True(t, cfg.ValuesMatch("  ", ""))
	})

	t.Run("one absent does not match", func(t *testing.T) {
		assert.False(t, cfg.ValuesMatch("barilla", nil))
		assert.False(t, cfg.ValuesMatch(nil, "barilla"))
	})

	t.Run("exact after normalization", func(t *testing.T) {
		assert.True(t, cfg.ValuesMatch("BARILLA  S.p.A.", "barilla s.p.a"))
	})

	t.Run("short values never match fuzzily", func(t *testing.T) {
		// One edit apart but normalized length is under the cutoff.
		assert.False(t, cfg.ValuesMatch("2024-01-15", "2024-01-16"))
		assert.False(t, cfg.ValuesMatch("AB123CD", "AB123CE"))
	})

	t.Run("fuzzy applies when only one value exceeds the cutoff", func(t *testing.T) {
		// 21 chars vs 20 chars, one character apart: a truncated street number
		// must still count as the same address.
		a := "via monte bianco 2500"
		b := "via monte bianco 250"
		assert.True(t, cfg.ValuesMatch(a, b))
		assert.True(t, cfg.ValuesMatch(b, a))
	})

	t.Run("long values match fuzzily above threshold", func(t *testing.T) {
		a := "via giuseppe garibaldi 12, 20121 milano mi"
		b := "via giuseppe garibaldi 12 20121 milano mi"
		assert.True(t, cfg.ValuesMatch(a, b))
	})

	t.Run("single trailing edit on a 25-char value matches", func(t *testing.T) {
		a := "via della liberazione 451"
		b := "via della liberazione 452"
		assert.True(t, cfg.ValuesMatch(a, b))
	})

	t.Run("long values below threshold do not match", func(t *testing.T) {
		a := "via giuseppe garibaldi 12, 20121 milano mi"
		b := "corso vittorio emanuele 99, 10121 torino to"
		assert.False(t, cfg.ValuesMatch(a, b))
	})
}

func TestCompare(t *testing.T) {
	cfg := testConfig()

	t.Run("identical records score one", func(t *testing.T) {
		rec := map[string]interface{}{
			"mittente":                        "Barilla S.p.A.",
			"destinatario":                    "Esselunga S.p.A.",
			"indirizzo_destinazione_completo": "Via Roma 12, 20121 Milano MI",
			"data_documento":                  "2024-01-15",
			"data_trasporto":                  nil,
			"data_consegna_effettiva":         nil,
			"numero_documento":                "1234/A",
			"numero_ordine":                   nil,
			"codice_cliente":                  "CL-0042",
			"targa_automezzo":                 "AB123CD",
		}
		res := cfg.Compare(rec, rec)
		assert.Equal(t, 1.0, res.Score)
		assert.Equal(t, 10, res.Total)
		assert.Empty(t, res.Discrepancies)
	})

	t.Run("missing keys compare as null", func(t *testing.T) {
		// Both records omit every optional field entirely; only the populated
		// fields can disagree.
		a := map[string]interface{}{"mittente": "Barilla"}
		b := map[string]interface{}{"mittente": "Lavazza"}
		res := cfg.Compare(a, b)
		assert.Equal(t, 9, res.Matches)
		assert.Equal(t, []string{"mittente"}, res.Discrepancies)
		assert.InDelta(t, 0.9, res.Score, 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := map[string]interface{}{
			"mittente":       "Barilla S.p.A.",
			"destinatario":   "Esselunga",
			"data_documento": "2024-01-15",
		}
		b := map[string]interface{}{
			"mittente":       "barilla s.p.a",
			"destinatario":   "Conad",
			"data_documento": "2024-01-15",
		}
		ab := cfg.Compare(a, b)
		ba := cfg.Compare(b, a)
		assert.Equal(t, ab.Score, ba.Score)
		assert.Equal(t, ab.Discrepancies, ba.Discrepancies)
	})

	t.Run("discrepancies follow field order", func(t *testing.T) {
		a := map[string]interface{}{
			"mittente":        "Barilla",
			"data_documento":  "2024-01-15",
			"targa_automezzo": "AB123CD",
		}
		b := map[string]interface{}{
			"mittente":        "Lavazza",
			"data_documento":  "2024-02-20",
			"targa_automezzo": "ZZ999ZZ",
		}
		res := cfg.Compare(a, b)
		assert.Equal(t, []string{"mittente", "data_documento", "targa_automezzo"}, res.Discrepancies)
	})
}

func TestCompareJSON(t *testing.T) {
	cfg := testConfig()

	t.Run("scores decoded records", func(t *testing.T) {
		a := json.RawMessage(`{"mittente":"Barilla S.p.A.","numero_documento":"1234/A"}`)
		b := json.RawMessage(`{"mittente":"barilla  s.p.a.","numero_documento":"1234/A"}`)
		res, err := cfg.CompareJSON(a, b)
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.Score)
	})

	t.Run("rejects non-object payloads", func(t *testing.T) {
		_, err := cfg.CompareJSON(json.RawMessage(`[1,2]`), json.RawMessage(`{}`))
		require.Error(t, err)
	})
}
