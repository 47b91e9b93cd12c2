package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddtcorpus/internal/domain"
)

func strPtr(s string) *string { return &s }

func validatedDoc(ocr string) domain.Document {
	return domain.Document{
		ID:              uuid.New(),
		AzureRawOCR:     strPtr(ocr),
		DatalabRawOCR:   strPtr("datalab: " + ocr),
		ValidatedOutput: json.RawMessage(`{"mittente":"Lavazza S.p.A.","numero_documento":"DDT-42"}`),
	}
}

func TestFormatRecord(t *testing.T) {
	doc := validatedDoc("  LUIGI LAVAZZA S.P.A.\nDDT n. 42  ")

	rec, err := FormatRecord(&doc, "azure")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Instruction, rec.Instruction)
	assert.Equal(t, "LUIGI LAVAZZA S.P.A.\nDDT n. 42", rec.Input)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rec.Output), &out))
	assert.Equal(t, "Lavazza S.p.A.", out["mittente"])
}

func TestFormatRecordDatalabSource(t *testing.T) {
	doc := validatedDoc("pagina uno")

	rec, err := FormatRecord(&doc, "datalab")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "datalab: pagina uno", rec.Input)
}

func TestFormatRecordSkipsUnusableDocuments(t *testing.T) {
	noOutput := validatedDoc("testo")
	noOutput.ValidatedOutput = nil

	noOCR := validatedDoc("")
	blankOCR := validatedDoc("   \n ")

	for name, doc := range map[string]domain.Document{
		"no validated output": noOutput,
		"no ocr text":         noOCR,
		"blank ocr text":      blankOCR,
	} {
		t.Run(name, func(t *testing.T) {
			rec, err := FormatRecord(&doc, "azure")
			assert.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestFormatRecordInvalidSource(t *testing.T) {
	doc := validatedDoc("testo")
	_, err := FormatRecord(&doc, "tesseract")
	assert.Error(t, err)
}

func TestSplitDeterministic(t *testing.T) {
	docs := make([]domain.Document, 100)
	for i := range docs {
		docs[i] = validatedDoc("testo")
	}

	train1, val1 := Split(docs, 0.93, 42)
	train2, val2 := Split(docs, 0.93, 42)

	assert.Len(t, train1, 93)
	assert.Len(t, val1, 7)
	for i := range train1 {
		assert.Equal(t, train1[i].ID, train2[i].ID)
	}
	for i := range val1 {
		assert.Equal(t, val1[i].ID, val2[i].ID)
	}
}

func TestSplitKeepsAtLeastOneValidationSample(t *testing.T) {
	docs := []domain.Document{validatedDoc("a"), validatedDoc("b")}

	train, val := Split(docs, 0.93, 42)
	assert.Len(t, val, 1)
	assert.Len(t, train, 1)
}

func TestSplitEmpty(t *testing.T) {
	train, val := Split(nil, 0.93, 42)
	assert.Empty(t, train)
	assert.Empty(t, val)
}

func TestWriteJSONL(t *testing.T) {
	records := []Record{
		{Instruction: Instruction, Input: "riga <1>", Output: `{"mittente":"Caffè Borbone"}`},
		{Instruction: Instruction, Input: "riga 2", Output: `{"mittente":null}`},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, records))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "riga <1>", first.Input)
	// Angle brackets and accented characters stay unescaped.
	assert.Contains(t, lines[0], "riga <1>")
	assert.Contains(t, lines[0], "Caffè")
}
