package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"ddtcorpus/internal/domain"
)

// Instruction is the fixed Alpaca instruction attached to every sample.
const Instruction = "Estrai i dati strutturati dal seguente DDT italiano. " +
	"Campi richiesti: mittente, destinatario, indirizzo_destinazione_completo, " +
	"data_documento, data_trasporto, numero_documento, numero_ordine, codice_cliente. " +
	"Rispondi con JSON valido."

// Record is one Alpaca fine-tuning sample.
type Record struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// FormatRecord converts a validated document into an Alpaca record using the
// chosen provider's raw OCR as input. It returns (nil, nil) when the document
// lacks the validated output or the OCR text, so callers can skip it.
func FormatRecord(doc *domain.Document, ocrSource string) (*Record, error) {
	if len(doc.ValidatedOutput) == 0 {
		return nil, nil
	}

	var ocr *string
	switch ocrSource {
	case "azure":
		ocr = doc.AzureRawOCR
	case "datalab":
		ocr = doc.DatalabRawOCR
	default:
		return nil, fmt.Errorf("export.FormatRecord: invalid ocr source %q", ocrSource)
	}
	if ocr == nil || strings.TrimSpace(*ocr) == "" {
		return nil, nil
	}

	// Re-encode compactly so every output line is a single-line JSON object.
	var record map[string]interface{}
	if err := json.Unmarshal(doc.ValidatedOutput, &record); err != nil {
		return nil, fmt.Errorf("export.FormatRecord: %s: %w", doc.ID, err)
	}
	output, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("export.FormatRecord: %s: %w", doc.ID, err)
	}

	return &Record{
		Instruction: Instruction,
		Input:       strings.TrimSpace(*ocr),
		Output:      string(output),
	}, nil
}

// Split shuffles documents with a fixed seed and carves off the validation
// set. At least one document lands in validation whenever any exist.
func Split(docs []domain.Document, trainRatio float64, seed int64) (train, validation []domain.Document) {
	if len(docs) == 0 {
		return nil, nil
	}

	shuffled := make([]domain.Document, len(docs))
	copy(shuffled, docs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	valSize := int(float64(len(shuffled)) * (1 - trainRatio))
	if valSize < 1 {
		valSize = 1
	}
	return shuffled[valSize:], shuffled[:valSize]
}

// WriteJSONL writes one compact JSON object per line. Non-ASCII stays as-is
// and HTML characters are not escaped, matching what fine-tuning toolchains
// expect.
func WriteJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("export.WriteJSONL: record %d: %w", i, err)
		}
	}
	return nil
}
