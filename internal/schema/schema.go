// Package schema owns the DDT extraction schema: the JSON schema sent to
// providers, the fixed ordered field list the comparator scores, and the
// default extraction profile.
package schema

import (
	_ "embed"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ddtcorpus/internal/domain"
)

//go:embed ddt_schema.json
var ddtSchemaJSON string

// ddtFields is the fixed, ordered list of compared fields. Changing it
// invalidates score comparability across runs.
var ddtFields = []string{
	"mittente",
	"destinatario",
	"indirizzo_destinazione_completo",
	"data_documento",
	"data_trasporto",
	"data_consegna_effettiva",
	"numero_documento",
	"numero_ordine",
	"codice_cliente",
	"targa_automezzo",
}

var compiled = jsonschema.MustCompileString("ddt_schema.json", ddtSchemaJSON)

// JSON returns the raw DDT extraction schema, as submitted to providers.
func JSON() string {
	return ddtSchemaJSON
}

// Fields returns the ordered field list used for scoring. Callers must not
// mutate the returned slice.
func Fields() []string {
	return ddtFields
}

// Validate checks a structured record against the DDT extraction schema.
func Validate(v interface{}) error {
	return compiled.Validate(v)
}

// DefaultProfile returns the extraction profile used when no named profile is
// configured.
func DefaultProfile(model string) domain.ExtractionProfile {
	return domain.ExtractionProfile{
		Name:            "ddt-v1",
		Prompt:          BuildPrompt(),
		SchemaJSON:      ddtSchemaJSON,
		Model:           model,
		Temperature:     0.1,
		MaxOutputTokens: 2048,
	}
}

const systemPrompt = `Sei un assistente specializzato nell'estrazione dati da Documenti di Trasporto (DDT) italiani.

REGOLE:
1. Estrai SOLO i dati richiesti, non inventare informazioni mancanti
2. Se un campo non e' presente nel documento, restituisci null
3. Per le date, converti sempre in formato YYYY-MM-DD
4. Per mittente e destinatario, estrai SOLO la ragione sociale (nome azienda), MAI l'indirizzo
5. Non confondere il Vettore/Trasportatore con il Mittente
6. Se ci sono piu' indirizzi, dai priorita' a "Destinazione Merce" rispetto a "Sede Legale"

Rispondi ESCLUSIVAMENTE con JSON valido, senza markdown, senza spiegazioni.`

// StrictJSONSuffix is appended to the prompt when a provider returned
// unparseable output and the invocation is retried.
const StrictJSONSuffix = `

ATTENZIONE: la risposta precedente non era JSON valido. Rispondi con un singolo oggetto JSON e nient'altro: niente backtick, niente testo prima o dopo.`

// BuildPrompt combines the system instructions with a per-field description of
// the extraction schema.
func BuildPrompt() string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nCAMPI DA ESTRARRE:\n")
	for _, f := range ddtFields {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return b.String()
}
