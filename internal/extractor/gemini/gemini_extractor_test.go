package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/extractor"
	"ddtcorpus/internal/port"
	"ddtcorpus/internal/ratelimit"
	"ddtcorpus/internal/schema"
)

const validRecord = `{
	"mittente": "Barilla S.p.A.",
	"destinatario": "Esselunga S.p.A.",
	"indirizzo_destinazione_completo": "Via Roma 12, 20121 Milano MI",
	"data_documento": "2024-01-15",
	"data_trasporto": null,
	"data_consegna_effettiva": null,
	"numero_documento": "1234/A",
	"numero_ordine": null,
	"codice_cliente": null,
	"targa_automezzo": "AB123CD"
}`

func testConfig() *config.GeminiConfig {
	return &config.GeminiConfig{
		APIKey:           "test-key",
		Model:            "gemini-2.0-flash",
		TimeoutSecs:      5,
		InvalidRetries:   2,
		RateLimitRetries: 3,
		BackoffBase:      time.Millisecond,
	}
}

func testGate() *ratelimit.Gate {
	return ratelimit.New("gemini", 0, 0, 0)
}

func testInput() port.ExtractInput {
	return port.ExtractInput{
		RawText: "DDT N. 1234/A\nMittente: BARILLA S.P.A.\nDestinatario: ESSELUNGA",
		Profile: schema.DefaultProfile("gemini-2.0-flash"),
	}
}

func modelReply(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content":      map[string]interface{}{"parts": []map[string]string{{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
	return string(b)
}

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "TESTO OCR DEL DOCUMENTO")
		_, _ = w.Write([]byte(modelReply(validRecord)))
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	outcome, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGemini, outcome.Provider)
	assert.True(t, outcome.Structured())
	assert.JSONEq(t, validRecord, string(outcome.StructuredData))
}

func TestExtractStripsCodeFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelReply("```json\n" + validRecord + "\n```")))
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	outcome, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.JSONEq(t, validRecord, string(outcome.StructuredData))
}

func TestExtractRetriesInvalidJSONWithStricterPrompt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if n == 1 {
			assert.NotContains(t, string(body), "ATTENZIONE")
			_, _ = w.Write([]byte(modelReply("non sono riuscito a estrarre i dati")))
			return
		}
		// The retry carries the strict-JSON instruction.
		assert.Contains(t, string(body), "ATTENZIONE")
		_, _ = w.Write([]byte(modelReply(validRecord)))
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	outcome, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.True(t, outcome.Structured())
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractInvalidOutputAfterBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(modelReply("not json at all")))
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassInvalidOutput, extractor.ClassOf(err))
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtractSchemaViolationRetried(t *testing.T) {
	// Valid JSON missing required fields counts as invalid output, not success.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(modelReply(`{"mittente":"Barilla"}`)))
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassInvalidOutput, extractor.ClassOf(err))
}

func TestExtractRefusalNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassProviderRefusal, extractor.ClassOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractRateLimitBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassRateLimitExhausted, extractor.ClassOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtractEmptyText(t *testing.T) {
	e := NewExtractor(testConfig(), testGate())
	_, err := e.Extract(context.Background(), port.ExtractInput{RawText: "   "})
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassInvalidOutput, extractor.ClassOf(err))
}
