package azureocr

import (
	"context"
	"encoding/json"
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
)

func testConfig() *config.AzureConfig {
	return &config.AzureConfig{
		APIKey:           "test-key",
		Model:            "prebuilt-layout",
		APIVersion:       "2024-11-30",
		TimeoutSecs:      5,
		TransientRetries: 3,
		RateLimitRetries: 3,
		BackoffBase:      time.Millisecond,
		PollInterval:     time.Millisecond,
		MaxPolls:         5,
	}
}

func testGate() *ratelimit.Gate {
	return ratelimit.New("azure", 0, 0, 0)
}

func testInput() port.ExtractInput {
	return port.ExtractInput{
		FileBytes:   []byte("%PDF-1.4 fake"),
		ContentType: "application/pdf",
		Filename:    "ddt.pdf",
	}
}

func newTestServer(t *testing.T, analyze http.HandlerFunc, result http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documentintelligence/documentModels/prebuilt-layout:analyze", analyze)
	mux.HandleFunc("GET /result", result)
	return httptest.NewServer(mux)
}

func TestExtractSuccess(t *testing.T) {
	var polls atomic.Int32
	var srv *httptest.Server
	srv = newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
			w.Header().Set("Operation-Location", srv.URL+"/result")
			w.WriteHeader(http.StatusAccepted)
		},
		func(w http.ResponseWriter, r *http.Request) {
			if polls.Add(1) < 2 {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "running"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status":        "succeeded",
				"analyzeResult": map[string]string{"content": "# DDT\n<table><tr><td>riga</td></tr></table>"},
			})
		})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	outcome, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAzure, outcome.Provider)
	assert.True(t, outcome.Succeeded())
	assert.False(t, outcome.Structured())
	assert.Contains(t, outcome.RawText, "<table>")
}

func TestExtractInputRejected(t *testing.T) {
	srv := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"InvalidContent"}}`))
		},
		func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassInputRejected, extractor.ClassOf(err))
}

func TestExtractTransientRetriesThenSucceeds(t *testing.T) {
	var submits atomic.Int32
	var srv *httptest.Server
	srv = newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			if submits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Operation-Location", srv.URL+"/result")
			w.WriteHeader(http.StatusAccepted)
		},
		func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status":        "succeeded",
				"analyzeResult": map[string]string{"content": "testo"},
			})
		})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	outcome, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "testo", outcome.RawText)
	assert.Equal(t, int32(3), submits.Load())
}

func TestExtractTransientBudgetExhausted(t *testing.T) {
	srv := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassTransientNetwork, extractor.ClassOf(err))
}

func TestExtractRateLimitBudgetExhausted(t *testing.T) {
	var submits atomic.Int32
	srv := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			submits.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		},
		func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassRateLimitExhausted, extractor.ClassOf(err))
	assert.Equal(t, int32(3), submits.Load())
}

func TestExtractAnalysisFailed(t *testing.T) {
	var srv *httptest.Server
	srv = newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Operation-Location", srv.URL+"/result")
			w.WriteHeader(http.StatusAccepted)
		},
		func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "failed",
				"error":  map[string]string{"code": "InternalServerError", "message": "boom"},
			})
		})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassInvalidOutput, extractor.ClassOf(err))
}

func TestExtractResultPollBudgetExhausted(t *testing.T) {
	var srv *httptest.Server
	srv = newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Operation-Location", srv.URL+"/result")
			w.WriteHeader(http.StatusAccepted)
		},
		func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "running"})
		})
	defer srv.Close()

	e := NewExtractorWithEndpoint(testConfig(), testGate(), srv.URL)
	_, err := e.Extract(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassTimeout, extractor.ClassOf(err))
}
