// Package azureocr implements the one-shot OCR provider on Azure Document
// Intelligence. The caller sees a single invocation returning markdown text;
// the analyze operation's internal polling stays inside this package.
package azureocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/extractor"
	"ddtcorpus/internal/port"
	"ddtcorpus/internal/ratelimit"
)

// Extractor implements port.Extractor against Azure Document Intelligence.
type Extractor struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	retries      int
	rlRetries    int
	backoffBase  time.Duration
	pollInterval time.Duration
	maxPolls     int
	gate         *ratelimit.Gate
	client       *http.Client
}

// NewExtractor creates an Azure OCR extractor.
func NewExtractor(cfg *config.AzureConfig, gate *ratelimit.Gate) *Extractor {
	return newExtractor(cfg, gate, "")
}

// NewExtractorWithEndpoint creates an extractor pointing at a custom API endpoint (for testing).
func NewExtractorWithEndpoint(cfg *config.AzureConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	return newExtractor(cfg, gate, endpoint)
}

func newExtractor(cfg *config.AzureConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = "prebuilt-layout"
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-11-30"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.TransientRetries
	if retries == 0 {
		retries = 3
	}
	rlRetries := cfg.RateLimitRetries
	if rlRetries == 0 {
		rlRetries = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase == 0 {
		backoffBase = 5 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	maxPolls := cfg.MaxPolls
	if maxPolls == 0 {
		maxPolls = 60
	}
	return &Extractor{
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		model:        model,
		apiVersion:   apiVersion,
		retries:      retries,
		rlRetries:    rlRetries,
		backoffBase:  backoffBase,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		gate:         gate,
		client:       &http.Client{Timeout: timeout},
	}
}

// Name implements port.Extractor.
func (e *Extractor) Name() string {
	return domain.ProviderAzure
}

func (e *Extractor) analyzeURL() string {
	return fmt.Sprintf(
		"%s/documentintelligence/documentModels/%s:analyze?api-version=%s&outputContentFormat=markdown",
		e.endpoint, e.model, e.apiVersion,
	)
}

// Extract runs one OCR pass and returns markdown text. Transient failures and
// 5xx responses retry with fixed-size backoff; 429 retries exponentially; a
// 4xx response means the input itself was rejected and fails immediately.
func (e *Extractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionOutcome, error) {
	start := time.Now()

	opURL, err := e.submit(ctx, input.FileBytes)
	if err != nil {
		return nil, err
	}
	text, err := e.pollResult(ctx, opURL)
	if err != nil {
		return nil, err
	}
	return domain.SuccessOutcome(e.Name(), nil, text, time.Since(start)), nil
}

// submit posts the document for analysis and returns the operation URL to poll.
func (e *Extractor) submit(ctx context.Context, fileBytes []byte) (string, error) {
	rlAttempts := 0
	transientAttempts := 0

	for {
		if err := e.gate.Acquire(ctx); err != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.analyzeURL(), bytes.NewReader(fileBytes))
		if err != nil {
			e.gate.Release()
			return "", extractor.NewError(e.Name(), domain.ErrClassInvalidOutput, err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)
		req.Header.Set("Content-Type", "application/pdf")

		resp, doErr := e.client.Do(req)
		e.gate.Release()
		if doErr != nil {
			if ctx.Err() != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, doErr)
			}
			transientAttempts++
			if transientAttempts >= e.retries {
				return "", extractor.Errorf(e.Name(), domain.ErrClassTransientNetwork,
					"submit failed %d times: %v", transientAttempts, doErr)
			}
			if err := extractor.Sleep(ctx, e.backoffBase); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusAccepted:
			opURL := resp.Header.Get("Operation-Location")
			if opURL == "" {
				return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
					"no Operation-Location header in analyze response")
			}
			return opURL, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			rlAttempts++
			if rlAttempts >= e.rlRetries {
				return "", extractor.Errorf(e.Name(), domain.ErrClassRateLimitExhausted,
					"submit rate limited %d times", rlAttempts)
			}
			delay := extractor.BackoffDelay(rlAttempts-1, e.backoffBase, 60*time.Second,
				extractor.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
			if err := extractor.Sleep(ctx, delay); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}

		case resp.StatusCode >= 500:
			transientAttempts++
			if transientAttempts >= e.retries {
				return "", extractor.Errorf(e.Name(), domain.ErrClassTransientNetwork,
					"submit failed %d times (status %d): %s", transientAttempts, resp.StatusCode,
					truncate(string(body), 500))
			}
			if err := extractor.Sleep(ctx, e.backoffBase); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}

		default:
			// 4xx other than 429: the service rejected this document.
			return "", extractor.Errorf(e.Name(), domain.ErrClassInputRejected,
				"analyze rejected (status %d): %s", resp.StatusCode, truncate(string(body), 500))
		}
	}
}

type analyzeResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *Extractor) pollResult(ctx context.Context, opURL string) (string, error) {
	for attempt := 1; attempt <= e.maxPolls; attempt++ {
		if err := extractor.Sleep(ctx, e.pollInterval); err != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassInvalidOutput, err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)

		resp, doErr := e.client.Do(req)
		if doErr != nil {
			if ctx.Err() != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, doErr)
			}
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := extractor.BackoffDelay(0, e.backoffBase, 60*time.Second,
				extractor.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
			if err := extractor.Sleep(ctx, delay); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			continue
		}

		var ar analyzeResult
		if err := json.Unmarshal(body, &ar); err != nil {
			return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"decoding analyze result: %v", err)
		}
		switch ar.Status {
		case "succeeded":
			return ar.AnalyzeResult.Content, nil
		case "failed":
			return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"analysis failed: %s: %s", ar.Error.Code, ar.Error.Message)
		default:
			// notStarted/running: keep polling.
		}
	}
	return "", extractor.Errorf(e.Name(), domain.ErrClassTimeout,
		"analysis polling budget exhausted after %d polls", e.maxPolls)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
