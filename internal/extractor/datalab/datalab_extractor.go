// Package datalab implements the submit/poll extraction provider. One call
// uploads a PDF, then polls on a fixed interval until the job completes or the
// poll budget runs out.
package datalab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/extractor"
	"ddtcorpus/internal/port"
	"ddtcorpus/internal/ratelimit"
)

// Extractor implements port.Extractor against the Datalab marker API.
type Extractor struct {
	apiURL       string
	apiKey       string
	pollInterval time.Duration
	maxPolls     int
	rlRetries    int
	backoffBase  time.Duration
	gate         *ratelimit.Gate
	client       *http.Client
}

// NewExtractor creates a Datalab extractor.
func NewExtractor(cfg *config.DatalabConfig, gate *ratelimit.Gate) *Extractor {
	return newExtractor(cfg, gate, "")
}

// NewExtractorWithEndpoint creates an extractor pointing at a custom API endpoint (for testing).
func NewExtractorWithEndpoint(cfg *config.DatalabConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	return newExtractor(cfg, gate, endpoint)
}

func newExtractor(cfg *config.DatalabConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	if endpoint == "" {
		endpoint = cfg.APIURL
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 5 * time.Second
	}
	maxPolls := cfg.MaxPolls
	if maxPolls == 0 {
		maxPolls = 120
	}
	rlRetries := cfg.RateLimitRetries
	if rlRetries == 0 {
		rlRetries = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase == 0 {
		backoffBase = 2 * time.Second
	}
	return &Extractor{
		apiURL:       endpoint,
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		rlRetries:    rlRetries,
		backoffBase:  backoffBase,
		gate:         gate,
		client:       &http.Client{Timeout: timeout},
	}
}

// Name implements port.Extractor.
func (e *Extractor) Name() string {
	return domain.ProviderDatalab
}

// Extract submits the document and polls until the job reaches a terminal
// state. The poll budget is the timeout: exceeding maxPolls classifies as
// Timeout with no further retry.
func (e *Extractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionOutcome, error) {
	start := time.Now()

	requestID, err := e.submit(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := e.pollUntilDone(ctx, requestID)
	if err != nil {
		return nil, err
	}

	structured := json.RawMessage(result.ExtractionSchemaJSON)
	if len(structured) > 0 && !json.Valid(structured) {
		return nil, extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
			"extraction_schema_json is not valid JSON")
	}
	return domain.SuccessOutcome(e.Name(), structured, result.Markdown, time.Since(start)), nil
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type pollResponse struct {
	Status               string `json:"status"`
	Error                string `json:"error"`
	Markdown             string `json:"markdown"`
	ExtractionSchemaJSON string `json:"extraction_schema_json"`
}

// submit uploads the PDF with the extraction schema attached. 429 responses
// retry with exponential backoff up to the rate-limit budget.
func (e *Extractor) submit(ctx context.Context, input port.ExtractInput) (string, error) {
	body, contentType, err := e.buildSubmitBody(input)
	if err != nil {
		return "", extractor.NewError(e.Name(), domain.ErrClassInvalidOutput, err)
	}

	for attempt := 1; attempt <= e.rlRetries; attempt++ {
		if err := e.gate.Acquire(ctx); err != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}
		resp, reqErr := e.doRequest(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body), contentType)
		e.gate.Release()
		if reqErr != nil {
			if ctx.Err() != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, reqErr)
			}
			return "", extractor.NewError(e.Name(), domain.ErrClassTransientNetwork, reqErr)
		}

		if resp.status == http.StatusTooManyRequests {
			if attempt == e.rlRetries {
				return "", extractor.Errorf(e.Name(), domain.ErrClassRateLimitExhausted,
					"submit rate limited %d times: %s", attempt, string(resp.body))
			}
			delay := extractor.BackoffDelay(attempt-1, e.backoffBase, 60*time.Second, resp.retryAfter)
			if err := extractor.Sleep(ctx, delay); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}
			continue
		}
		if resp.status != http.StatusOK {
			return "", extractor.Errorf(e.Name(), domain.ErrClassTransientNetwork,
				"submit failed (status %d): %s", resp.status, truncate(string(resp.body), 500))
		}

		var sr submitResponse
		if err := json.Unmarshal(resp.body, &sr); err != nil {
			return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"decoding submit response: %v", err)
		}
		if sr.RequestID == "" {
			return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"no request_id in submit response: %s", truncate(string(resp.body), 500))
		}
		return sr.RequestID, nil
	}
	return "", extractor.Errorf(e.Name(), domain.ErrClassRateLimitExhausted, "submit retry budget exhausted")
}

// pollUntilDone polls the job status every pollInterval, at most maxPolls
// times. A "failed" job classifies as InvalidOutput; running out of polls
// classifies as Timeout.
func (e *Extractor) pollUntilDone(ctx context.Context, requestID string) (*pollResponse, error) {
	statusURL := fmt.Sprintf("%s/%s", e.apiURL, requestID)

	for attempt := 1; attempt <= e.maxPolls; attempt++ {
		if err := extractor.Sleep(ctx, e.pollInterval); err != nil {
			return nil, extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}
		if err := e.gate.Acquire(ctx); err != nil {
			return nil, extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}
		resp, reqErr := e.doRequest(ctx, http.MethodGet, statusURL, nil, "")
		e.gate.Release()
		if reqErr != nil {
			if ctx.Err() != nil {
				return nil, extractor.NewError(e.Name(), domain.ErrClassTimeout, reqErr)
			}
			// Transient poll failures consume an attempt and keep polling.
			continue
		}

		if resp.status == http.StatusTooManyRequests {
			delay := extractor.BackoffDelay(0, e.backoffBase, 60*time.Second, resp.retryAfter)
			if err := extractor.Sleep(ctx, delay); err != nil {
				return nil, extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}
			continue
		}
		if resp.status != http.StatusOK {
			continue
		}

		var pr pollResponse
		if err := json.Unmarshal(resp.body, &pr); err != nil {
			return nil, extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"decoding poll response: %v", err)
		}

		switch pr.Status {
		case "complete":
			return &pr, nil
		case "failed":
			return nil, extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
				"processing failed: %s", pr.Error)
		default:
			// pending/processing: keep polling.
		}
	}
	return nil, extractor.Errorf(e.Name(), domain.ErrClassTimeout,
		"polling budget exhausted after %d polls (%s)", e.maxPolls,
		time.Duration(e.maxPolls)*e.pollInterval)
}

func (e *Extractor) buildSubmitBody(input port.ExtractInput) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", input.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := fw.Write(input.FileBytes); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}

	fields := map[string]string{
		"output_format":            "markdown,json",
		"mode":                     "accurate",
		"paginate":                 "false",
		"disable_image_extraction": "false",
		"page_schema":              input.Profile.SchemaJSON,
	}
	for k, val := range fields {
		if err := w.WriteField(k, val); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type httpResponse struct {
	status     int
	body       []byte
	retryAfter int
}

func (e *Extractor) doRequest(ctx context.Context, method, url string, body io.Reader, contentType string) (*httpResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", e.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling datalab API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &httpResponse{
		status:     resp.StatusCode,
		body:       respBody,
		retryAfter: extractor.ParseRetryAfterHeader(resp.Header.Get("Retry-After")),
	}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
