// Package gemini implements the one-shot structuring provider: it takes OCR
// text and asks a Gemini model for a structured DDT record in JSON mode.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/domain"
	"ddtcorpus/internal/extractor"
	"ddtcorpus/internal/port"
	"ddtcorpus/internal/ratelimit"
	"ddtcorpus/internal/schema"
)

const apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Extractor implements port.Extractor using Google's Gemini API.
type Extractor struct {
	apiKey         string
	model          string
	endpoint       string
	invalidRetries int
	rlRetries      int
	backoffBase    time.Duration
	gate           *ratelimit.Gate
	client         *http.Client
}

// NewExtractor creates a Gemini structuring extractor.
func NewExtractor(cfg *config.GeminiConfig, gate *ratelimit.Gate) *Extractor {
	return newExtractor(cfg, gate, "")
}

// NewExtractorWithEndpoint creates an extractor pointing at a custom API endpoint (for testing).
func NewExtractorWithEndpoint(cfg *config.GeminiConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	return newExtractor(cfg, gate, endpoint)
}

func newExtractor(cfg *config.GeminiConfig, gate *ratelimit.Gate, endpoint string) *Extractor {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	invalidRetries := cfg.InvalidRetries
	if invalidRetries == 0 {
		invalidRetries = 2
	}
	rlRetries := cfg.RateLimitRetries
	if rlRetries == 0 {
		rlRetries = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase == 0 {
		backoffBase = 2 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	return &Extractor{
		apiKey:         cfg.APIKey,
		model:          model,
		endpoint:       endpoint,
		invalidRetries: invalidRetries,
		rlRetries:      rlRetries,
		backoffBase:    backoffBase,
		gate:           gate,
		client:         &http.Client{Timeout: timeout},
	}
}

// Name implements port.Extractor.
func (e *Extractor) Name() string {
	return domain.ProviderGemini
}

// Extract asks the model for a structured record from input.RawText. An
// unparseable response re-invokes with a stronger formatting instruction up to
// the invalid-output budget; a content refusal fails immediately.
func (e *Extractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractionOutcome, error) {
	start := time.Now()

	if strings.TrimSpace(input.RawText) == "" {
		return nil, extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "empty OCR text")
	}

	prompt := input.Profile.Prompt
	if prompt == "" {
		prompt = schema.BuildPrompt()
	}

	var lastErr error
	for attempt := 0; attempt <= e.invalidRetries; attempt++ {
		p := prompt
		if attempt > 0 {
			p += schema.StrictJSONSuffix
		}

		text, err := e.generate(ctx, p, input.RawText, input.Profile)
		if err != nil {
			return nil, err
		}

		structured, parseErr := parseStructured(text)
		if parseErr != nil {
			lastErr = parseErr
			continue
		}
		return domain.SuccessOutcome(e.Name(), structured, "", time.Since(start)), nil
	}
	return nil, extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput,
		"invalid JSON after %d retries: %v", e.invalidRetries, lastErr)
}

// generate performs one API call, retrying only on 429.
func (e *Extractor) generate(ctx context.Context, prompt, ocrText string, profile domain.ExtractionProfile) (string, error) {
	temperature := profile.Temperature
	if temperature == 0 {
		temperature = 0.1
	}
	maxTokens := profile.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": prompt + "\n\nTESTO OCR DEL DOCUMENTO:\n" + ocrText},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"temperature":      temperature,
			"maxOutputTokens":  maxTokens,
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "marshaling request: %v", err)
	}

	for attempt := 1; attempt <= e.rlRetries; attempt++ {
		if err := e.gate.Acquire(ctx); err != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			e.gate.Release()
			return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "creating request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, doErr := e.client.Do(req)
		e.gate.Release()
		if doErr != nil {
			if ctx.Err() != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, doErr)
			}
			return "", extractor.NewError(e.Name(), domain.ErrClassTransientNetwork, doErr)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return "", extractor.NewError(e.Name(), domain.ErrClassTransientNetwork, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt == e.rlRetries {
				return "", extractor.Errorf(e.Name(), domain.ErrClassRateLimitExhausted,
					"rate limited %d times", attempt)
			}
			delay := extractor.BackoffDelay(attempt-1, e.backoffBase, 60*time.Second,
				extractor.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
			if err := extractor.Sleep(ctx, delay); err != nil {
				return "", extractor.NewError(e.Name(), domain.ErrClassTimeout, err)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", extractor.Errorf(e.Name(), domain.ErrClassTransientNetwork,
				"API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
		}
		return e.extractText(respBody)
	}
	return "", extractor.Errorf(e.Name(), domain.ErrClassRateLimitExhausted, "retry budget exhausted")
}

// generateResponse models the Gemini API response.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (e *Extractor) extractText(body []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "unmarshaling response: %v", err)
	}
	if resp.PromptFeedback.BlockReason != "" {
		return "", extractor.Errorf(e.Name(), domain.ErrClassProviderRefusal,
			"prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "empty response: no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
		return "", extractor.Errorf(e.Name(), domain.ErrClassProviderRefusal,
			"generation refused: %s", cand.FinishReason)
	}
	if len(cand.Content.Parts) == 0 {
		return "", extractor.Errorf(e.Name(), domain.ErrClassInvalidOutput, "empty response: no parts")
	}
	return cand.Content.Parts[0].Text, nil
}

// parseStructured decodes the model text as a JSON object and checks it
// against the extraction schema. Markdown code fences are stripped first.
func parseStructured(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var record map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		return nil, fmt.Errorf("parsing model output: %w (raw: %s)", err, truncate(text, 500))
	}
	if err := schema.Validate(record); err != nil {
		return nil, fmt.Errorf("output does not match extraction schema: %w", err)
	}
	return json.RawMessage(cleaned), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
