// Package llm implements ProductExtractor against an OpenAI-compatible
// chat-completions API with structured JSON output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

const systemPrompt = `You extract product data from e-commerce page text.
Respond with a single JSON object with these keys: name, sku, price,
description, categories (array of strings), tags (array of strings),
specifications (object of string to string). Use empty values for fields the
page does not state. Do not invent data.`

// Config controls the extraction API client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Extractor calls the structured-output API once per page.
type Extractor struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model,omitempty"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Process implements catalog.ProductExtractor. Rate-limit responses come back
// as typed errors the retry policy recognizes; a page that yields no usable
// product is a per-item failure.
func (e *Extractor) Process(ctx context.Context, page catalog.PageRecord) (catalog.ProductRecord, error) {
	body, err := json.Marshal(chatRequest{
		Model: e.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent(page)},
		},
		Temperature:    e.cfg.Temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("marshal extraction request: %w", err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("extraction call: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("read extraction response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return catalog.ProductRecord{}, &catalog.RateLimitError{
			Message: apiMessage(payload),
			Code:    resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return catalog.ProductRecord{}, fmt.Errorf("extraction API status %d: %s",
			resp.StatusCode, apiMessage(payload))
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("decode extraction response: %w", err)
	}
	if chat.Error != nil {
		if strings.Contains(strings.ToLower(chat.Error.Type), "rate_limit") {
			return catalog.ProductRecord{}, &catalog.RateLimitError{Message: chat.Error.Message}
		}
		return catalog.ProductRecord{}, fmt.Errorf("extraction API error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return catalog.ProductRecord{}, fmt.Errorf("extraction response has no choices")
	}

	record, err := decodeProduct(chat.Choices[0].Message.Content)
	if err != nil {
		return catalog.ProductRecord{}, err
	}
	if record.Name == "" && record.SKU == "" {
		return catalog.ProductRecord{}, catalog.ErrNoProduct
	}
	record.SourceURL = page.URL
	e.logger.Debug("product extracted",
		zap.String("url", page.URL),
		zap.String("sku", record.SKU),
	)
	return record, nil
}

func userContent(page catalog.PageRecord) string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(page.URL)
	b.WriteString("\nTitle: ")
	b.WriteString(page.Title)
	b.WriteString("\n\n")
	b.WriteString(page.Content)
	return b.String()
}

// decodeProduct parses the model output, tolerating markdown code fences
// around the JSON object.
func decodeProduct(content string) (catalog.ProductRecord, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var record catalog.ProductRecord
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("decode product JSON: %w", err)
	}
	return record, nil
}

func apiMessage(payload []byte) string {
	var wrapper struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil && wrapper.Error != nil {
		return wrapper.Error.Message
	}
	s := strings.TrimSpace(string(payload))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
