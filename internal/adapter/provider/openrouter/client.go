// Package openrouter implements the provider adapter against an
// OpenAI-compatible API (OpenRouter by default).
//
// Failures are classified into the domain's structured error kinds by HTTP
// status, never by matching substrings of a vendor's error text. Raw response
// bodies are returned unparsed; interpretation belongs to the feature
// executor's parser.
package openrouter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/TeacherMada/tutor-engine/internal/config"
	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Client implements domain.ProviderAdapter over HTTP.
type Client struct {
	baseURL string
	referer string
	title   string
	hc      *http.Client
}

// New constructs a provider client. The HTTP client timeout is a backstop;
// the orchestrator's per-attempt deadline is what actually bounds calls.
func New(cfg config.Config) *Client {
	timeout := 90 * time.Second
	if cfg.IsDev() {
		timeout = 180 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.ProviderBaseURL, "/"),
		referer: cfg.ProviderReferer,
		title:   cfg.ProviderTitle,
		hc:      &http.Client{Timeout: timeout},
	}
}

// ChatCompletion posts a chat completion request and returns the raw body.
func (c *Client) ChatCompletion(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential, req domain.ChatRequest) ([]byte, error) {
	msgs := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	body := map[string]any{
		"model":       model.ID,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"messages":    msgs,
	}
	return c.post(ctx, "chat", model, cred, "/chat/completions", body)
}

// SynthesizeSpeech posts a speech synthesis request and returns raw audio bytes.
func (c *Client) SynthesizeSpeech(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential, req domain.SpeechRequest) ([]byte, error) {
	format := req.Format
	if format == "" {
		format = "mp3"
	}
	body := map[string]any{
		"model":           model.ID,
		"input":           req.Text,
		"voice":           req.Voice,
		"response_format": format,
	}
	return c.post(ctx, "speech", model, cred, "/audio/speech", body)
}

// GenerateImage posts an image generation request and returns the raw body.
func (c *Client) GenerateImage(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential, req domain.ImageRequest) ([]byte, error) {
	body := map[string]any{
		"model":           model.ID,
		"prompt":          req.Prompt,
		"n":               1,
		"size":            req.Size,
		"response_format": "b64_json",
	}
	return c.post(ctx, "image", model, cred, "/images/generations", body)
}

// post performs one call and classifies the outcome. The credential secret
// only ever appears in the Authorization header.
func (c *Client) post(ctx domain.Context, op string, model domain.ModelDescriptor, cred domain.Credential, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=provider.%s: %w: %w", op, domain.ErrFatal, err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("op=provider.%s: %w: %w", op, domain.ErrFatal, err)
	}
	r.Header.Set("Authorization", "Bearer "+cred.Secret)
	r.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		r.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		r.Header.Set("X-Title", c.title)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("op=provider.%s: %w", op, ctx.Err())
		}
		slog.Warn("provider network failure",
			slog.String("op", op),
			slog.String("model", model.ID),
			slog.Int("credential_index", cred.Index),
			slog.Any("error", err))
		return nil, fmt.Errorf("op=provider.%s: %w: %w", op, domain.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("provider response read failure", slog.String("op", op), slog.String("model", model.ID), slog.Any("error", err))
		return nil, fmt.Errorf("op=provider.%s: %w: %w", op, domain.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return bodyBytes, nil
	}

	snippet := string(bodyBytes)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	kind := classifyStatus(resp.StatusCode)
	slog.Warn("provider non-2xx",
		slog.String("op", op),
		slog.String("model", model.ID),
		slog.Int("credential_index", cred.Index),
		slog.Int("status", resp.StatusCode),
		slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
		slog.String("body", snippet))
	return nil, fmt.Errorf("op=provider.%s: %w: status %d", op, kind, resp.StatusCode)
}

// classifyStatus maps an HTTP status to a structured error kind.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrQuotaExceeded
	case status == http.StatusNotFound:
		return domain.ErrModelUnavailable
	case status >= 500:
		return domain.ErrTransient
	default:
		return domain.ErrFatal
	}
}
