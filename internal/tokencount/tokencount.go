// Package tokencount estimates prompt token usage so feature executors can
// clamp per-reply completion budgets under a model's context window.
//
// It uses tiktoken-go, a Go port of OpenAI's official tiktoken library.
// Encodings are approximate for non-OpenAI models but close enough for
// budgeting.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Counter provides thread-safe token counting.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// getEncodingForModel returns a cached tiktoken encoding for a model.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		// cl100k_base covers GPT-4-era models and is a fair approximation for
		// the rest of the catalog.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName converts provider-prefixed model IDs (e.g.
// "google/gemini-flash-1.5" or "meta-llama/llama-3.1-70b-instruct:free") to
// tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if strings.Contains(model, "/") {
		parts := strings.Split(model, "/")
		model = parts[len(parts)-1]
	}
	model = strings.TrimSuffix(model, ":free")

	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// GPT-4 tokenization is the closest stand-in for llama, gemini,
		// mistral and the other chain candidates.
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in a text string for a given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts prompt tokens for a chat completion request,
// including the per-message overhead used by OpenAI-compatible APIs.
func (c *Counter) CountChatTokens(system string, messages []domain.ChatMessage, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}

	// 3 tokens per message plus 1 for the role, and every reply is primed
	// with <|start|>assistant<|message|>.
	const tokensPerMessage = 3
	const tokensPerRole = 1

	n := 0
	if system != "" {
		n += tokensPerMessage + tokensPerRole
		n += len(enc.Encode("system", nil, nil))
		n += len(enc.Encode(system, nil, nil))
	}
	for _, m := range messages {
		n += tokensPerMessage + tokensPerRole
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	n += 3
	return n, nil
}

// EstimateChatTokens is CountChatTokens with a rough chars/4 fallback when the
// encoding cannot be loaded, so budgeting never fails a request.
func (c *Counter) EstimateChatTokens(system string, messages []domain.ChatMessage, model string) int {
	n, err := c.CountChatTokens(system, messages, model)
	if err == nil {
		return n
	}
	chars := len(system)
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}
