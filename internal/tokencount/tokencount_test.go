package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"google/gemini-flash-1.5", "gpt-4"},
		{"meta-llama/llama-3.1-70b-instruct:free", "gpt-4"},
		{"openai/gpt-3.5-turbo", "gpt-3.5-turbo"},
		{"mistralai/mistral-7b-instruct", "gpt-4"},
		{"GPT-3.5-Turbo", "gpt-3.5-turbo"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeModelName(tc.in), tc.in)
	}
}

func TestEstimateChatTokens_GrowsWithContent(t *testing.T) {
	t.Parallel()
	c := NewCounter()

	short := c.EstimateChatTokens("tutor prompt", []domain.ChatMessage{
		{Role: "user", Content: "hello"},
	}, "google/gemini-flash-1.5")
	long := c.EstimateChatTokens("tutor prompt", []domain.ChatMessage{
		{Role: "user", Content: strings.Repeat("a long lesson about greetings ", 50)},
	}, "google/gemini-flash-1.5")

	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestEstimateChatTokens_NeverFails(t *testing.T) {
	t.Parallel()
	c := NewCounter()
	// Even a model id tiktoken has never heard of yields a usable estimate.
	n := c.EstimateChatTokens("", []domain.ChatMessage{
		{Role: "user", Content: strings.Repeat("mofo gasy ", 20)},
	}, "vendor/entirely-made-up-model")
	assert.Greater(t, n, 0)
}
