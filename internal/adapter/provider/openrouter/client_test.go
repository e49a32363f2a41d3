package openrouter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeacherMada/tutor-engine/internal/adapter/provider/openrouter"
	"github.com/TeacherMada/tutor-engine/internal/config"
	"github.com/TeacherMada/tutor-engine/internal/domain"
)

func newClient(baseURL string) *openrouter.Client {
	return openrouter.New(config.Config{
		AppEnv:          "test",
		ProviderBaseURL: baseURL,
		ProviderTitle:   "tutor-engine-test",
	})
}

var (
	model = domain.ModelDescriptor{Index: 0, ID: "google/gemini-flash-1.5"}
	cred  = domain.Credential{Index: 1, Secret: "sk-test"}
)

func TestChatCompletion_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, model.ID, body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, 256, body.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Salama"}}]}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	raw, err := c.ChatCompletion(context.Background(), model, cred, domain.ChatRequest{
		System:    "be a tutor",
		Messages:  []domain.ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Salama")
}

func TestClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"quota", http.StatusTooManyRequests, domain.ErrQuotaExceeded},
		{"model gone", http.StatusNotFound, domain.ErrModelUnavailable},
		{"server error", http.StatusInternalServerError, domain.ErrTransient},
		{"bad gateway", http.StatusBadGateway, domain.ErrTransient},
		{"bad request", http.StatusBadRequest, domain.ErrFatal},
		{"bad key", http.StatusUnauthorized, domain.ErrFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			}))
			defer srv.Close()

			c := newClient(srv.URL)
			_, err := c.ChatCompletion(context.Background(), model, cred, domain.ChatRequest{
				Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := newClient(srv.URL)
	_, err := c.ChatCompletion(context.Background(), model, cred, domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestCancellationPropagates(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newClient(srv.URL)
	_, err := c.ChatCompletion(ctx, model, cred, domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTransient)
}

func TestSynthesizeSpeech_RawAudio(t *testing.T) {
	t.Parallel()
	audio := []byte{0xff, 0xfb, 0x90, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var body struct {
			Voice  string `json:"voice"`
			Format string `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alloy", body.Voice)
		assert.Equal(t, "mp3", body.Format)
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	raw, err := c.SynthesizeSpeech(context.Background(), model, cred, domain.SpeechRequest{Text: "Salama", Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, audio, raw)
}

func TestGenerateImage_RequestShape(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		var body struct {
			Prompt string `json:"prompt"`
			Size   string `json:"size"`
			Format string `json:"response_format"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a mango stall", body.Prompt)
		assert.Equal(t, "512x512", body.Size)
		assert.Equal(t, "b64_json", body.Format)
		_, _ = w.Write([]byte(`{"data":[{"b64_json":"aGVsbG8="}]}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	raw, err := c.GenerateImage(context.Background(), model, cred, domain.ImageRequest{Prompt: "a mango stall", Size: "512x512"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "b64_json")
}
