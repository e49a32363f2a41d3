package usecase

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/TeacherMada/tutor-engine/internal/adapter/observability"
	"github.com/TeacherMada/tutor-engine/internal/domain"
	"github.com/TeacherMada/tutor-engine/internal/tokencount"
)

// Context window budget shared by the chain's candidate models. Prompts are
// clamped so prompt + reply stays under it.
const contextBudget = 8192

// Reply floor when a long prompt squeezes the completion budget.
const minReplyTokens = 256

const tutorSystemPrompt = `You are a patient language tutor. Reply in the learner's target language, ` +
	`correct mistakes gently, and keep answers short enough to read in one sitting.`

// TutorService exposes one asynchronous function per user-facing feature.
// Each feature gates on the ledger, delegates retry/fallback mechanics to the
// runner, deducts on success and only then parses the payload.
type TutorService struct {
	ledger    *Ledger
	runner    domain.Runner
	provider  domain.ProviderAdapter
	throttle  domain.Throttle
	counter   *tokencount.Counter
	primary   string
	maxReply  int
	voice     string
	imageSize string
}

// NewTutorService wires the feature executors. throttle may be nil.
func NewTutorService(ledger *Ledger, runner domain.Runner, provider domain.ProviderAdapter, throttle domain.Throttle, counter *tokencount.Counter, primaryModel string, maxReplyTokens int, voice, imageSize string) *TutorService {
	if maxReplyTokens <= 0 {
		maxReplyTokens = 1024
	}
	return &TutorService{
		ledger:    ledger,
		runner:    runner,
		provider:  provider,
		throttle:  throttle,
		counter:   counter,
		primary:   primaryModel,
		maxReply:  maxReplyTokens,
		voice:     voice,
		imageSize: imageSize,
	}
}

// execute runs the shared admission -> orchestrate -> deduct pipeline for one
// logical request and returns the raw provider payload.
func (s *TutorService) execute(ctx domain.Context, op, userID string, attempt domain.AttemptFunc) ([]byte, error) {
	start := time.Now()
	defer func() {
		observability.FeatureRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	reqID := ulid.Make().String()
	log := slog.With(slog.String("feature", op), slog.String("request_id", reqID), slog.String("user_id", userID))

	if s.throttle != nil {
		allowed, retryAfter, err := s.throttle.Allow(ctx, userID, 1)
		if err == nil && !allowed {
			observability.RequestsDeniedTotal.WithLabelValues(op, "rate_limited").Inc()
			log.Warn("request throttled", slog.Duration("retry_after", retryAfter))
			return nil, fmt.Errorf("op=%s: %w: retry after %s", op, domain.ErrRateLimited, retryAfter)
		}
		// Throttle errors fail open; credit gating below still applies.
	}

	if err := s.ledger.CheckAdmission(ctx, userID); err != nil {
		observability.RequestsDeniedTotal.WithLabelValues(op, "admission").Inc()
		log.Warn("admission denied", slog.Any("error", err))
		return nil, err
	}

	raw, err := s.runner.Execute(ctx, op, attempt)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.Deduct(ctx, userID)
	if err != nil {
		// The provider delivered, but the balance raced to zero between
		// admission and deduction. Surface the denial; nothing was charged.
		log.Error("deduction failed after provider success", slog.Any("error", err))
		return nil, err
	}
	log.Info("request completed", slog.Int64("balance", balance))
	return raw, nil
}

// replyBudget clamps the completion budget so prompt + reply fits the model
// context window.
func (s *TutorService) replyBudget(system string, msgs []domain.ChatMessage) int {
	budget := s.maxReply
	prompt := s.counter.EstimateChatTokens(system, msgs, s.primary)
	if prompt+budget > contextBudget {
		budget = contextBudget - prompt
	}
	if budget < minReplyTokens {
		budget = minReplyTokens
	}
	return budget
}

func (s *TutorService) chat(ctx domain.Context, op, userID, system string, msgs []domain.ChatMessage, temperature float64) (string, error) {
	req := domain.ChatRequest{
		System:      system,
		Messages:    msgs,
		MaxTokens:   s.replyBudget(system, msgs),
		Temperature: temperature,
	}
	raw, err := s.execute(ctx, op, userID, func(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential) ([]byte, error) {
		return s.provider.ChatCompletion(ctx, model, cred, req)
	})
	if err != nil {
		return "", err
	}
	return parseChatText(op, raw)
}

// ChatTurn sends one conversation turn to the tutor and returns its reply.
func (s *TutorService) ChatTurn(ctx domain.Context, userID string, history []domain.ChatMessage, message string) (string, error) {
	msgs := append(append([]domain.ChatMessage{}, history...), domain.ChatMessage{Role: "user", Content: message})
	return s.chat(ctx, "chat_turn", userID, tutorSystemPrompt, msgs, 0.7)
}

// Translate renders text from sourceLang into targetLang.
func (s *TutorService) Translate(ctx domain.Context, userID, text, sourceLang, targetLang string) (string, error) {
	system := fmt.Sprintf("You are a translator. Translate the user's text from %s to %s. Reply with the translation only.", sourceLang, targetLang)
	msgs := []domain.ChatMessage{{Role: "user", Content: text}}
	return s.chat(ctx, "translate", userID, system, msgs, 0.2)
}

// Summarize condenses a lesson or conversation into a short summary.
func (s *TutorService) Summarize(ctx domain.Context, userID, text string) (string, error) {
	system := "Summarize the user's text in a few short sentences, keeping the language of the original."
	msgs := []domain.ChatMessage{{Role: "user", Content: text}}
	return s.chat(ctx, "summarize", userID, system, msgs, 0.3)
}

// RoleplayTurn continues a roleplay scenario with the learner.
func (s *TutorService) RoleplayTurn(ctx domain.Context, userID, scenario string, history []domain.ChatMessage, message string) (string, error) {
	system := fmt.Sprintf("You are roleplaying the following scenario with a language learner. Stay in character.\nScenario: %s", scenario)
	msgs := append(append([]domain.ChatMessage{}, history...), domain.ChatMessage{Role: "user", Content: message})
	return s.chat(ctx, "roleplay_turn", userID, system, msgs, 0.8)
}

// GenerateExercises produces a typed exercise set for a topic and level.
func (s *TutorService) GenerateExercises(ctx domain.Context, userID, topic, level string, count int) (ExerciseSet, error) {
	if count <= 0 {
		count = 5
	}
	system := fmt.Sprintf(`You generate language exercises. Produce exactly %d multiple-choice exercises about %q for a %s learner. `+
		`Respond with JSON only, matching: {"topic": string, "exercises": [{"question": string, "choices": [string], "answer": string, "explanation": string}]}`,
		count, topic, level)
	msgs := []domain.ChatMessage{{Role: "user", Content: "Generate the exercise set."}}
	req := domain.ChatRequest{
		System:      system,
		Messages:    msgs,
		MaxTokens:   s.replyBudget(system, msgs),
		Temperature: 0.4,
	}
	raw, err := s.execute(ctx, "generate_exercises", userID, func(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential) ([]byte, error) {
		return s.provider.ChatCompletion(ctx, model, cred, req)
	})
	if err != nil {
		return ExerciseSet{}, err
	}
	return parseExerciseSet(raw)
}

// SynthesizeSpeech renders text to audio bytes.
func (s *TutorService) SynthesizeSpeech(ctx domain.Context, userID, text string) ([]byte, error) {
	req := domain.SpeechRequest{Text: text, Voice: s.voice}
	raw, err := s.execute(ctx, "synthesize_speech", userID, func(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential) ([]byte, error) {
		return s.provider.SynthesizeSpeech(ctx, model, cred, req)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("op=synthesize_speech.parse: %w: empty audio payload", domain.ErrMalformedResponse)
	}
	return raw, nil
}

// GenerateImage produces an illustration for a vocabulary item or scene.
func (s *TutorService) GenerateImage(ctx domain.Context, userID, prompt string) ([]byte, error) {
	req := domain.ImageRequest{Prompt: prompt, Size: s.imageSize}
	raw, err := s.execute(ctx, "generate_image", userID, func(ctx domain.Context, model domain.ModelDescriptor, cred domain.Credential) ([]byte, error) {
		return s.provider.GenerateImage(ctx, model, cred, req)
	})
	if err != nil {
		return nil, err
	}
	return parseImageBytes(raw)
}
