package usecase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Exercise is one multiple-choice item in a generated set.
type Exercise struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// ExerciseSet is a typed exercise payload returned by GenerateExercises.
type ExerciseSet struct {
	Topic     string     `json:"topic"`
	Exercises []Exercise `json:"exercises"`
}

// chatCompletion mirrors the OpenAI-compatible chat response shape.
type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// parseChatText extracts the assistant text from a chat completion body.
// Transport already succeeded by the time we are here, so any failure is a
// malformed response and the charge stands.
func parseChatText(op string, raw []byte) (string, error) {
	var out chatCompletion
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("op=%s.parse: %w: %w", op, domain.ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("op=%s.parse: %w: empty choices", op, domain.ErrMalformedResponse)
	}
	return out.Choices[0].Message.Content, nil
}

// parseExerciseSet decodes the JSON exercise payload from the assistant text.
func parseExerciseSet(raw []byte) (ExerciseSet, error) {
	text, err := parseChatText("generate_exercises", raw)
	if err != nil {
		return ExerciseSet{}, err
	}
	var set ExerciseSet
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &set); err != nil {
		return ExerciseSet{}, fmt.Errorf("op=generate_exercises.parse: %w: %w", domain.ErrMalformedResponse, err)
	}
	if len(set.Exercises) == 0 {
		return ExerciseSet{}, fmt.Errorf("op=generate_exercises.parse: %w: no exercises", domain.ErrMalformedResponse)
	}
	return set, nil
}

// imageGeneration mirrors the OpenAI-compatible image response shape.
type imageGeneration struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// parseImageBytes extracts and decodes the base64 image payload.
func parseImageBytes(raw []byte) ([]byte, error) {
	var out imageGeneration
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("op=generate_image.parse: %w: %w", domain.ErrMalformedResponse, err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("op=generate_image.parse: %w: empty data", domain.ErrMalformedResponse)
	}
	img, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("op=generate_image.parse: %w: %w", domain.ErrMalformedResponse, err)
	}
	return img, nil
}

// stripCodeFences removes a surrounding markdown code fence, which chat models
// often wrap JSON in despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
