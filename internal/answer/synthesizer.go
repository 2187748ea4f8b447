// Package answer turns a question and its retrieved passages into a final
// natural-language answer through an OpenAI-compatible chat-completions
// endpoint.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

// Context is cut off past this size so a huge corpus cannot blow the model's
// window.
const maxContextChars = 100000

const systemPrompt = `You are a helpful assistant that answers questions based on member messages.

RULES:
1. Answer based ONLY on the information in the messages
2. Be CONCISE - one or two sentences maximum
3. If information is not available, say ONLY: "I don't have that information"
4. For dates: provide the exact date/time mentioned
5. For counts: provide just the number
6. For lists: provide comma-separated items
7. Do NOT add explanations or caveats unless necessary
8. Extract ONLY the specific information asked for`

// Config configures the synthesizer.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Synthesizer calls the language model.
type Synthesizer struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	httpc     *http.Client
	logger    *zap.Logger
}

var _ domain.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a chat-completions synthesizer.
func NewSynthesizer(cfg Config, logger *zap.Logger) (*Synthesizer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llm base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpc:     &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Synthesize answers the question from the given passages only.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []domain.Message) (string, error) {
	userPrompt := fmt.Sprintf(
		"Based on these member messages:\n\n%s\n\nQuestion: %s\n\nProvide a direct answer based only on the information above.",
		prepareContext(passages), question)

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.logger.Debug("calling language model", zap.String("model", s.model))
	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completion failed with status %d: %s", resp.StatusCode, payload)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// prepareContext renders passages in the same User/Date/Message form used
// for embedding, separated for readability, truncated at maxContextChars.
func prepareContext(passages []domain.Message) string {
	lines := make([]string, len(passages))
	for i, m := range passages {
		lines[i] = m.Passage()
	}
	context := strings.Join(lines, "\n---\n")
	if len(context) > maxContextChars {
		context = context[:maxContextChars] + "\n\n[... truncated ...]"
	}
	return context
}
