// ABOUTME: OpenAI client for embeddings, disorder classification, and counseling replies
// ABOUTME: Works against any OpenAI-compatible base URL with bounded, context-aware retries
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is the default model for counseling replies
	DefaultChatModel = "gpt-4o-mini"
	// DefaultClassifierModel is the default model for narrative classification
	DefaultClassifierModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for corpus and query embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	ClassifierModel string
	EmbeddingModel  string
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:          apiKey,
		ChatModel:       DefaultChatModel,
		ClassifierModel: DefaultClassifierModel,
		EmbeddingModel:  DefaultEmbeddingModel,
		MaxRetries:      3,
		RetryDelay:      time.Second * 2,
	}
}

// OpenAIClient wraps the OpenAI API client with retry logic
type OpenAIClient struct {
	client          *openai.Client
	chatModel       string
	classifierModel string
	embeddingModel  string
	maxRetries      int
	retryDelay      time.Duration
}

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", models.ErrConfiguration)
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:          openai.NewClientWithConfig(oc),
		chatModel:       config.ChatModel,
		classifierModel: config.ClassifierModel,
		embeddingModel:  config.EmbeddingModel,
		maxRetries:      config.MaxRetries,
		retryDelay:      config.RetryDelay,
	}, nil
}

// EmbeddingModel names the model behind Embed; cached vectors are keyed by it
func (c *OpenAIClient) EmbeddingModel() string {
	return c.embeddingModel
}

// retry runs fn until it succeeds, the attempts run out, or ctx ends.
// The context error wins over the last attempt error so callers can tell a
// deadline from a failing service.
func (c *OpenAIClient) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.SleepContext(ctx, util.CalculateBackoff(c.retryDelay, attempt)); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.maxRetries+1, lastErr)
}

// Embed returns the embedding vector for text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var embedding64 []float64
	err := c.retry(ctx, "embed", func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("no embeddings returned")
		}

		// Convert []float32 to []float64
		embedding32 := resp.Data[0].Embedding
		embedding64 = make([]float64, len(embedding32))
		for i, v := range embedding32 {
			embedding64[i] = float64(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embedding64, nil
}

const classifySystemPrompt = `You are a mental health intake assistant. Read the person's description of how they feel and decide which one category fits best.

Allowed categories: %s

Return ONLY a JSON object with two fields:
- label: exactly one of the allowed categories
- confidence: a number between 0.0 and 1.0

No additional text.`

type classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassifyDisorder asks the classifier model to pick one of labels for text.
// The returned label is whatever the model said; callers validate it.
func (c *OpenAIClient) ClassifyDisorder(ctx context.Context, text string, labels []string) (string, float64, error) {
	var result classification
	err := c.retry(ctx, "classify", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.classifierModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: fmt.Sprintf(classifySystemPrompt, strings.Join(labels, ", ")),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: text,
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}

		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return result.Label, result.Confidence, nil
}

// Generate produces the counselor reply for an assembled prompt
func (c *OpenAIClient) Generate(ctx context.Context, prompt models.Prompt) (string, error) {
	messages := BuildMessages(prompt)

	var reply string
	err := c.retry(ctx, "generate", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    messages,
			Temperature: 0.7,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
		if reply == "" {
			return errors.New("empty completion")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// BuildMessages lays a prompt out as chat messages: system instructions with
// the retrieved passages, the remembered turns oldest first, then the new message.
func BuildMessages(prompt models.Prompt) []openai.ChatCompletionMessage {
	system := prompt.System
	if len(prompt.Passages) > 0 {
		system += "\n\n" + strings.Join(prompt.Passages, "\n\n")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range prompt.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.UserMessage,
	})
	return messages
}
