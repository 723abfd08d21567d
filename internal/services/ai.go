package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/huangang/codecollab/backend/pkg/response"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Completer turns a prompt into model text.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// systemInstruction asks for the JSON reply the workspace client renders:
// a chat text, and optionally a file tree with build and start commands.
const systemInstruction = `You are an expert software engineer with 10 years of experience in development.
You write modular code, break it into files where it helps, follow best practices, keep existing
functionality working when adding new features, handle errors and edge cases, and add clear comments.

Always answer with a single JSON object of the form:
{
  "text": "explanation for the user",
  "fileTree": {
    "app.js": { "file": { "contents": "..." } },
    "src": { "directory": { "index.js": { "file": { "contents": "..." } } } }
  },
  "buildCommand": { "mainItem": "npm", "commands": ["install"] },
  "startCommand": { "mainItem": "node", "commands": ["app.js"] }
}
Only "text" is required. Do not use file names like routes/index.js; nest files inside "directory" nodes.`

type AIService struct {
	config *config.AIConfig
}

func NewAIService(cfg *config.AIConfig) *AIService {
	return &AIService{config: cfg}
}

// Timeout bounds a single call made on behalf of the chat relay.
func (s *AIService) Timeout() time.Duration {
	if s.config.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.config.TimeoutSeconds) * time.Second
}

// Generate makes exactly one provider call. There is no retry and no cache.
func (s *AIService) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", response.NewBadRequest("prompt is required")
	}

	logger.Info().Str("provider", s.provider()).Str("model", s.config.Model).Int("prompt_len", len(prompt)).Msg("[AI] Generating")

	content, err := s.callLLM(ctx, prompt)
	if err != nil {
		return "", err
	}
	logger.Info().Int("response_len", len(content)).Msg("[AI] Response received")
	return content, nil
}

func (s *AIService) provider() string {
	if s.config.Provider == "" {
		return "gemini"
	}
	return s.config.Provider
}

// callLLM dispatches to the provider-specific function.
func (s *AIService) callLLM(ctx context.Context, prompt string) (string, error) {
	switch s.provider() {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "ollama":
		return s.callOllama(ctx, prompt)
	case "gemini":
		return s.callGemini(ctx, prompt)
	case "azure":
		return s.callAzure(ctx, prompt)
	default:
		// openai and other OpenAI-compatible services
		return s.callOpenAI(ctx, prompt)
	}
}

func (s *AIService) temperature() float32 {
	if s.config.Temperature > 0 {
		return float32(s.config.Temperature)
	}
	return 0.4
}

func (s *AIService) maxTokens() int {
	if s.config.MaxTokens > 0 {
		return s.config.MaxTokens
	}
	return 4096
}

func (s *AIService) chatMessages(prompt string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom endpoints)
func (s *AIService) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientConfig.BaseURL = s.config.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    s.chatMessages(prompt),
		Temperature: s.temperature(),
		MaxTokens:   s.maxTokens(),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// callAzure uses the model field as the deployment name.
func (s *AIService) callAzure(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClientWithConfig(openai.DefaultAzureConfig(s.config.APIKey, s.config.BaseURL))

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    s.chatMessages(prompt),
		Temperature: s.temperature(),
		MaxTokens:   s.maxTokens(),
	})
	if err != nil {
		return "", fmt.Errorf("Azure OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from Azure OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *AIService) callAnthropic(ctx context.Context, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(s.config.APIKey)}
	if s.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.config.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := s.config.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(s.maxTokens()),
		Temperature: anthropic.Float(float64(s.temperature())),
		System:      []anthropic.TextBlockParam{{Text: systemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

func (s *AIService) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := s.config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := s.config.Model
	if model == "" {
		model = "llama3"
	}

	stream := false
	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model:  model,
		Stream: &stream,
		Format: []byte(`"json"`),
		Messages: []api.Message{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": s.temperature(),
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return content.String(), nil
}

func (s *AIService) callGemini(ctx context.Context, prompt string) (string, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  s.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: s.config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := s.config.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := s.temperature()
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   int32(s.maxTokens()),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}
