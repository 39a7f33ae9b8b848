package eino

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"navigator/prompts"
)

// Config represents the configuration for Eino LLM integration
type Config struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	// MaxPageChars caps the page text sent to the model.
	MaxPageChars int `json:"max_page_chars"`
}

// Service wraps an Eino chat model with the product extraction prompt.
type Service struct {
	config    Config
	chatModel model.BaseChatModel
	product   prompt.ChatTemplate
}

// Product is the model's reading of a product page.
type Product struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Availability string  `json:"availability"`
}

// PageRequest is the input for one extraction call.
type PageRequest struct {
	Query    string
	URL      string
	Text     string
	Currency string
}

// NewService creates a new Eino service instance with proper provider initialization
func NewService(config Config) (*Service, error) {
	var chatModel model.BaseChatModel
	switch strings.ToLower(config.Provider) {
	case "gemini":
		m, err := newGeminiModel(config)
		if err != nil {
			return nil, err
		}
		chatModel = m
	default:
		return nil, fmt.Errorf("unsupported provider: %s. Supported: gemini", config.Provider)
	}
	return NewServiceWithModel(config, chatModel), nil
}

// NewServiceWithModel uses a pre-configured chat model. Tests pass a fake here.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	if config.MaxPageChars <= 0 {
		config.MaxPageChars = 12000
	}
	return &Service{
		config:    config,
		chatModel: chatModel,
		product:   prompts.NewSystemPrompts().ProductJSON,
	}
}

func newGeminiModel(config Config) (model.BaseChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	m, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  config.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	return m, nil
}

// ExtractProduct asks the model for the product shown on a page.
func (s *Service) ExtractProduct(ctx context.Context, req PageRequest) (*Product, error) {
	if s.chatModel == nil {
		return nil, fmt.Errorf("chat model not initialized")
	}
	text := req.Text
	if len(text) > s.config.MaxPageChars {
		text = text[:s.config.MaxPageChars]
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	messages, err := s.product.Format(ctx, map[string]any{
		prompts.VarQuery:    req.Query,
		prompts.VarPageURL:  req.URL,
		prompts.VarPageText: text,
		prompts.VarCurrency: currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format chat template: %w", err)
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	return parseProduct(response.Content)
}

// parseProduct strips markdown fences the model sometimes adds despite the prompt.
func parseProduct(content string) (*Product, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var p Product
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	return &p, nil
}
