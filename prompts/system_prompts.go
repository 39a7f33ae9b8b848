package prompts

import (
	"github.com/cloudwego/eino/components/prompt"
)

// SystemPrompts holds the chat templates used by the LLM-backed strategies.
type SystemPrompts struct {
	// ProductJSON reads one product's name, price and stock state from page text.
	ProductJSON prompt.ChatTemplate
}

// NewSystemPrompts creates and initializes all prompt templates
func NewSystemPrompts() *SystemPrompts {
	return &SystemPrompts{
		ProductJSON: createProductJSONTemplate(),
	}
}
