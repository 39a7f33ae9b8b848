package prompts

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Template variables for ProductJSON.
const (
	VarQuery    = "query"
	VarPageURL  = "page_url"
	VarPageText = "page_text"
	VarCurrency = "currency"
)

// createProductJSONTemplate builds the single-product extraction prompt.
func createProductJSONTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You read the visible text of one product page and report the product being sold.

# Output Schema
{{"name": string, "price": number, "currency": string, "availability": "InStock" | "OutOfStock" | "PreOrder" | ""}}

# Critical Requirements
1. **Price**: the current selling price as a plain number. Ignore struck-through, list or MRP prices.
2. **Currency**: an ISO 4217 code such as USD or INR. If the page shows no currency use {currency}.
3. **Missing Data**: if the page does not show a price return {{"price": 0}}. NEVER guess.

**IMPORTANT**: Return ONLY the JSON object. No explanations, no markdown formatting.`),

		schema.UserMessage(`**Looking for**: {query}
**Page URL**: {page_url}

**Page Text**:
{page_text}`),
	)
}
