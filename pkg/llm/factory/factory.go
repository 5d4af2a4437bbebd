package factory

import (
	"fmt"

	"code-review-be/pkg/llm"
	"code-review-be/pkg/llm/huggingface"
	"code-review-be/pkg/llm/ollama"
)

// NewLLMProvider builds the completion backend named by providerType.
// apiKey is ignored by backends that run without one.
func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "huggingface", "":
		return huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName), nil
	case "ollama":
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
