package llm

import (
	"context"
	"fmt"
	"os"

	deepseek "github.com/trustsight-io/deepseek-go"
)

// DefaultDeepSeekModel is used when no model is configured.
const DefaultDeepSeekModel = "deepseek-chat"

// DeepSeek implements Provider on the DeepSeek chat completion API.
type DeepSeek struct {
	client *deepseek.Client
	model  string
}

var _ Provider = (*DeepSeek)(nil)

// NewDeepSeek builds a DeepSeek provider from opts. The API key comes from
// opts or DEEPSEEK_API_KEY.
func NewDeepSeek(opts Options) (*DeepSeek, error) {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv("DEEPSEEK_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("deepseek: no API key (set DEEPSEEK_API_KEY or pass --api-key)")
	}

	model := opts.Model
	if model == "" {
		model = DefaultDeepSeekModel
	}

	client, err := deepseek.NewClient(key)
	if err != nil {
		return nil, fmt.Errorf("deepseek client: %w", err)
	}
	return &DeepSeek{client: client, model: model}, nil
}

// Name implements Provider.
func (d *DeepSeek) Name() string { return string(KindDeepSeek) }

// Generate implements Provider.
func (d *DeepSeek) Generate(ctx context.Context, userMessage, systemInstruction string) (string, error) {
	var messages []deepseek.Message
	if systemInstruction != "" {
		messages = append(messages, deepseek.Message{
			Role:    deepseek.RoleSystem,
			Content: systemInstruction,
		})
	}
	messages = append(messages, deepseek.Message{
		Role:    deepseek.RoleUser,
		Content: userMessage,
	})

	resp, err := d.client.CreateChatCompletion(ctx, &deepseek.ChatCompletionRequest{
		Model:    d.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("deepseek generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("deepseek generate: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels implements Provider. The DeepSeek API exposes a fixed model set.
func (d *DeepSeek) ListModels(ctx context.Context) ([]string, error) {
	return []string{"deepseek-chat", "deepseek-reasoner"}, nil
}
