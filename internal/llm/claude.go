package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultClaudeModel is used when no model is configured.
const DefaultClaudeModel = string(anthropic.ModelClaudeSonnet4_20250514)

const claudeMaxTokens = 8192

// Claude implements Provider on the Anthropic API, optionally routed through
// AWS Bedrock.
type Claude struct {
	client anthropic.Client
	model  string
}

var _ Provider = (*Claude)(nil)

// NewClaude builds a Claude provider from opts. Without Bedrock, the API key
// comes from opts or ANTHROPIC_API_KEY.
func NewClaude(opts Options) (*Claude, error) {
	model := opts.Model
	if model == "" {
		model = DefaultClaudeModel
	}

	var reqOpts []option.RequestOption
	if opts.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if opts.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(opts.AWSRegion))
		}
		if opts.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.AWSProfile))
		}
		reqOpts = append(reqOpts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		key := opts.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("claude: no API key (set ANTHROPIC_API_KEY or pass --api-key)")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(key))
	}

	return &Claude{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Name implements Provider.
func (c *Claude) Name() string { return string(KindClaude) }

// Generate implements Provider.
func (c *Claude) Generate(ctx context.Context, userMessage, systemInstruction string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude generate: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	return text, nil
}

// ListModels implements Provider.
func (c *Claude) ListModels(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("claude list models: %w", err)
	}
	var names []string
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
