package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// anthropicModels is the supported model set for the Anthropic provider.
var anthropicModels = map[string]bool{
	string(anthropic.ModelClaudeSonnet4_20250514):   true,
	string(anthropic.ModelClaudeSonnet4_5_20250929): true,
	string(anthropic.ModelClaudeHaiku4_5_20251001):  true,
	string(anthropic.ModelClaudeOpus4_1_20250805):   true,
	string(anthropic.ModelClaude3_7Sonnet20250219):  true,
	string(anthropic.ModelClaude3_5Haiku20241022):   true,

	// Alias names resolve server-side to the latest snapshot.
	"claude-sonnet-4-0": true,
	"claude-sonnet-4-5": true,
	"claude-haiku-4-5":  true,
	"claude-opus-4-1":   true,
}

// bedrockModels maps standard model names to Bedrock cross-region
// inference profiles.
var bedrockModels = map[string]string{
	string(anthropic.ModelClaudeSonnet4_20250514):   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	string(anthropic.ModelClaudeSonnet4_5_20250929): "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	string(anthropic.ModelClaudeHaiku4_5_20251001):  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	string(anthropic.ModelClaudeOpus4_1_20250805):   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	string(anthropic.ModelClaude3_7Sonnet20250219):  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	string(anthropic.ModelClaude3_5Haiku20241022):   "us.anthropic.claude-3-5-haiku-20241022-v1:0",

	"claude-sonnet-4-0": "us.anthropic.claude-sonnet-4-20250514-v1:0",
	"claude-sonnet-4-5": "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-haiku-4-5":  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-opus-4-1":   "us.anthropic.claude-opus-4-1-20250805-v1:0",
}

// bedrockProfiles is the set of inference profile ids, so a crew file can
// name a profile directly when running against Bedrock.
var bedrockProfiles = map[string]bool{}

func init() {
	for _, profile := range bedrockModels {
		bedrockProfiles[profile] = true
	}
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
	// UseBedrock routes calls through AWS Bedrock instead of the direct API.
	UseBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
}

// Anthropic is the Provider implementation backed by the Anthropic SDK,
// optionally over AWS Bedrock.
type Anthropic struct {
	client  anthropic.Client
	apiKey  string
	bedrock bool
}

// NewAnthropic creates an Anthropic provider from the given config.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	var opts []option.RequestOption
	apiKey := cfg.APIKey

	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return &Anthropic{
		client:  anthropic.NewClient(opts...),
		apiKey:  apiKey,
		bedrock: cfg.UseBedrock,
	}, nil
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return "anthropic" }

// ValidateCredentials checks that a credential source is configured. With
// Bedrock the AWS credential chain applies, so this is always true there.
func (p *Anthropic) ValidateCredentials() bool {
	if p.bedrock {
		return true
	}
	return p.apiKey != ""
}

// ValidateModel reports whether the model is in the supported set. In
// Bedrock mode the inference profile ids are accepted directly as well.
func (p *Anthropic) ValidateModel(model string) bool {
	if anthropicModels[model] {
		return true
	}
	return p.bedrock && bedrockProfiles[model]
}

// Send submits one prompt through the SDK and returns the concatenated
// text blocks of the response.
func (p *Anthropic) Send(ctx context.Context, req Request) (*Result, error) {
	if !p.ValidateModel(req.Model) {
		return nil, &ProviderError{
			Kind:     KindInvalidModel,
			Provider: p.Name(),
			Err:      fmt.Errorf("model %q is not supported", req.Model),
		}
	}

	model := req.Model
	if p.bedrock {
		if translated, ok := bedrockModels[model]; ok {
			model = translated
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	return &Result{
		Text:         text,
		Provider:     p.Name(),
		Model:        req.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classify maps SDK errors onto the gateway taxonomy.
func (p *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := KindUpstream
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			kind = KindAuth
		case apiErr.StatusCode == 404:
			kind = KindInvalidModel
		case apiErr.StatusCode == 429:
			kind = KindRateLimited
		case apiErr.StatusCode >= 500:
			kind = KindUpstream
		}
		return &ProviderError{Kind: kind, Provider: p.Name(), Err: err}
	}

	if ctxErr := classifyContextErr(p.Name(), err); ctxErr != err {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Kind: KindTransport, Provider: p.Name(), Err: err}
}
