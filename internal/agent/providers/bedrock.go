package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/cognis/pkg/models"
)

// ErrMissingRegion is returned when no region is configured or found in the
// environment.
var ErrMissingRegion = errors.New("missing AWS region for Bedrock provider")

// ConverseAPI is the slice of the Bedrock runtime client the provider uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockConfig holds configuration for the Bedrock provider.
type BedrockConfig struct {
	Name string
	// Region falls back to AWS_REGION, then AWS_DEFAULT_REGION.
	Region string
	// APIBase overrides the runtime endpoint.
	APIBase string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Profile names a shared config profile, used when no key pair is set.
	Profile string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// BedrockProvider calls the Converse API. Tool calls and tool results are
// sent as toolUse/toolResult blocks; system messages become system blocks.
type BedrockProvider struct {
	name   string
	client ConverseAPI
}

// NewBedrockProvider loads AWS config and builds a runtime client.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	region := firstNonBlank(cfg.Region, getenv("AWS_REGION"), getenv("AWS_DEFAULT_REGION"))
	if region == "" {
		return nil, ErrMissingRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	switch {
	case strings.TrimSpace(cfg.AccessKeyID) != "" && strings.TrimSpace(cfg.SecretAccessKey) != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(cfg.AccessKeyID),
			strings.TrimSpace(cfg.SecretAccessKey),
			strings.TrimSpace(cfg.SessionToken),
		)))
	case strings.TrimSpace(cfg.Profile) != "":
		opts = append(opts, config.WithSharedConfigProfile(strings.TrimSpace(cfg.Profile)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	base := strings.TrimSpace(cfg.APIBase)
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if base != "" {
			o.BaseEndpoint = aws.String(base)
		}
	})
	return NewBedrockProviderWithClient(cfg.Name, client), nil
}

// NewBedrockProviderWithClient wraps an existing Converse client.
func NewBedrockProviderWithClient(name string, client ConverseAPI) *BedrockProvider {
	if name == "" {
		name = "bedrock"
	}
	return &BedrockProvider{name: name, client: client}
}

func (p *BedrockProvider) Name() string {
	return p.name
}

func (p *BedrockProvider) Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	if strings.TrimSpace(model) == "" {
		return missingCredential("model", p.name)
	}
	modelID := normalizeBedrockModel(model)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: toBedrockMessages(transcript),
	}
	for _, m := range transcript {
		if m.Role == models.RoleSystem && strings.TrimSpace(m.Content) != "" {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		}
	}
	if toolConfig := toBedrockTools(tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return failure(p.wrapError(err, modelID))
	}
	return parseBedrockOutput(out)
}

func normalizeBedrockModel(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(strings.ToLower(model), "bedrock/") {
		return model[len("bedrock/"):]
	}
	return model
}

func toBedrockMessages(transcript []models.ChatMessage) []types.Message {
	out := make([]types.Message, 0, len(transcript))
	for _, m := range transcript {
		var content []types.ContentBlock
		switch {
		case m.Role == models.RoleSystem:
			continue

		case m.Role == models.RoleAssistant && len(m.ToolCalls) > 0:
			if strings.TrimSpace(m.Content) != "" {
				content = append(content, &types.ContentBlockMemberText{Value: m.Content})
			}
			for i, call := range m.ToolCalls {
				id := call.ID
				if strings.TrimSpace(id) == "" {
					id = fmt.Sprintf("tool_%d", i)
				}
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				content = append(content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(id),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}

		case m.Role == models.RoleTool:
			content = append(content, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Status:    types.ToolResultStatusSuccess,
				Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
			}})

		case strings.TrimSpace(m.Content) != "":
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}

		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out
}

func toBedrockTools(defs []models.ToolDefinition) *types.ToolConfiguration {
	var tools []types.Tool
	for _, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(def.ParametersMap())},
		}})
	}
	if len(tools) == 0 {
		return nil
	}
	return &types.ToolConfiguration{Tools: tools}
}

func parseBedrockOutput(out *bedrockruntime.ConverseOutput) *models.LLMResponse {
	resp := &models.LLMResponse{Usage: map[string]any{}}
	if out == nil {
		return resp
	}

	var content strings.Builder
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for i, block := range msg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				content.WriteString(b.Value)
			case *types.ContentBlockMemberToolUse:
				args := map[string]any{}
				if b.Value.Input != nil {
					if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil || args == nil {
						args = map[string]any{}
					}
				}
				id := aws.ToString(b.Value.ToolUseId)
				if id == "" {
					id = fmt.Sprintf("tool_%d", i)
				}
				resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
					ID:        id,
					Name:      aws.ToString(b.Value.Name),
					Arguments: args,
				})
			}
		}
	}
	resp.Content = content.String()

	if out.Usage != nil {
		resp.Usage["input_tokens"] = int(aws.ToInt32(out.Usage.InputTokens))
		resp.Usage["output_tokens"] = int(aws.ToInt32(out.Usage.OutputTokens))
		resp.Usage["total_tokens"] = int(aws.ToInt32(out.Usage.TotalTokens))
	}
	return resp
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	providerErr := NewProviderError(p.name, model, err)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithCode(apiErr.ErrorCode()).WithMessage(apiErr.ErrorMessage())
	}
	return providerErr
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
