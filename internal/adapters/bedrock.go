package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"perfeval-api/internal/media"
	"perfeval-api/internal/shared"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockInvoker abstracts the Bedrock InvokeModel call for testing.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// bodyBuilder serializes NormalizedContent into one family's native
// invoke-model body.
type bodyBuilder func(content *media.NormalizedContent, params shared.GenerationParams) ([]byte, error)

// BedrockAdapter invokes Anthropic Claude or Amazon Nova models through
// the Bedrock runtime. Each registered model key maps to a Bedrock model
// ID; keys with a cross-region routing prefix ("us.", "eu.", ...) are
// upgraded to an account-qualified inference-profile ARN when the caller
// identity is resolvable, and degrade to the bare model ID when it is not.
type BedrockAdapter struct {
	backend  string
	client   BedrockInvoker
	identity *IdentityCache
	region   string
	models   map[string]string
	build    bodyBuilder
}

func NewBedrockClaude(client BedrockInvoker, identity *IdentityCache, region string, models map[string]string) *BedrockAdapter {
	return &BedrockAdapter{
		backend:  "bedrock-claude",
		client:   client,
		identity: identity,
		region:   region,
		models:   models,
		build:    buildClaudeBody,
	}
}

func NewBedrockNova(client BedrockInvoker, identity *IdentityCache, region string, models map[string]string) *BedrockAdapter {
	return &BedrockAdapter{
		backend:  "bedrock-nova",
		client:   client,
		identity: identity,
		region:   region,
		models:   models,
		build:    buildNovaBody,
	}
}

func (a *BedrockAdapter) Backend() string { return a.backend }

// ModelKeys lists the identifiers this adapter claims, for registration.
func (a *BedrockAdapter) ModelKeys() []string {
	keys := make([]string, 0, len(a.models))
	for k := range a.models {
		keys = append(keys, k)
	}
	return keys
}

func (a *BedrockAdapter) Invoke(ctx context.Context, model string, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error) {
	wireID, ok := a.models[model]
	if !ok {
		return nil, wrapErr(a.backend, model, fmt.Errorf("model key not mapped to a bedrock model id"))
	}

	body, err := a.build(content, params)
	if err != nil {
		return nil, wrapErr(a.backend, model, err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.routeID(ctx, wireID)),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, wrapErr(a.backend, model, err)
	}
	return json.RawMessage(out.Body), nil
}

// routeID upgrades cross-region model IDs to an inference-profile ARN.
// Identity lookup failure falls back to the plain ID, which Bedrock still
// accepts for same-region invocation.
func (a *BedrockAdapter) routeID(ctx context.Context, wireID string) string {
	if !hasGeoPrefix(wireID) {
		return wireID
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	account, err := a.identity.AccountID(lookupCtx)
	if err != nil {
		return wireID
	}
	return fmt.Sprintf("arn:aws:bedrock:%s:%s:inference-profile/%s", a.region, account, wireID)
}

func hasGeoPrefix(id string) bool {
	for _, p := range []string{"us.", "eu.", "apac."} {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

type claudeMessage struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

func buildClaudeBody(content *media.NormalizedContent, params shared.GenerationParams) ([]byte, error) {
	blocks := make([]json.RawMessage, 0, len(content.Frames)+1)
	for _, f := range content.Frames {
		block, err := json.Marshal(map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": f.MimeType,
				"data":       base64.StdEncoding.EncodeToString(f.Bytes),
			},
		})
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	text, err := json.Marshal(map[string]any{"type": "text", "text": content.Prompt})
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, text)

	return json.Marshal(map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        params.MaxTokens,
		"temperature":       params.Temperature,
		"messages": []claudeMessage{
			{Role: "user", Content: blocks},
		},
	})
}

func buildNovaBody(content *media.NormalizedContent, params shared.GenerationParams) ([]byte, error) {
	blocks := make([]map[string]any, 0, len(content.Frames)+1)
	for _, f := range content.Frames {
		blocks = append(blocks, map[string]any{
			"image": map[string]any{
				"format": "jpeg",
				"source": map[string]any{
					"bytes": base64.StdEncoding.EncodeToString(f.Bytes),
				},
			},
		})
	}
	blocks = append(blocks, map[string]any{"text": content.Prompt})

	return json.Marshal(map[string]any{
		"schemaVersion": "messages-v1",
		"messages": []map[string]any{
			{"role": "user", "content": blocks},
		},
		"inferenceConfig": map[string]any{
			"maxTokens":   params.MaxTokens,
			"temperature": params.Temperature,
		},
	})
}
