package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"perfeval-api/internal/media"
	"perfeval-api/internal/shared"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBedrock struct {
	lastInput *bedrockruntime.InvokeModelInput
	response  []byte
	err       error
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.response}, nil
}

type fakeSTS struct {
	account string
	err     error
	calls   atomic.Int64
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func testContent() *media.NormalizedContent {
	return &media.NormalizedContent{
		Prompt: "what is shown",
		Frames: []media.Frame{
			{Bytes: []byte{0xff, 0xd8, 0x01}, MimeType: "image/jpeg"},
			{Bytes: []byte{0xff, 0xd8, 0x02}, MimeType: "image/jpeg"},
		},
	}
}

func TestBedrockClaudeInvoke(t *testing.T) {
	br := &fakeBedrock{response: []byte(`{"content":[{"type":"text","text":"a cat"}]}`)}
	identity := NewIdentityCache(zaptest.NewLogger(t).Sugar(), &fakeSTS{account: "123456789012"})
	a := NewBedrockClaude(br, identity, "us-west-2", map[string]string{
		"claude-3-5-sonnet": "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
	})

	payload, err := a.Invoke(context.Background(), "claude-3-5-sonnet", testContent(), shared.GenerationParams{MaxTokens: 512, Temperature: 0.2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"a cat"}]}`, string(payload))

	// Cross-region key gets the account-qualified inference profile ARN.
	assert.Equal(t,
		"arn:aws:bedrock:us-west-2:123456789012:inference-profile/us.anthropic.claude-3-5-sonnet-20241022-v2:0",
		*br.lastInput.ModelId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(br.lastInput.Body, &body))
	assert.Equal(t, "bedrock-2023-05-31", body["anthropic_version"])
	assert.EqualValues(t, 512, body["max_tokens"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	blocks := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 3) // two images then the text
	assert.Equal(t, "image", blocks[0].(map[string]any)["type"])
	assert.Equal(t, "image", blocks[1].(map[string]any)["type"])
	last := blocks[2].(map[string]any)
	assert.Equal(t, "text", last["type"])
	assert.Equal(t, "what is shown", last["text"])
}

func TestBedrockNovaInvoke(t *testing.T) {
	br := &fakeBedrock{response: []byte(`{"output":{}}`)}
	identity := NewIdentityCache(zaptest.NewLogger(t).Sugar(), &fakeSTS{account: "123456789012"})
	a := NewBedrockNova(br, identity, "us-west-2", map[string]string{
		"nova-lite": "us.amazon.nova-lite-v1:0",
	})

	_, err := a.Invoke(context.Background(), "nova-lite", testContent(), shared.GenerationParams{MaxTokens: 256, Temperature: 0.1})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(br.lastInput.Body, &body))
	assert.Equal(t, "messages-v1", body["schemaVersion"])

	cfg := body["inferenceConfig"].(map[string]any)
	assert.EqualValues(t, 256, cfg["maxTokens"])

	blocks := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 3)
	_, hasImage := blocks[0].(map[string]any)["image"]
	assert.True(t, hasImage)
	assert.Equal(t, "what is shown", blocks[2].(map[string]any)["text"])
}

func TestBedrockIdentityFailureDegradesToBareID(t *testing.T) {
	br := &fakeBedrock{response: []byte(`{}`)}
	identity := NewIdentityCache(zaptest.NewLogger(t).Sugar(), &fakeSTS{err: errors.New("credentials expired")})
	a := NewBedrockClaude(br, identity, "us-west-2", map[string]string{
		"claude-3-5-haiku": "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	})

	_, err := a.Invoke(context.Background(), "claude-3-5-haiku", testContent(), shared.GenerationParams{MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "us.anthropic.claude-3-5-haiku-20241022-v1:0", *br.lastInput.ModelId)
}

func TestBedrockInvokeErrorWrapped(t *testing.T) {
	br := &fakeBedrock{err: errors.New("ThrottlingException")}
	identity := NewIdentityCache(zaptest.NewLogger(t).Sugar(), &fakeSTS{account: "123456789012"})
	a := NewBedrockNova(br, identity, "us-west-2", map[string]string{"nova-pro": "us.amazon.nova-pro-v1:0"})

	_, err := a.Invoke(context.Background(), "nova-pro", testContent(), shared.GenerationParams{})
	var adapterErr *shared.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "bedrock-nova", adapterErr.Backend)
	assert.Equal(t, "nova-pro", adapterErr.Model)
	assert.Contains(t, adapterErr.Error(), "ThrottlingException")
}

func TestIdentityCacheSingleLookup(t *testing.T) {
	fake := &fakeSTS{account: "123456789012"}
	cache := NewIdentityCache(zaptest.NewLogger(t).Sugar(), fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := cache.AccountID(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "123456789012", account)
		}()
	}
	wg.Wait()

	// Follow-up calls are served from memory.
	calls := fake.calls.Load()
	_, err := cache.AccountID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, fake.calls.Load())
	assert.Less(t, calls, int64(16), "concurrent callers should share in-flight lookups")
}
