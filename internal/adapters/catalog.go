package adapters

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bedrock model keys exposed to clients, mapped to wire IDs. Keys are
// what the UI sends in "models"; values are what Bedrock expects.
var claudeModels = map[string]string{
	"claude-3-5-sonnet": "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku":  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-7-sonnet": "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
}

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-lite-v1:0",
	"nova-pro":  "us.amazon.nova-pro-v1:0",
}

// Config carries the externally-supplied backend settings.
type Config struct {
	AWSConfig aws.Config
	Region    string

	// OpenAI-compatible external endpoint (empty disables the backend).
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModels  map[string]string

	// EMD deployment endpoint + per-model deployments.
	EMDBaseURL string
	EMDModels  map[string]EMDModel

	Redis *redis.Client
}

// BuildRegistry constructs the process-wide adapter singletons and claims
// their model identifiers. Called once at startup.
func BuildRegistry(log *zap.SugaredLogger, cfg Config) *Registry {
	registry := NewRegistry()

	identity := NewIdentityCache(log, sts.NewFromConfig(cfg.AWSConfig))
	bedrockClient := bedrockruntime.NewFromConfig(cfg.AWSConfig)

	claude := NewBedrockClaude(bedrockClient, identity, cfg.Region, claudeModels)
	for _, key := range claude.ModelKeys() {
		registry.Register(key, claude)
	}

	nova := NewBedrockNova(bedrockClient, identity, cfg.Region, novaModels)
	for _, key := range nova.ModelKeys() {
		registry.Register(key, nova)
	}

	if cfg.OpenAIBaseURL != "" {
		openai := NewOpenAIAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModels)
		for _, key := range openai.ModelKeys() {
			registry.Register(key, openai)
		}
	}

	if len(cfg.EMDModels) > 0 {
		emd := NewEMDAdapter(log, cfg.EMDBaseURL, sagemakerruntime.NewFromConfig(cfg.AWSConfig), cfg.Redis, cfg.EMDModels)
		for _, key := range emd.ModelKeys() {
			registry.Register(key, emd)
		}
	}

	log.Infow("Adapter registry built", "models", registry.Models())
	return registry
}
