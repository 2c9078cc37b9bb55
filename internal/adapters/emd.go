package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"perfeval-api/internal/media"
	"perfeval-api/internal/shared"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const emdProbeCacheKey = "perfeval:v1:emd:http_available"

// SageMakerInvoker abstracts the SageMaker runtime call for testing.
type SageMakerInvoker interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// EMDAdapter invokes models deployed through EMD (Easy Model Deployer).
// The same logical backend is reachable over two transports: the
// deployment's OpenAI-compatible HTTP endpoint when one is up, and the
// SageMaker runtime otherwise. Transport choice is made from a cached
// availability probe, not from call-time errors, so a deployment that is
// up but briefly erroring is not silently rerouted.
type EMDAdapter struct {
	backend string
	Log     *zap.SugaredLogger

	BaseURL string
	Client  *http.Client

	SageMaker SageMakerInvoker
	Redis     *redis.Client

	// model key -> {openai wire id, sagemaker endpoint name}
	models map[string]EMDModel

	sf        singleflight.Group
	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

// EMDModel describes one EMD deployment.
type EMDModel struct {
	WireID   string
	Endpoint string
}

func NewEMDAdapter(log *zap.SugaredLogger, baseURL string, sm SageMakerInvoker, redisClient *redis.Client, models map[string]EMDModel) *EMDAdapter {
	return &EMDAdapter{
		backend:   "emd",
		Log:       log,
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: shared.DefaultHTTPTimeout},
		SageMaker: sm,
		Redis:     redisClient,
		models:    models,
	}
}

func (a *EMDAdapter) Backend() string { return a.backend }

func (a *EMDAdapter) ModelKeys() []string {
	keys := make([]string, 0, len(a.models))
	for k := range a.models {
		keys = append(keys, k)
	}
	return keys
}

func (a *EMDAdapter) Invoke(ctx context.Context, model string, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error) {
	m, ok := a.models[model]
	if !ok {
		return nil, wrapErr(a.backend, model, fmt.Errorf("model key not mapped to an emd deployment"))
	}

	if a.httpAvailable(ctx) {
		payload, err := a.invokeHTTP(ctx, m, content, params)
		if err != nil {
			return nil, wrapErr(a.backend, model, err)
		}
		return payload, nil
	}

	payload, err := a.invokeSageMaker(ctx, m, content, params)
	if err != nil {
		// Neither transport reachable: tell the operator how to fix it.
		return nil, wrapErr(a.backend, model, fmt.Errorf(
			"no reachable transport (http endpoint down, sagemaker: %w); deploy the model with: emd deploy --model-id %s",
			err, m.WireID))
	}
	return payload, nil
}

func (a *EMDAdapter) invokeHTTP(ctx context.Context, m EMDModel, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error) {
	body, err := json.Marshal(chatCompletionBody(m.WireID, content, params))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend status %d: %s", res.StatusCode, truncate(payload, 512))
	}
	return json.RawMessage(payload), nil
}

func (a *EMDAdapter) invokeSageMaker(ctx context.Context, m EMDModel, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error) {
	if a.SageMaker == nil {
		return nil, fmt.Errorf("sagemaker transport not configured")
	}

	body, err := json.Marshal(chatCompletionBody(m.WireID, content, params))
	if err != nil {
		return nil, err
	}

	out, err := a.SageMaker.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(m.Endpoint),
		Body:         body,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out.Body), nil
}

// httpAvailable reports whether the direct HTTP transport is up, caching
// the probe for DeployStatusCacheTTL. Concurrent expirations share one
// probe; the redis mirror lets sibling gateway processes skip theirs.
func (a *EMDAdapter) httpAvailable(ctx context.Context) bool {
	if a.BaseURL == "" {
		return false
	}

	a.mu.Lock()
	if time.Since(a.checkedAt) < shared.DeployStatusCacheTTL {
		defer a.mu.Unlock()
		return a.available
	}
	a.mu.Unlock()

	v, _, _ := a.sf.Do("probe", func() (any, error) {
		available, fromCache := a.cachedProbe(ctx)
		if !fromCache {
			available = a.probe(ctx)
			a.storeProbe(available)
		}
		a.mu.Lock()
		a.available = available
		a.checkedAt = time.Now()
		a.mu.Unlock()
		return available, nil
	})
	return v.(bool)
}

func (a *EMDAdapter) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, shared.DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.BaseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	res, err := a.Client.Do(req)
	if err != nil {
		a.Log.Infow("EMD http transport unavailable", "error", err)
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return res.StatusCode == http.StatusOK
}

func (a *EMDAdapter) cachedProbe(ctx context.Context) (available bool, ok bool) {
	if a.Redis == nil {
		return false, false
	}
	cached, err := a.Redis.Get(ctx, emdProbeCacheKey).Result()
	if err != nil {
		return false, false
	}
	return cached == "1", true
}

func (a *EMDAdapter) storeProbe(available bool) {
	if a.Redis == nil {
		return
	}
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		val := "0"
		if available {
			val = "1"
		}
		if err := a.Redis.Set(cacheCtx, emdProbeCacheKey, val, shared.DeployStatusCacheTTL).Err(); err != nil {
			a.Log.Warnw("Failed caching EMD probe result", "error", err)
		}
	}()
}
