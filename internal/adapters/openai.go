package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"perfeval-api/internal/media"
	"perfeval-api/internal/shared"
)

// OpenAIAdapter talks to any OpenAI-compatible chat-completions endpoint
// (vLLM, SGLang, TGI and friends all speak this shape).
type OpenAIAdapter struct {
	backend string
	BaseURL string
	APIKey  string
	Client  *http.Client
	models  map[string]string
}

func NewOpenAIAdapter(baseURL, apiKey string, models map[string]string) *OpenAIAdapter {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
		DisableKeepAlives:   false,
	}
	return &OpenAIAdapter{
		backend: "openai-compatible",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Transport: tr, Timeout: shared.DefaultHTTPTimeout},
		models:  models,
	}
}

func (a *OpenAIAdapter) Backend() string { return a.backend }

func (a *OpenAIAdapter) ModelKeys() []string {
	keys := make([]string, 0, len(a.models))
	for k := range a.models {
		keys = append(keys, k)
	}
	return keys
}

func (a *OpenAIAdapter) Invoke(ctx context.Context, model string, content *media.NormalizedContent, params shared.GenerationParams) (json.RawMessage, error) {
	wireID, ok := a.models[model]
	if !ok {
		wireID = model
	}

	body, err := json.Marshal(chatCompletionBody(wireID, content, params))
	if err != nil {
		return nil, wrapErr(a.backend, model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, wrapErr(a.backend, model, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	res, err := a.Client.Do(req)
	if err != nil {
		return nil, wrapErr(a.backend, model, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, wrapErr(a.backend, model, fmt.Errorf("read response: %w", err))
	}
	if res.StatusCode != http.StatusOK {
		return nil, wrapErr(a.backend, model, fmt.Errorf("backend status %d: %s", res.StatusCode, truncate(payload, 512)))
	}
	return json.RawMessage(payload), nil
}

// chatCompletionBody builds a multimodal chat/completions request with
// data-URL image parts.
func chatCompletionBody(wireID string, content *media.NormalizedContent, params shared.GenerationParams) map[string]any {
	parts := make([]map[string]any, 0, len(content.Frames)+1)
	for _, f := range content.Frames {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": fmt.Sprintf("data:%s;base64,%s", f.MimeType, base64.StdEncoding.EncodeToString(f.Bytes)),
			},
		})
	}
	parts = append(parts, map[string]any{"type": "text", "text": content.Prompt})

	return map[string]any{
		"model": wireID,
		"messages": []map[string]any{
			{"role": "user", "content": parts},
		},
		"max_tokens":  params.MaxTokens,
		"temperature": params.Temperature,
		"stream":      false,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "... (truncated)"
}
