package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"perfeval-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIAdapterInvoke(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(srv.URL, "sk-test", map[string]string{"qwen2-vl": "Qwen/Qwen2-VL-7B-Instruct"})

	payload, err := a.Invoke(context.Background(), "qwen2-vl", testContent(), shared.GenerationParams{MaxTokens: 128, Temperature: 0.3})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "ok")

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "Qwen/Qwen2-VL-7B-Instruct", gotBody["model"])
	assert.Equal(t, false, gotBody["stream"])

	parts := gotBody["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	first := parts[0].(map[string]any)
	assert.Equal(t, "image_url", first["type"])
	url := first["image_url"].(map[string]any)["url"].(string)
	assert.Contains(t, url, "data:image/jpeg;base64,")
	assert.Equal(t, "text", parts[2].(map[string]any)["type"])
}

func TestOpenAIAdapterNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(srv.URL, "", map[string]string{"m": "m"})

	_, err := a.Invoke(context.Background(), "m", testContent(), shared.GenerationParams{})
	var adapterErr *shared.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Contains(t, adapterErr.Error(), "503")
	assert.Contains(t, adapterErr.Error(), "model overloaded")
}

func TestOpenAIAdapterUnmappedKeyPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		assert.Equal(t, "raw-id", body["model"])
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(srv.URL, "", nil)
	_, err := a.Invoke(context.Background(), "raw-id", testContent(), shared.GenerationParams{})
	require.NoError(t, err)
}
