package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"perfeval-api/internal/shared"

	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSageMaker struct {
	lastInput *sagemakerruntime.InvokeEndpointInput
	response  []byte
	err       error
	calls     atomic.Int64
}

func (f *fakeSageMaker) InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error) {
	f.calls.Add(1)
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &sagemakerruntime.InvokeEndpointOutput{Body: f.response}, nil
}

func emdTestModels() map[string]EMDModel {
	return map[string]EMDModel{
		"qwen2-vl": {WireID: "Qwen/Qwen2-VL-7B-Instruct", Endpoint: "emd-qwen2-vl"},
	}
}

func TestEMDPrefersHTTPTransport(t *testing.T) {
	sm := &fakeSageMaker{response: []byte(`{}`)}
	var invoked atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[]}`))
		case "/v1/chat/completions":
			invoked.Add(1)
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewEMDAdapter(zaptest.NewLogger(t).Sugar(), srv.URL, sm, nil, emdTestModels())

	_, err := a.Invoke(context.Background(), "qwen2-vl", testContent(), shared.GenerationParams{MaxTokens: 64})
	require.NoError(t, err)
	assert.EqualValues(t, 1, invoked.Load())
	assert.EqualValues(t, 0, sm.calls.Load(), "sagemaker transport must not be touched while http is up")
}

func TestEMDFallsBackToSageMakerWhenHTTPDown(t *testing.T) {
	sm := &fakeSageMaker{response: []byte(`{"choices":[{"message":{"content":"via sagemaker"}}]}`)}
	// Closed server: probe fails, transport marked unavailable.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := NewEMDAdapter(zaptest.NewLogger(t).Sugar(), srv.URL, sm, nil, emdTestModels())

	payload, err := a.Invoke(context.Background(), "qwen2-vl", testContent(), shared.GenerationParams{})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "via sagemaker")
	assert.Equal(t, "emd-qwen2-vl", *sm.lastInput.EndpointName)
}

func TestEMDNeitherTransportNamesRemediation(t *testing.T) {
	sm := &fakeSageMaker{err: errors.New("ValidationException: endpoint emd-qwen2-vl not found")}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := NewEMDAdapter(zaptest.NewLogger(t).Sugar(), srv.URL, sm, nil, emdTestModels())

	_, err := a.Invoke(context.Background(), "qwen2-vl", testContent(), shared.GenerationParams{})
	var adapterErr *shared.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Contains(t, adapterErr.Error(), "emd deploy --model-id Qwen/Qwen2-VL-7B-Instruct")
}

func TestEMDProbeResultIsCached(t *testing.T) {
	var probes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			probes.Add(1)
			_, _ = w.Write([]byte(`{}`))
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	a := NewEMDAdapter(zaptest.NewLogger(t).Sugar(), srv.URL, &fakeSageMaker{}, nil, emdTestModels())

	for i := 0; i < 5; i++ {
		_, err := a.Invoke(context.Background(), "qwen2-vl", testContent(), shared.GenerationParams{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, probes.Load())
}
