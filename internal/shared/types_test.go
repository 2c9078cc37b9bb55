package shared

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	r := InferenceRequest{Text: "hi", Models: []string{"m"}}
	r.ApplyDefaults()
	assert.Equal(t, DefaultMaxTokens, r.MaxTokens)
	require.NotNil(t, r.Temperature)
	assert.Equal(t, float64(DefaultTemperature), *r.Temperature)
	assert.Equal(t, MediaTypeImage, r.MediaType)

	temp := 0.7
	r = InferenceRequest{MaxTokens: 256, Temperature: &temp, MediaType: MediaTypeVideo}
	r.ApplyDefaults()
	assert.Equal(t, 256, r.MaxTokens)
	assert.Equal(t, 0.7, *r.Temperature)
	assert.Equal(t, MediaTypeVideo, r.MediaType)
}

func TestApplyDefaultsKeepsExplicitZeroTemperature(t *testing.T) {
	var r InferenceRequest
	require.NoError(t, json.Unmarshal([]byte(`{"text":"hi","models":["m"],"temperature":0}`), &r))
	r.ApplyDefaults()
	require.NotNil(t, r.Temperature)
	assert.Equal(t, 0.0, *r.Temperature)

	r = InferenceRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"text":"hi","models":["m"]}`), &r))
	r.ApplyDefaults()
	require.NotNil(t, r.Temperature)
	assert.Equal(t, float64(DefaultTemperature), *r.Temperature)
}

func TestMediaBlobsPrefersMediaKey(t *testing.T) {
	r := InferenceRequest{Frames: []string{"old"}, Media: []string{"new"}}
	assert.Equal(t, []string{"new"}, r.MediaBlobs())

	r = InferenceRequest{Frames: []string{"old"}}
	assert.Equal(t, []string{"old"}, r.MediaBlobs())

	assert.Empty(t, (&InferenceRequest{}).MediaBlobs())
}

func TestRequestErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &RequestError{StatusCode: 400, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestMediaErrorMessages(t *testing.T) {
	assert.Equal(t, "media error (no_media)", (&MediaError{Kind: NoMedia}).Error())

	wrapped := &MediaError{Kind: ExtractionFailed, Cause: errors.New("ffmpeg exited 1")}
	assert.Contains(t, wrapped.Error(), "extraction_failed")
	assert.Contains(t, wrapped.Error(), "ffmpeg exited 1")
}

func TestAdapterErrorNamesBackendAndModel(t *testing.T) {
	err := &AdapterError{Backend: "bedrock", Model: "nova-pro", Cause: errors.New("throttled")}
	assert.Equal(t, "bedrock (nova-pro): throttled", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "throttled")
}
