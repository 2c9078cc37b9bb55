package shared

// MediaType discriminates how the request's media blobs are interpreted.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// InferenceRequest is the decoded inbound body for /api/invoke. Older UI
// builds send media under "frames", newer ones under "media"; both are
// accepted. The struct is never mutated after decoding - dispatcher
// workers share it read-only.
type InferenceRequest struct {
	Text      string    `json:"text"`
	Frames    []string  `json:"frames"`
	Media     []string  `json:"media"`
	MediaType MediaType `json:"mediaType"`
	Models    []string  `json:"models"`
	MaxTokens int       `json:"max_tokens"`

	// Pointer so an explicit 0 (deterministic sampling) survives
	// defaulting; only an omitted key takes DefaultTemperature.
	Temperature *float64 `json:"temperature"`
}

// MediaBlobs returns whichever of the two media keys the client used.
func (r *InferenceRequest) MediaBlobs() []string {
	if len(r.Media) > 0 {
		return r.Media
	}
	return r.Frames
}

// ApplyDefaults fills unset generation parameters.
func (r *InferenceRequest) ApplyDefaults() {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature == nil {
		t := float64(DefaultTemperature)
		r.Temperature = &t
	}
	if r.MediaType == "" {
		r.MediaType = MediaTypeImage
	}
}

// GenerationParams are the per-request knobs forwarded to every adapter.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
}
