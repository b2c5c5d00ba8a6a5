package triage

import "context"

// Provider is the interface for any remote text-generation backend.
// Implementations apply their own transport timeout; callers may bound
// a call further through ctx.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

	// Model names the backing model, for telemetry.
	Model() string
}

// Expert-engine invocation parameters. Low temperature keeps the output
// focused for security analysis; the token cap bounds response size.
const (
	ResponseTokens    = 512
	ModelTemperature  = 0.3
	MaxPayloadChars   = 500
	RawPreviewChars   = 200
	PayloadLogPreview = 100
)
