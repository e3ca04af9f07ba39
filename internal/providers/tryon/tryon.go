// Package tryon adapts image synthesis backends to workflow.Synthesizer.
package tryon

import (
	"context"

	"github.com/google/uuid"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/providers/genai"
	"tryon/internal/workflow"
)

// Gemini composites the garment onto the person through the Gemini API.
type Gemini struct {
	client *genai.Client
}

func NewGemini(client *genai.Client) *Gemini {
	return &Gemini{client: client}
}

func (g *Gemini) Synthesize(ctx context.Context, person, clothing domain.Image) (domain.Image, error) {
	asset, err := g.client.TryOn(ctx, genai.TryOnRequest{
		Person:    genai.InputImage{MimeType: person.ContentType(), Data: person.Bytes()},
		Clothing:  genai.InputImage{MimeType: clothing.ContentType(), Data: clothing.Bytes()},
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return domain.Image{}, err
	}
	return domain.NewImage(asset.Data, asset.Format).WithDimensions(asset.Width, asset.Height), nil
}

// Passthrough returns the person photo unchanged. It stands in for a real
// provider when no API key is configured.
type Passthrough struct{}

func (Passthrough) Synthesize(ctx context.Context, person, _ domain.Image) (domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}
	return person, nil
}

// New picks Gemini when the client has an API key and Passthrough otherwise.
func New(client *genai.Client, logger *infra.Logger) workflow.Synthesizer {
	if client != nil && client.Configured() {
		logger.Info().Str("model", client.Model()).Msg("tryon: using gemini synthesizer")
		return NewGemini(client)
	}
	logger.Warn().Msg("tryon: GEMINI_API_KEY not set, results echo the person photo")
	return Passthrough{}
}
