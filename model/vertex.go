package model

import (
	"context"
	"errors"
	"os"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/vertex"
)

// defaultVertexRegion is where Google serves most Claude models.
const defaultVertexRegion = "us-east5"

// NewVertex builds a client for Anthropic models served through Google
// Vertex AI. Authentication uses Application Default Credentials (an
// explicit GOOGLE_APPLICATION_CREDENTIALS file or the gcloud login); the
// project falls back to GOOGLE_CLOUD_PROJECT and the region to
// CLOUD_ML_REGION. The wire protocol is the Anthropic Messages API, so the
// returned client shares the AnthropicClient adapter.
func NewVertex(ctx context.Context, region, project string) (*AnthropicClient, error) {
	if project == "" {
		project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if project == "" {
		return nil, errors.New("vertex requires a project id (set the provider's project or GOOGLE_CLOUD_PROJECT)")
	}
	if region == "" {
		region = os.Getenv("CLOUD_ML_REGION")
	}
	if region == "" {
		region = defaultVertexRegion
	}
	return &AnthropicClient{api: sdk.NewClient(vertex.WithGoogleAuth(ctx, region, project))}, nil
}
