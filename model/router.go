package model

import (
	"context"
	"fmt"
	"time"
)

// ClientOptions carries the per-provider settings a client may need. Unused
// fields are ignored by providers that do not need them.
type ClientOptions struct {
	// APIKey is the resolved credential. Empty for bedrock, which uses the
	// AWS default chain.
	APIKey string
	// BaseURL overrides the provider endpoint (OpenAI-compatible servers,
	// Anthropic proxies, the Azure resource endpoint).
	BaseURL string
	// Region selects the AWS region for bedrock and the Google Cloud
	// region for vertex.
	Region string
	// Deployment is the Azure deployment name.
	Deployment string
	// Project is the Google Cloud project for vertex.
	Project string
}

// NewClient builds the Client for a provider key. This is the single place
// where provider routing decisions live.
func NewClient(ctx context.Context, provider string, opts ClientOptions) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(opts.APIKey, opts.BaseURL), nil
	case ProviderOpenRouter:
		return NewOpenRouter(opts.APIKey), nil
	case ProviderAzure:
		return NewAzure(opts.APIKey, opts.BaseURL, opts.Deployment)
	case ProviderAnthropic:
		return NewAnthropic(opts.APIKey, opts.BaseURL), nil
	case ProviderAnthropicOAuth:
		return NewAnthropicOAuth(opts.APIKey, opts.BaseURL), nil
	case ProviderBedrock:
		return NewBedrock(ctx, opts.Region)
	case ProviderVertex:
		return NewVertex(ctx, opts.Region, opts.Project)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// WithTimeout bounds every call made through the client. Streams inherit the
// deadline; a stream still open when it expires returns the context error
// from Recv.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{inner: c, timeout: d}
}

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, req)
}

func (c *timeoutClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	s, err := c.inner.Stream(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &timeoutStreamer{Streamer: s, cancel: cancel}, nil
}

type timeoutStreamer struct {
	Streamer
	cancel context.CancelFunc
}

func (s *timeoutStreamer) Close() error {
	defer s.cancel()
	return s.Streamer.Close()
}
