package model

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogFallbackWhenNoKey(t *testing.T) {
	c := NewCatalog()
	models := c.Models(t.Context(), ProviderOpenAI, "", false)
	require.Equal(t, fallbackModels[ProviderOpenAI], models)
}

func TestCatalogFallbackForBedrock(t *testing.T) {
	c := NewCatalog()
	models := c.Models(t.Context(), ProviderBedrock, "", false)
	require.NotEmpty(t, models)
	require.Contains(t, models[0].ID, "anthropic.")
}

func TestCatalogLiveAnthropicListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		require.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		fmt.Fprint(w, `{"data":[{"id":"claude-sonnet-4-20250514","display_name":"Claude Sonnet 4"}]}`)
	}))
	defer srv.Close()

	c := NewCatalog()
	c.anthropicBase = srv.URL
	models := c.Models(t.Context(), ProviderAnthropic, "sk-test", false)
	require.Len(t, models, 1)
	require.Equal(t, "Claude Sonnet 4", models[0].DisplayName)
	require.Equal(t, 200000, models[0].ContextLength)
	require.True(t, models[0].SupportsTools)
}

func TestCatalogCachesListing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"data":[{"id":"claude-3-5-haiku-20241022","display_name":"Haiku"}]}`)
	}))
	defer srv.Close()

	c := NewCatalog()
	c.anthropicBase = srv.URL
	c.Models(t.Context(), ProviderAnthropic, "sk-test", false)
	c.Models(t.Context(), ProviderAnthropic, "sk-test", false)
	require.EqualValues(t, 1, hits.Load())
}

func TestCatalogToolsOnlyFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"meta-llama/llama-3.1-70b-instruct","name":"Llama","context_length":131072,
			 "pricing":{"prompt":"0.0000004","completion":"0.0000004"},
			 "supported_parameters":["tools","temperature"]},
			{"id":"some/text-only","name":"TextOnly","context_length":8192,
			 "pricing":{"prompt":"0","completion":"0"},
			 "supported_parameters":["temperature"]}
		]}`)
	}))
	defer srv.Close()

	c := NewCatalog()
	c.openrouterBase = srv.URL
	all := c.Models(t.Context(), ProviderOpenRouter, "", false)
	require.Len(t, all, 2)
	toolCapable := c.Models(t.Context(), ProviderOpenRouter, "", true)
	require.Len(t, toolCapable, 1)
	require.Equal(t, "meta-llama/llama-3.1-70b-instruct", toolCapable[0].ID)
	require.InDelta(t, 0.0000004, toolCapable[0].InputPrice, 1e-12)
}

func TestIsChatModel(t *testing.T) {
	require.True(t, isChatModel("gpt-4o"))
	require.True(t, isChatModel("o3-mini"))
	require.False(t, isChatModel("text-embedding-3-small"))
	require.False(t, isChatModel("whisper-1"))
	require.False(t, isChatModel("gpt-4o-realtime-preview"))
}

func TestContextLengthDefault(t *testing.T) {
	require.Equal(t, DefaultContextLimit, ContextLimit("some-unknown-model"))
	require.Equal(t, 200000, ContextLimit("o3-mini"))
	require.Equal(t, 200000, ContextLimit("anthropic.claude-3-5-sonnet-20241022-v2:0"))
}
