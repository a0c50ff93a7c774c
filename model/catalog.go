package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const catalogTTL = 10 * time.Minute

type (
	// ModelInfo is one catalogue entry.
	ModelInfo struct {
		ID            string  `json:"id"`
		DisplayName   string  `json:"display_name"`
		ContextLength int     `json:"context_length"`
		InputPrice    float64 `json:"input_price"`
		OutputPrice   float64 `json:"output_price"`
		SupportsTools bool    `json:"supports_tools"`
	}

	// Catalog enumerates the models each provider offers. Live listings are
	// cached for ten minutes; when a fetch fails or no key is configured the
	// hardcoded fallback list applies.
	Catalog struct {
		httpClient *http.Client

		// Listing endpoints, overridable in tests.
		openaiBase     string
		anthropicBase  string
		openrouterBase string

		mu    sync.Mutex
		cache map[string]catalogEntry
	}

	catalogEntry struct {
		models  []ModelInfo
		fetched time.Time
	}
)

// NewCatalog builds a catalogue with its own HTTP client.
func NewCatalog() *Catalog {
	return &Catalog{
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		openaiBase:     "https://api.openai.com",
		anthropicBase:  "https://api.anthropic.com",
		openrouterBase: "https://openrouter.ai",
		cache:          make(map[string]catalogEntry),
	}
}

// Models lists the models for a provider. toolsOnly filters to entries that
// support tool calling.
func (c *Catalog) Models(ctx context.Context, provider, apiKey string, toolsOnly bool) []ModelInfo {
	c.mu.Lock()
	entry, ok := c.cache[provider]
	c.mu.Unlock()
	if !ok || time.Since(entry.fetched) > catalogTTL {
		models, err := c.fetch(ctx, provider, apiKey)
		if err != nil || len(models) == 0 {
			models = fallbackModels[provider]
		}
		entry = catalogEntry{models: models, fetched: time.Now()}
		c.mu.Lock()
		c.cache[provider] = entry
		c.mu.Unlock()
	}
	if !toolsOnly {
		return entry.models
	}
	var out []ModelInfo
	for _, m := range entry.models {
		if m.SupportsTools {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) fetch(ctx context.Context, provider, apiKey string) ([]ModelInfo, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("no api key")
		}
		return c.fetchOpenAI(ctx, apiKey)
	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("no api key")
		}
		return c.fetchAnthropic(ctx, apiKey)
	case ProviderOpenRouter:
		return c.fetchOpenRouter(ctx)
	default:
		// Azure deployments, Bedrock entitlements and Vertex publisher
		// models have no simple public listing; the fallback tables serve
		// them.
		return nil, fmt.Errorf("no live listing for %s", provider)
	}
}

func (c *Catalog) fetchOpenAI(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := c.getJSON(ctx, c.openaiBase+"/v1/models", headers, &payload); err != nil {
		return nil, err
	}
	var out []ModelInfo
	for _, m := range payload.Data {
		if !isChatModel(m.ID) {
			continue
		}
		out = append(out, ModelInfo{
			ID:            m.ID,
			DisplayName:   m.ID,
			ContextLength: ContextLimit(m.ID),
			SupportsTools: true,
		})
	}
	return out, nil
}

func (c *Catalog) fetchAnthropic(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	var payload struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := c.getJSON(ctx, c.anthropicBase+"/v1/models", headers, &payload); err != nil {
		return nil, err
	}
	var out []ModelInfo
	for _, m := range payload.Data {
		out = append(out, ModelInfo{
			ID:            m.ID,
			DisplayName:   m.DisplayName,
			ContextLength: 200000,
			SupportsTools: true,
		})
	}
	return out, nil
}

func (c *Catalog) fetchOpenRouter(ctx context.Context) ([]ModelInfo, error) {
	var payload struct {
		Data []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			ContextLength int    `json:"context_length"`
			Pricing       struct {
				Prompt     string `json:"prompt"`
				Completion string `json:"completion"`
			} `json:"pricing"`
			SupportedParameters []string `json:"supported_parameters"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.openrouterBase+"/api/v1/models", nil, &payload); err != nil {
		return nil, err
	}
	var out []ModelInfo
	for _, m := range payload.Data {
		supportsTools := m.ID == "openrouter/auto" // meta-router dispatches to capable models
		for _, p := range m.SupportedParameters {
			if p == "tools" {
				supportsTools = true
				break
			}
		}
		in, _ := strconv.ParseFloat(m.Pricing.Prompt, 64)
		outPrice, _ := strconv.ParseFloat(m.Pricing.Completion, 64)
		out = append(out, ModelInfo{
			ID:            m.ID,
			DisplayName:   m.Name,
			ContextLength: m.ContextLength,
			InputPrice:    in,
			OutputPrice:   outPrice,
			SupportsTools: supportsTools,
		})
	}
	return out, nil
}

func (c *Catalog) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// isChatModel filters the OpenAI listing down to chat-capable entries.
func isChatModel(id string) bool {
	for _, skip := range []string{"embedding", "whisper", "tts", "dall-e", "moderation", "audio", "realtime", "transcribe", "image"} {
		if strings.Contains(id, skip) {
			return false
		}
	}
	return strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "o1") ||
		strings.HasPrefix(id, "o3") || strings.HasPrefix(id, "o4")
}

// DefaultContextLimit is the conservative window assumed for unknown model
// families.
const DefaultContextLimit = 128000

// ContextLimit maps a model id to its context window size by family prefix.
// Bedrock namespace prefixes are stripped before matching.
func ContextLimit(id string) int {
	id = strings.TrimPrefix(id, "anthropic.")
	id = strings.TrimPrefix(id, "us.anthropic.")
	switch {
	case strings.HasPrefix(id, "gpt-4.1"):
		return 1047576
	case strings.HasPrefix(id, "gpt-4o"), strings.HasPrefix(id, "gpt-4-turbo"):
		return 128000
	case strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return 200000
	case strings.HasPrefix(id, "claude"):
		return 200000
	case strings.Contains(id, "gemini"):
		return 1048576
	case strings.Contains(id, "llama-3") || strings.Contains(id, "llama3"):
		return 131072
	default:
		return DefaultContextLimit
	}
}

// fallbackModels applies when a live listing fails or is unavailable.
var fallbackModels = map[string][]ModelInfo{
	ProviderOpenAI: {
		{ID: "gpt-4o", DisplayName: "GPT-4o", ContextLength: 128000, SupportsTools: true},
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextLength: 128000, SupportsTools: true},
		{ID: "gpt-4.1", DisplayName: "GPT-4.1", ContextLength: 1047576, SupportsTools: true},
		{ID: "o3-mini", DisplayName: "o3-mini", ContextLength: 200000, SupportsTools: true},
	},
	ProviderAnthropic: {
		{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", ContextLength: 200000, SupportsTools: true},
		{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude Haiku 3.5", ContextLength: 200000, SupportsTools: true},
		{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4", ContextLength: 200000, SupportsTools: true},
	},
	ProviderOpenRouter: {
		{ID: "openrouter/auto", DisplayName: "Auto Router", ContextLength: 128000, SupportsTools: true},
		{ID: "meta-llama/llama-3.1-70b-instruct", DisplayName: "Llama 3.1 70B", ContextLength: 131072, SupportsTools: true},
	},
	ProviderAzure: {
		{ID: "gpt-4o", DisplayName: "GPT-4o (deployment)", ContextLength: 128000, SupportsTools: true},
	},
	ProviderBedrock: {
		{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", DisplayName: "Claude 3.5 Sonnet v2", ContextLength: 200000, SupportsTools: true},
		{ID: "anthropic.claude-3-5-haiku-20241022-v1:0", DisplayName: "Claude 3.5 Haiku", ContextLength: 200000, SupportsTools: true},
	},
	ProviderVertex: {
		{ID: "claude-sonnet-4@20250514", DisplayName: "Claude Sonnet 4 (Vertex)", ContextLength: 200000, SupportsTools: true},
		{ID: "claude-3-5-haiku@20241022", DisplayName: "Claude Haiku 3.5 (Vertex)", ContextLength: 200000, SupportsTools: true},
	},
}

func init() {
	// The OAuth variant talks to the same API as anthropic and offers the
	// same models.
	fallbackModels[ProviderAnthropicOAuth] = fallbackModels[ProviderAnthropic]
}
