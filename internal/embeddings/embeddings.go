// Package embeddings defines the embedding provider contract and a caching
// wrapper shared by benchmark workers.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/ragbench/internal/cache"
)

// Provider generates query embeddings.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider and model, and namespaces cache keys.
	Name() string
}

// CachedProvider serves embeddings from an EmbeddingCache, calling the
// underlying provider only on a miss.
type CachedProvider struct {
	provider Provider
	cache    *cache.EmbeddingCache
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps provider with c. A nil cache disables caching.
func NewCachedProvider(provider Provider, c *cache.EmbeddingCache) *CachedProvider {
	return &CachedProvider{provider: provider, cache: c}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string {
	return p.provider.Name()
}

// Embed returns the cached embedding for text, computing and storing it on
// a miss. Two workers missing the same key concurrently both embed; the
// later Set overwrites in place.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.cache == nil {
		return p.provider.Embed(ctx, text)
	}
	key := CacheKey(p.provider.Name(), text)
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec)
	return vec, nil
}

// CacheKey builds the cache key for text embedded by the named provider.
func CacheKey(provider, text string) string {
	return fmt.Sprintf("%s:%s", provider, strings.ToLower(strings.TrimSpace(text)))
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider string `yaml:"provider"` // openai, ollama, or empty to disable
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}
