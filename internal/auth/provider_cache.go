package auth

import (
	"strings"
	"sync"
)

// ProviderCache はプロバイダー名からprovider_idへの対応を保持する。
// 読み取りが大半のため、sync.RWMutexで保護する。キーは大文字小文字を区別しない。
type ProviderCache struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewProviderCache はProviderCacheを生成する。
func NewProviderCache() *ProviderCache {
	return &ProviderCache{ids: make(map[string]string)}
}

// Get はキャッシュ済みのprovider_idを返す。
func (c *ProviderCache) Get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[cacheKey(name)]
	return id, ok
}

// Set はprovider_idを登録する。既に登録済みの場合は既存の値を維持し、それを返す。
func (c *ProviderCache) Set(name, id string) string {
	key := cacheKey(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.ids[key]; ok {
		return existing
	}
	c.ids[key] = id
	return id
}

func cacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
