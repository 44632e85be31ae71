package tvdb

import (
	"sync"
	"time"
)

// TokenCache はTVDBのBearerトークンと有効期限を保持する。
// 複数のリクエストから共有されるため排他制御を行う。
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache は空のTokenCacheを生成する。
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get は有効なトークンを返す。未取得または期限切れの場合はfalseを返す。
func (c *TokenCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set はトークンと有効期限を保存する。
func (c *TokenCache) Set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// Invalidate はトークンを破棄する。
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
