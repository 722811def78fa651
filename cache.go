package junksite

import (
	"context"
	"strings"
	"sync"
	"time"
)

// PostFilter narrows a post listing. Empty fields match everything.
type PostFilter struct {
	Category string
	Tag      string
}

// PostCache is an in-memory cache of post listings (without image bytes)
// with a TTL. Writers call Invalidate after every change.
type PostCache struct {
	mu      sync.RWMutex
	posts   []Post
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

// ensureLoaded returns cached posts after ensuring the cache is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]Post, error) {
	c.mu.RLock()
	if c.valid() {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, nil
	}
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	c.posts = posts
	c.fetched = time.Now()
	return c.posts, nil
}

// ListPosts returns posts matching f, newest first.
func (c *PostCache) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	posts, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if f.Category == "" && f.Tag == "" {
		return posts, nil
	}
	tag := normalizeTag(f.Tag)
	filtered := []Post{}
	for _, p := range posts {
		if f.Category != "" && !strings.EqualFold(strings.TrimSpace(p.Category), strings.TrimSpace(f.Category)) {
			continue
		}
		if tag != "" && !hasTag(p, tag) {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

// GetPost returns a single post from the cache. Image bytes are not loaded.
func (c *PostCache) GetPost(ctx context.Context, id int64) (Post, error) {
	posts, err := c.ensureLoaded(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

// Categories returns the distinct non-empty categories in use.
func (c *PostCache) Categories(ctx context.Context) ([]string, error) {
	posts, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range posts {
		cat := strings.TrimSpace(p.Category)
		key := strings.ToLower(cat)
		if cat == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		categories = append(categories, cat)
	}
	return categories, nil
}

func hasTag(p Post, normalized string) bool {
	for _, t := range p.Tags {
		if normalizeTag(t) == normalized {
			return true
		}
	}
	return false
}
