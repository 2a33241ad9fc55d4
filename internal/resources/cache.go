package resources

import (
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Handle refers to a loaded resource by the path it came from.
type Handle[T any] struct {
	Path  string
	Value *T
}

func (h Handle[T]) Valid() bool { return h.Value != nil }

// Cache loads each path once. Concurrent requests for the same path share
// one load; failures are not remembered.
type Cache[T any] struct {
	load  func(path string) (*T, error)
	group singleflight.Group

	mu    sync.RWMutex
	items map[string]*T
}

func NewCache[T any](load func(path string) (*T, error)) *Cache[T] {
	return &Cache[T]{load: load, items: map[string]*T{}}
}

func (c *Cache[T]) Get(path string) (Handle[T], error) {
	key := filepath.Clean(path)
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return Handle[T]{Path: key, Value: v}, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		v, ok := c.items[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := c.load(key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return Handle[T]{Path: key}, err
	}
	return Handle[T]{Path: key, Value: res.(*T)}, nil
}

func (c *Cache[T]) Evict(path string) {
	c.mu.Lock()
	delete(c.items, filepath.Clean(path))
	c.mu.Unlock()
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// NewMeshCache and NewTextureCache back the renderer's asset loading.
func NewMeshCache() *Cache[Mesh] { return NewCache(LoadMesh) }

func NewTextureCache() *Cache[Texture] { return NewCache(LoadTexture) }
