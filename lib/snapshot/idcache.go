package snapshot

import (
	"encoding/json"
	"os"
	"sync"
)

// idCache assigns stable integer ids to the names stored in the lookup
// tables. It persists next to the store as json so that ids survive
// interrupted runs and stay identical across rebuilds over the same
// file.
type idCache struct {
	mu   sync.Mutex
	path string

	Users         map[string]int64 `json:"users"`
	Tags          map[string]int64 `json:"tags"`
	OverrideTypes map[string]int64 `json:"override_types"`
	ImageStatuses map[string]int64 `json:"image_statuses"`
}

func loadIDCache(path string) (*idCache, error) {
	cache := &idCache{
		path:          path,
		Users:         map[string]int64{},
		Tags:          map[string]int64{},
		OverrideTypes: map[string]int64{},
		ImageStatuses: map[string]int64{},
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *idCache) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// allocate hands out the next free id for a new name: one past the
// current maximum, so existing assignments never move.
func allocate(m map[string]int64, name string) int64 {
	if id, ok := m[name]; ok {
		return id
	}
	var max int64
	for _, id := range m {
		if id > max {
			max = id
		}
	}
	m[name] = max + 1
	return max + 1
}

func (c *idCache) User(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allocate(c.Users, name)
}

func (c *idCache) Tag(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allocate(c.Tags, name)
}

func (c *idCache) OverrideType(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allocate(c.OverrideTypes, name)
}

func (c *idCache) ImageStatus(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return allocate(c.ImageStatuses, name)
}
