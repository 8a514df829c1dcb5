package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// cacheEntry is one cached keyword vector. Keyword text is immutable
// once declared, so entries never expire; they are only invalidated by
// a model change (the model name is part of the key).
type cacheEntry struct {
	Keyword string    `json:"keyword"`
	Model   string    `json:"model"`
	Vector  []float32 `json:"vector"`
}

// VectorCache persists keyword vectors in a JSON file so repeated runs
// do not re-embed an unchanged keyword set.
type VectorCache struct {
	filePath string
	entries  map[string]cacheEntry
	mu       sync.RWMutex
}

// NewVectorCache creates a cache stored under dir.
func NewVectorCache(dir string) *VectorCache {
	return &VectorCache{
		filePath: filepath.Join(dir, "keyword_vectors.json"),
		entries:  make(map[string]cacheEntry),
	}
}

// Load reads the cache file. A missing file is an empty cache.
func (vc *VectorCache) Load() error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	data, err := os.ReadFile(vc.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read vector cache: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("unmarshal vector cache: %w", err)
	}
	for _, e := range entries {
		vc.entries[cacheKey(e.Keyword, e.Model)] = e
	}
	return nil
}

// Save writes the cache back to disk.
func (vc *VectorCache) Save() error {
	vc.mu.RLock()
	entries := make([]cacheEntry, 0, len(vc.entries))
	for _, e := range vc.entries {
		entries = append(entries, e)
	}
	vc.mu.RUnlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vector cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(vc.filePath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(vc.filePath, data, 0o644); err != nil {
		return fmt.Errorf("write vector cache: %w", err)
	}
	return nil
}

// Get returns the cached vector for a keyword under the given model.
func (vc *VectorCache) Get(keyword, model string) ([]float32, bool) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	e, ok := vc.entries[cacheKey(keyword, model)]
	if !ok {
		return nil, false
	}
	return e.Vector, true
}

// Put stores a keyword vector.
func (vc *VectorCache) Put(keyword, model string, vector []float32) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.entries[cacheKey(keyword, model)] = cacheEntry{
		Keyword: keyword,
		Model:   model,
		Vector:  vector,
	}
}

// Len reports the number of cached vectors.
func (vc *VectorCache) Len() int {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return len(vc.entries)
}

func cacheKey(keyword, model string) string {
	h := sha256.Sum256([]byte(model + "|" + keyword))
	return hex.EncodeToString(h[:])[:16]
}
