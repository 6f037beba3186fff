package embedding

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 1024

// Cache keeps embeddings in a bounded LRU and, when dir is set, in one .bin
// file per text on disk.
type Cache struct {
	mem     *lru.Cache[string, []float32]
	dir     string
	modelID string
}

// NewCache creates the cache directory if needed. Keys are scoped by modelID
// so switching models never returns stale vectors.
func NewCache(modelID, dir string, size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	mem, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &Cache{mem: mem, dir: dir, modelID: modelID}, nil
}

func (c *Cache) key(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks in memory first, then on disk. Disk hits are promoted.
func (c *Cache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	key := c.key(text)
	if vec, ok := c.mem.Get(key); ok {
		return cloneVector(vec), true
	}
	vec, ok, err := c.load(key)
	if err != nil || !ok {
		return nil, false
	}
	c.mem.Add(key, vec)
	return cloneVector(vec), true
}

// Put stores vec in memory and on disk.
func (c *Cache) Put(text string, vec []float32) error {
	if c == nil || len(vec) == 0 {
		return nil
	}
	key := c.key(text)
	c.mem.Add(key, cloneVector(vec))
	return c.save(key, vec)
}

// Len reports the number of in-memory entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.mem.Len()
}

func (c *Cache) load(key string) ([]float32, bool, error) {
	if c.dir == "" {
		return nil, false, nil
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(data) < 4 {
		return nil, false, fmt.Errorf("cache file broken: %s", path)
	}
	length := binary.LittleEndian.Uint32(data[:4])
	need := int(length) * 4
	if len(data) != 4+need {
		return nil, false, fmt.Errorf("cache length mismatch: %s", path)
	}
	vec := make([]float32, int(length))
	if err := binary.Read(bytes.NewReader(data[4:]), binary.LittleEndian, vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *Cache) save(key string, v []float32) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	tmp := path + ".tmp"
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(v)))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
