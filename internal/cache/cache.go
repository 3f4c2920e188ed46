// Package cache memoizes expensive pipeline stages on the local
// filesystem, keyed by a fingerprint of the stage inputs and
// parameters. Entries carry a checksum of their payload so corrupted
// files are detected, removed, and recomputed instead of poisoning a
// run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache is a content-addressed store of stage results under a root
// directory. A nil or disabled cache is safe to call and always
// misses.
type Cache struct {
	dir     string
	enabled bool
}

type envelope struct {
	Checksum string          `json:"sha256"`
	Payload  json.RawMessage `json:"payload"`
}

// New opens a cache rooted at dir, creating it if needed. When
// enabled is false the returned cache never stores or hits.
func New(dir string, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if dir == "" {
		return nil, eris.New("cache: directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "cache: create directory")
	}
	return &Cache{dir: dir, enabled: true}, nil
}

// Fingerprint derives a stable key from a stage name and its inputs
// and parameters. Both are JSON-encoded, so any change in data or
// configuration yields a different key.
func Fingerprint(stage string, inputs, params any) (string, error) {
	h := sha256.New()
	h.Write([]byte(stage))
	enc := json.NewEncoder(h)
	if err := enc.Encode(inputs); err != nil {
		return "", eris.Wrapf(err, "cache: encode inputs for stage %s", stage)
	}
	if err := enc.Encode(params); err != nil {
		return "", eris.Wrapf(err, "cache: encode params for stage %s", stage)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get loads the entry for key into out. It returns false on any miss:
// absent entry, unreadable file, or checksum mismatch. Damaged
// entries are deleted so the next Put can heal them.
func (c *Cache) Get(key string, out any) bool {
	if c == nil || !c.enabled {
		return false
	}
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.evict(key, path, "undecodable entry")
		return false
	}
	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		c.evict(key, path, "checksum mismatch")
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.evict(key, path, "payload does not decode")
		return false
	}
	zap.L().Debug("cache hit", zap.String("key", short(key)))
	return true
}

// Put stores value under key. The entry is written to a temp file and
// renamed into place so readers never observe a partial write.
func (c *Cache) Put(key string, value any) error {
	if c == nil || !c.enabled {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "cache: encode payload")
	}
	sum := sha256.Sum256(payload)
	raw, err := json.Marshal(envelope{
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  payload,
	})
	if err != nil {
		return eris.Wrap(err, "cache: encode entry")
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "cache: create shard directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "entry-*.tmp")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: write entry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: close entry")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: publish entry")
	}
	zap.L().Debug("cache store", zap.String("key", short(key)))
	return nil
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	if c == nil || !c.enabled {
		return nil
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return eris.Wrap(err, "cache: clear")
	}
	return os.MkdirAll(c.dir, 0o755)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key[:2], key+".json")
}

func (c *Cache) evict(key, path, reason string) {
	zap.L().Warn("removing damaged cache entry",
		zap.String("key", short(key)),
		zap.String("reason", reason),
	)
	os.Remove(path)
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
