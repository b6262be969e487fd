package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"fathom/internal/asm"
	"fathom/internal/diag"
)

// cacheSchemaVersion invalidates every stored artifact when the payload
// format changes.
const cacheSchemaVersion uint16 = 1

// Digest identifies a unit's content.
type Digest [32]byte

// HashBytes digests raw content.
func HashBytes(parts ...[]byte) Digest {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ArtifactCache stores finalized program text keyed by content digest.
// Only clean compilations are cached; units with diagnostics always
// recompile. Safe for concurrent use.
type ArtifactCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenArtifactCache initializes a cache under the user cache directory.
func OpenArtifactCache(app string) (*ArtifactCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app, "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ArtifactCache{dir: dir}, nil
}

type cachePayload struct {
	Schema uint16
	Kind   uint8
	Text   string
}

func (c *ArtifactCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, hex.EncodeToString(key[:])+".mp")
}

// Get loads a cached artifact. Missing, corrupt or stale-schema entries
// are treated as misses.
func (c *ArtifactCache) Get(key Digest) (*Artifact, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	var p cachePayload
	if err := msgpack.Unmarshal(raw, &p); err != nil || p.Schema != cacheSchemaVersion {
		return nil, false
	}
	return &Artifact{
		Kind:   asm.ProgramKind(p.Kind),
		Text:   p.Text,
		Bag:    diag.NewBag(1),
		Cached: true,
	}, true
}

// DecodeArtifactFile reads one cache entry from an explicit path, for
// inspection tooling.
func DecodeArtifactFile(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p cachePayload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("driver: corrupt artifact %s: %w", path, err)
	}
	if p.Schema != cacheSchemaVersion {
		return nil, fmt.Errorf("driver: artifact %s has schema %d, want %d", path, p.Schema, cacheSchemaVersion)
	}
	return &Artifact{Kind: asm.ProgramKind(p.Kind), Text: p.Text, Cached: true}, nil
}

// Put stores an artifact. Units that raised diagnostics are skipped so a
// later compile re-reports them.
func (c *ArtifactCache) Put(key Digest, art *Artifact) error {
	if c == nil || art == nil {
		return nil
	}
	if art.Bag != nil && art.Bag.Len() > 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := msgpack.Marshal(cachePayload{
		Schema: cacheSchemaVersion,
		Kind:   uint8(art.Kind),
		Text:   art.Text,
	})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, c.pathFor(key))
}
