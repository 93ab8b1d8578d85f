package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

// Cache memoizes run results by batch fingerprint. A miss returns nil, false.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, res *Result) error
}

// Fingerprint returns the SHA-256 content hash identifying a batch: policy,
// group key, then every record in input order with cells in sorted column
// order, then the optional records.
func Fingerprint(b Batch) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))    //nolint:errcheck
			h.Write([]byte{0x1f}) //nolint:errcheck
		}
		h.Write([]byte{0x1e}) //nolint:errcheck
	}

	policy := b.Policy
	if policy == "" {
		policy = DefaultPolicy
	}
	write("policy", policy)
	write("group_by", strings.Join(b.GroupBy, ","))
	writeRecords := func(label string, recs []model.ActivityRecord) {
		write(label)
		for _, r := range recs {
			cols := r.Columns()
			parts := make([]string, 0, 2*len(cols))
			for _, c := range cols {
				parts = append(parts, c, r[c])
			}
			write(parts...)
		}
	}
	writeRecords("records", b.Records)
	writeRecords("optional", b.Optional)

	return hex.EncodeToString(h.Sum(nil))
}

// keyer is implemented by scorers whose results depend on more than the
// batch content.
type keyer interface {
	CacheKey(b Batch) string
}

// Cached decorates a Scorer with a result cache. Cache failures are logged
// and never fail the run.
type Cached struct {
	next  Scorer
	cache Cache
}

// NewCached wraps next with cache.
func NewCached(next Scorer, cache Cache) *Cached {
	return &Cached{next: next, cache: cache}
}

// Run returns a cached result for an identical batch or runs and stores it.
func (c *Cached) Run(ctx context.Context, b Batch) (*Result, error) {
	key := c.key(b)
	log := zap.L().With(zap.String("source", b.Source), zap.String("key", key[:16]))

	res, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn("pipeline: cache get failed", zap.Error(err))
	case ok:
		log.Debug("pipeline: cache hit")
		res.CacheHit = true
		res.Source = b.Source
		return res, nil
	}

	res, err = c.next.Run(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, res); err != nil {
		log.Warn("pipeline: cache set failed", zap.Error(err))
	}
	return res, nil
}

func (c *Cached) key(b Batch) string {
	if k, ok := c.next.(keyer); ok {
		return k.CacheKey(b)
	}
	return Fingerprint(b)
}

// MemoryCache is an in-process TTL cache. When full, the entry closest to
// expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
	now        func() time.Time
}

type memoryEntry struct {
	res       Result
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache. maxEntries <= 0 means unbounded.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.After(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	res := e.res
	return &res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *Result) error {
	if res == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = memoryEntry{res: *res, expiresAt: now.Add(c.ttl)}
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evict drops expired entries, then the oldest remaining one if still full.
func (c *MemoryCache) evict(now time.Time) {
	for k, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := c.entries[keys[i]], c.entries[keys[j]]
		if ei.expiresAt.Equal(ej.expiresAt) {
			return keys[i] < keys[j]
		}
		return ei.expiresAt.Before(ej.expiresAt)
	})
	delete(c.entries, keys[0])
}

// ResultStore is the persistence the store-backed cache needs.
type ResultStore interface {
	GetCachedResult(ctx context.Context, key string) ([]byte, error)
	SetCachedResult(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// StoreCache keeps JSON-encoded results in a ResultStore.
type StoreCache struct {
	store ResultStore
	ttl   time.Duration
}

// NewStoreCache creates a StoreCache.
func NewStoreCache(st ResultStore, ttl time.Duration) *StoreCache {
	return &StoreCache{store: st, ttl: ttl}
}

func (c *StoreCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	data, err := c.store.GetCachedResult(ctx, key)
	if err != nil {
		return nil, false, eris.Wrap(err, "pipeline: store cache get")
	}
	if data == nil {
		return nil, false, nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, eris.Wrap(err, "pipeline: decode cached result")
	}
	return &res, true, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "pipeline: encode result")
	}
	return eris.Wrap(c.store.SetCachedResult(ctx, key, data, c.ttl), "pipeline: store cache set")
}
