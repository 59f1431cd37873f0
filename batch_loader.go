package mongopager

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// BatchConfig holds batch loading tuning knobs.
type BatchConfig struct {
	// BatchSize is the maximum number of keys per "$in" query.
	BatchSize int
	// MaxConcurrency caps the number of simultaneous batch queries
	// regardless of total key count.
	MaxConcurrency int
	// CacheResults enables the per-key cache in front of the store.
	CacheResults bool
	// CacheTTL bounds staleness of cached records. There is no invalidation,
	// only expiry and overwrite.
	CacheTTL time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:      100,
		MaxConcurrency: 5,
		CacheResults:   false,
		CacheTTL:       5 * time.Minute,
	}
}

func (c BatchConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidParams)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max concurrency must be positive", ErrInvalidParams)
	}

	return nil
}

// BatchLoader collapses repeated per-key lookups into grouped "$in" queries,
// the dataloader pattern. Keys are deduplicated, split into chunks of
// BatchSize and executed in concurrency windows of MaxConcurrency: windows
// run sequentially, chunks within a window concurrently.
//
// A failed chunk query fails the whole call - callers needing partial
// tolerance must catch at the Preloader level.
type BatchLoader[T any] struct {
	cfg       BatchConfig
	cache     Cache
	namespace string
	keyOf     func(T) any
	log       zerolog.Logger
}

func NewBatchLoader[T any](cfg BatchConfig) *BatchLoader[T] {
	return &BatchLoader[T]{
		cfg: cfg,
		log: zerolog.Nop(),
	}
}

// WithCache attaches a cache for per-key lookups and write-back. Without a
// cache, CacheResults has no effect.
func (l *BatchLoader[T]) WithCache(cache Cache) *BatchLoader[T] {
	if l == nil {
		l = NewBatchLoader[T](DefaultBatchConfig())
	}

	l.cache = cache

	return l
}

// WithCacheNamespace overrides the cache key namespace. Empty means the
// collection name.
func (l *BatchLoader[T]) WithCacheNamespace(namespace string) *BatchLoader[T] {
	if l == nil {
		l = NewBatchLoader[T](DefaultBatchConfig())
	}

	l.namespace = namespace

	return l
}

// WithKeyFunc sets the extractor of a record's own key-field value, used for
// per-key cache write-back. bson.M records need no key func, the key field is
// read directly.
func (l *BatchLoader[T]) WithKeyFunc(keyOf func(T) any) *BatchLoader[T] {
	if l == nil {
		l = NewBatchLoader[T](DefaultBatchConfig())
	}

	l.keyOf = keyOf

	return l
}

// WithLogger sets the logger.
func (l *BatchLoader[T]) WithLogger(log zerolog.Logger) *BatchLoader[T] {
	if l == nil {
		l = NewBatchLoader[T](DefaultBatchConfig())
	}

	l.log = log

	return l
}

// Load returns the records whose keyField value is in keys. Duplicate keys do
// not duplicate results; unknown keys are silently absent from the result.
// Keys must be scalar identifiers (strings, numbers, ObjectIDs); slice- or
// map-valued keys are rejected with ErrInvalidParams.
func (l *BatchLoader[T]) Load(ctx context.Context, coll Collection, keys []any, keyField string) (*LoadResult[T], error) {
	if l == nil {
		l = NewBatchLoader[T](DefaultBatchConfig())
	}

	if err := l.cfg.validate(); err != nil {
		return nil, fmt.Errorf("cannot batch load: %w", err)
	}
	if keyField == "" {
		return nil, fmt.Errorf("%w: empty key field", ErrInvalidParams)
	}
	for _, key := range keys {
		if key != nil && !reflect.TypeOf(key).Comparable() {
			return nil, fmt.Errorf("%w: key of type %T is not comparable", ErrInvalidParams, key)
		}
	}

	start := time.Now()

	keys = lo.Uniq(lo.Filter(keys, func(key any, _ int) bool {
		return key != nil
	}))
	if len(keys) == 0 {
		return &LoadResult[T]{
			Data:          make([]T, 0),
			ExecutionTime: time.Since(start),
			BatchInfo:     &BatchInfo{BatchSize: l.cfg.BatchSize},
		}, nil
	}

	cached, uncached, err := l.probeCache(ctx, coll, keys, keyField)
	if err != nil {
		return nil, err
	}

	chunks := lo.Chunk(uncached, l.cfg.BatchSize)
	fresh, err := l.loadChunks(ctx, coll, chunks, keyField)
	if err != nil {
		return nil, err
	}

	l.writeBack(ctx, coll, fresh, keyField)

	data := make([]T, 0, len(cached)+len(fresh))
	data = append(data, cached...)
	data = append(data, fresh...)

	return &LoadResult[T]{
		Data:          data,
		FromCache:     len(cached) > 0,
		ExecutionTime: time.Since(start),
		BatchInfo: &BatchInfo{
			BatchSize:  l.cfg.BatchSize,
			BatchCount: len(chunks),
			TotalItems: len(data),
		},
	}, nil
}

// probeCache partitions keys into cached records and cache misses. With
// caching disabled every key is a miss.
func (l *BatchLoader[T]) probeCache(ctx context.Context, coll Collection, keys []any, keyField string) ([]T, []any, error) {
	if !l.cfg.CacheResults || l.cache == nil {
		return nil, keys, nil
	}

	var (
		cached   []T
		uncached = make([]any, 0, len(keys))
	)
	for _, key := range keys {
		raw, ok, err := l.cache.Get(ctx, l.cacheKey(coll, keyField, key))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: cache get: %v", ErrQueryFailed, err)
		}
		if !ok {
			uncached = append(uncached, key)
			continue
		}

		var record T
		if err := json.Unmarshal(raw, &record); err != nil {
			// Undecodable entry counts as a miss, it will be overwritten.
			l.log.Warn().Err(err).Str("collection", coll.Name()).Msg("dropping undecodable cache entry")
			uncached = append(uncached, key)
			continue
		}

		cached = append(cached, record)
	}

	return cached, uncached, nil
}

// loadChunks runs the chunk queries in concurrency windows: windows
// sequentially, chunks within a window in parallel.
func (l *BatchLoader[T]) loadChunks(ctx context.Context, coll Collection, chunks [][]any, keyField string) ([]T, error) {
	var (
		fresh []T
		mu    sync.Mutex
	)

	for _, window := range lo.Chunk(chunks, l.cfg.MaxConcurrency) {
		g, gctx := errgroup.WithContext(ctx)

		for _, chunk := range window {
			chunk := chunk
			g.Go(func() error {
				var records []T
				filter := bson.M{keyField: bson.M{"$in": chunk}}
				if err := coll.Find(gctx, filter, nil, &records); err != nil {
					return fmt.Errorf("%w: batch find: %v", ErrQueryFailed, err)
				}

				mu.Lock()
				fresh = append(fresh, records...)
				mu.Unlock()

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return fresh, nil
}

// writeBack caches every freshly loaded record keyed by its own key-field
// value, so subsequent single-key lookups hit cache even if the original
// request batched many keys. Write failures are logged, not fatal.
func (l *BatchLoader[T]) writeBack(ctx context.Context, coll Collection, fresh []T, keyField string) {
	if !l.cfg.CacheResults || l.cache == nil {
		return
	}

	for _, record := range fresh {
		key := l.recordKey(record, keyField)
		if key == nil {
			continue
		}

		raw, err := json.Marshal(record)
		if err != nil {
			l.log.Warn().Err(err).Str("collection", coll.Name()).Msg("cannot marshal record for cache")
			continue
		}

		if err := l.cache.Set(ctx, l.cacheKey(coll, keyField, key), raw, l.cfg.CacheTTL); err != nil {
			l.log.Warn().Err(err).Str("collection", coll.Name()).Msg("cache write-back failed")
		}
	}
}

func (l *BatchLoader[T]) recordKey(record T, keyField string) any {
	if l.keyOf != nil {
		return l.keyOf(record)
	}

	if doc, ok := any(record).(bson.M); ok {
		return doc[keyField]
	}

	return nil
}

func (l *BatchLoader[T]) cacheKey(coll Collection, keyField string, key any) string {
	namespace := l.namespace
	if namespace == "" {
		namespace = coll.Name()
	}

	return fmt.Sprintf("%s:%s:%v", namespace, keyField, key)
}
