package mongopager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Relation declares how a related collection attaches to primary documents.
type Relation struct {
	// From is the related collection name.
	From string
	// LocalField is the field on the primary document holding the key.
	LocalField string
	// ForeignField is the field on the related document the key matches.
	ForeignField string
	// As is the field on the primary document the related list attaches to.
	As string
	// JoinPipeline is an optional extra pipeline applied inside a $lookup
	// when the join strategy runs this relation.
	JoinPipeline mongo.Pipeline
	// PreserveEmptyMatches keeps primary documents with no related matches
	// in join-strategy results.
	PreserveEmptyMatches bool
	// CacheKey overrides the cache key namespace for the relation's batch
	// loads. Defaults to the related collection name.
	CacheKey string
	// CacheTTL, when positive, enables caching of the relation's batch loads
	// with this TTL.
	CacheTTL time.Duration
}

func (r Relation) validate() error {
	if r.From == "" || r.LocalField == "" || r.ForeignField == "" || r.As == "" {
		return fmt.Errorf("%w: relation requires from, localField, foreignField and as", ErrInvalidParams)
	}

	return nil
}

// Preloader enriches a list of primary documents with related documents via
// the BatchLoader, the N+1 avoidance path.
//
// Relations are processed sequentially (no cross-relation concurrency) to
// bound total simultaneous query pressure; the BatchLoader parallelizes
// within each relation.
type Preloader struct {
	store Store
	cache Cache
	cfg   BatchConfig
	log   zerolog.Logger
}

func NewPreloader(store Store) *Preloader {
	return &Preloader{
		store: store,
		cfg:   DefaultBatchConfig(),
		log:   zerolog.Nop(),
	}
}

// WithCache attaches a cache used by the per-relation batch loads.
func (p *Preloader) WithCache(cache Cache) *Preloader {
	p.cache = cache
	return p
}

// WithConfig replaces the batch loading configuration.
func (p *Preloader) WithConfig(cfg BatchConfig) *Preloader {
	p.cfg = cfg
	return p
}

// WithLogger sets the logger used for relation failure isolation.
func (p *Preloader) WithLogger(log zerolog.Logger) *Preloader {
	p.log = log
	return p
}

// Preload attaches related documents to every record for each declared
// relation. Records are modified in place and returned.
//
// Failure semantics differ from the BatchLoader's on purpose: a relation
// whose load fails is logged and skipped, other relations and the base
// records still complete. Invalid relation configs are rejected before any
// I/O.
func (p *Preloader) Preload(ctx context.Context, records []bson.M, relations ...Relation) ([]bson.M, error) {
	for _, relation := range relations {
		if err := relation.validate(); err != nil {
			return nil, fmt.Errorf("cannot preload: %w", err)
		}
	}

	if len(records) == 0 {
		return records, nil
	}

	for _, relation := range relations {
		if err := p.preloadOne(ctx, records, relation); err != nil {
			p.log.Error().
				Err(fmt.Errorf("%w: %v", ErrRelationLoad, err)).
				Str("relation", relation.As).
				Str("from", relation.From).
				Msg("relation load failed, skipping relation")
		}
	}

	return records, nil
}

func (p *Preloader) preloadOne(ctx context.Context, records []bson.M, relation Relation) error {
	keys := relationKeys(records, relation.LocalField)
	if len(keys) == 0 {
		attachEmpty(records, relation.As)
		return nil
	}

	cfg := p.cfg
	if relation.CacheTTL > 0 {
		cfg.CacheResults = true
		cfg.CacheTTL = relation.CacheTTL
	}

	loaded, err := NewBatchLoader[bson.M](cfg).
		WithCache(p.cache).
		WithCacheNamespace(relation.CacheKey).
		WithLogger(p.log).
		Load(ctx, p.store.Collection(relation.From), keys, relation.ForeignField)
	if err != nil {
		return err
	}

	// One-to-many lookup: foreign field value -> matching related documents.
	groups := make(map[string][]bson.M, len(loaded.Data))
	for _, related := range loaded.Data {
		groupKey := lookupKey(related[relation.ForeignField])
		groups[groupKey] = append(groups[groupKey], related)
	}

	for _, record := range records {
		matches := make([]bson.M, 0)
		for _, key := range localKeys(record[relation.LocalField]) {
			matches = append(matches, groups[lookupKey(key)]...)
		}

		record[relation.As] = matches
	}

	return nil
}

// relationKeys collects the distinct non-null local-field values across all
// records. Array-valued fields contribute each element.
func relationKeys(records []bson.M, localField string) []any {
	keys := make([]any, 0, len(records))
	for _, record := range records {
		keys = append(keys, localKeys(record[localField])...)
	}

	return lo.UniqBy(keys, lookupKey)
}

func localKeys(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case bson.A:
		return lo.Filter(v, func(item any, _ int) bool { return item != nil })
	case []any:
		return lo.Filter(v, func(item any, _ int) bool { return item != nil })
	default:
		return []any{v}
	}
}

// lookupKey normalizes a key value for map grouping, smoothing over numeric
// type differences between decoded documents.
func lookupKey(value any) string {
	return fmt.Sprintf("%v", value)
}

func attachEmpty(records []bson.M, as string) {
	for _, record := range records {
		record[as] = make([]bson.M, 0)
	}
}
