package mongopager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// RelationStrategy names the relation-loading strategy the optimizer picked.
type RelationStrategy string

const (
	// RelationStrategyJoin runs a single aggregation pipeline with one
	// $lookup stage per relation.
	RelationStrategyJoin RelationStrategy = "join"
	// RelationStrategyBatch fetches primary documents and enriches them via
	// the Preloader.
	RelationStrategyBatch RelationStrategy = "batch"
)

// OptimizerConfig holds the complexity scoring weights and thresholds. The
// defaults are empirical; treat them as tunables, not derived constants.
type OptimizerConfig struct {
	// Cutoff is the complexity score above which the batch strategy runs.
	Cutoff float64
	// RelationWeight is added when the relation count exceeds
	// RelationThreshold.
	RelationWeight float64
	// PipelineWeight is added when any join pipeline exceeds
	// PipelineStageThreshold stages.
	PipelineWeight float64
	// FilterWeight scales the filter nesting/operator-density contribution.
	FilterWeight float64
	// ArrayFieldWeight is added when any join field is path-valued.
	ArrayFieldWeight float64

	RelationThreshold      int
	PipelineStageThreshold int

	// Batch configures the batch strategy and the join-result cache TTL.
	Batch BatchConfig
}

func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Cutoff:                 0.7,
		RelationWeight:         0.3,
		PipelineWeight:         0.2,
		FilterWeight:           0.3,
		ArrayFieldWeight:       0.2,
		RelationThreshold:      2,
		PipelineStageThreshold: 2,
		Batch:                  DefaultBatchConfig(),
	}
}

// RelationQueryResult is the outcome of a smart relation query.
type RelationQueryResult struct {
	Strategy      RelationStrategy `json:"strategy"`
	Score         float64          `json:"score"`
	Data          []bson.M         `json:"data"`
	FromCache     bool             `json:"from_cache"`
	ExecutionTime time.Duration    `json:"execution_time_ms"`
}

// Optimizer decides between join and batch relation loading. Joins are cheap
// for small fan-out and few relations but degrade with multiple large joins;
// per-item batch loading parallelizes and caches better at scale.
type Optimizer struct {
	store Store
	cache Cache
	cfg   OptimizerConfig
	log   zerolog.Logger
}

func NewOptimizer(store Store) *Optimizer {
	return &Optimizer{
		store: store,
		cfg:   DefaultOptimizerConfig(),
		log:   zerolog.Nop(),
	}
}

// WithCache attaches a cache for join-pipeline results and batch loads.
func (o *Optimizer) WithCache(cache Cache) *Optimizer {
	o.cache = cache
	return o
}

// WithConfig replaces the scoring configuration.
func (o *Optimizer) WithConfig(cfg OptimizerConfig) *Optimizer {
	o.cfg = cfg
	return o
}

// WithLogger sets the logger.
func (o *Optimizer) WithLogger(log zerolog.Logger) *Optimizer {
	o.log = log
	return o
}

// ComplexityScore estimates query complexity in [0, 1] from the relation
// declarations and the filter shape.
func (o *Optimizer) ComplexityScore(filter Expr, relations []Relation) float64 {
	score := 0.0

	if len(relations) > o.cfg.RelationThreshold {
		score += o.cfg.RelationWeight
	}

	if lo.SomeBy(relations, func(r Relation) bool {
		return len(r.JoinPipeline) > o.cfg.PipelineStageThreshold
	}) {
		score += o.cfg.PipelineWeight
	}

	score += o.cfg.FilterWeight * filterComplexity(filter)

	if lo.SomeBy(relations, func(r Relation) bool {
		return strings.Contains(r.LocalField, ".") || strings.Contains(r.ForeignField, ".")
	}) {
		score += o.cfg.ArrayFieldWeight
	}

	return min(score, 1)
}

// filterComplexity maps filter nesting depth and operator density to [0, 1].
func filterComplexity(filter Expr) float64 {
	if filter == nil {
		return 0
	}

	depthPart := min(float64(filter.depth()-1)/3, 1)
	densityPart := min(float64(filter.operators())/8, 1)

	return (depthPart + densityPart) / 2
}

// SmartRelationQuery loads primary documents with their relations using the
// strategy picked by the complexity score.
func (o *Optimizer) SmartRelationQuery(ctx context.Context, coll Collection, filter Expr, relations ...Relation) (*RelationQueryResult, error) {
	for _, relation := range relations {
		if err := relation.validate(); err != nil {
			return nil, fmt.Errorf("cannot run relation query: %w", err)
		}
	}

	start := time.Now()
	score := o.ComplexityScore(filter, relations)

	if score > o.cfg.Cutoff {
		o.log.Debug().Float64("score", score).Msg("complexity above cutoff, using batch strategy")
		return o.runBatch(ctx, coll, filter, relations, score, start)
	}

	o.log.Debug().Float64("score", score).Msg("complexity below cutoff, using join strategy")
	return o.runJoin(ctx, coll, filter, relations, score, start)
}

func (o *Optimizer) runBatch(ctx context.Context, coll Collection, filter Expr, relations []Relation, score float64, start time.Time) (*RelationQueryResult, error) {
	var primaries []bson.M
	if err := coll.Find(ctx, filterToBSON(filter), nil, &primaries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	enriched, err := NewPreloader(o.store).
		WithCache(o.cache).
		WithConfig(o.cfg.Batch).
		WithLogger(o.log).
		Preload(ctx, primaries, relations...)
	if err != nil {
		return nil, err
	}
	if enriched == nil {
		enriched = make([]bson.M, 0)
	}

	return &RelationQueryResult{
		Strategy:      RelationStrategyBatch,
		Score:         score,
		Data:          enriched,
		ExecutionTime: time.Since(start),
	}, nil
}

func (o *Optimizer) runJoin(ctx context.Context, coll Collection, filter Expr, relations []Relation, score float64, start time.Time) (*RelationQueryResult, error) {
	pipeline := o.joinPipeline(filter, relations)

	cacheKey, cacheable := o.pipelineCacheKey(coll, pipeline)
	if cacheable {
		raw, ok, err := o.cache.Get(ctx, cacheKey)
		if err != nil {
			return nil, fmt.Errorf("%w: cache get: %v", ErrQueryFailed, err)
		}
		if ok {
			var data []bson.M
			if err := json.Unmarshal(raw, &data); err == nil {
				return &RelationQueryResult{
					Strategy:      RelationStrategyJoin,
					Score:         score,
					Data:          data,
					FromCache:     true,
					ExecutionTime: time.Since(start),
				}, nil
			}

			o.log.Warn().Err(err).Msg("dropping undecodable join cache entry")
		}
	}

	var data []bson.M
	if err := coll.Aggregate(ctx, pipeline, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	if data == nil {
		data = make([]bson.M, 0)
	}

	if cacheable {
		if raw, err := json.Marshal(data); err == nil {
			if err := o.cache.Set(ctx, cacheKey, raw, o.cfg.Batch.CacheTTL); err != nil {
				o.log.Warn().Err(err).Msg("join cache write failed")
			}
		}
	}

	return &RelationQueryResult{
		Strategy:      RelationStrategyJoin,
		Score:         score,
		Data:          data,
		ExecutionTime: time.Since(start),
	}, nil
}

// joinPipeline builds the single-round-trip pipeline: an optional $match for
// the filter, then one $lookup per relation. Primary documents without
// matches are dropped unless the relation preserves them.
func (o *Optimizer) joinPipeline(filter Expr, relations []Relation) mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, 1+2*len(relations))

	if filter != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter.ToBSON()}})
	}

	for _, relation := range relations {
		lookup := bson.D{
			{Key: "from", Value: relation.From},
			{Key: "localField", Value: relation.LocalField},
			{Key: "foreignField", Value: relation.ForeignField},
			{Key: "as", Value: relation.As},
		}
		if len(relation.JoinPipeline) > 0 {
			lookup = append(lookup, bson.E{Key: "pipeline", Value: relation.JoinPipeline})
		}

		pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: lookup}})

		if !relation.PreserveEmptyMatches {
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
				relation.As: bson.M{"$ne": bson.A{}},
			}}})
		}
	}

	return pipeline
}

// pipelineCacheKey derives a cache key by hashing the serialized pipeline.
func (o *Optimizer) pipelineCacheKey(coll Collection, pipeline mongo.Pipeline) (string, bool) {
	if o.cache == nil {
		return "", false
	}

	raw, err := bson.MarshalExtJSON(bson.D{{Key: "pipeline", Value: pipeline}}, false, false)
	if err != nil {
		o.log.Warn().Err(err).Msg("cannot serialize pipeline for cache key")
		return "", false
	}

	return fmt.Sprintf("relquery:%s:%x", coll.Name(), xxhash.Sum64(raw)), true
}
