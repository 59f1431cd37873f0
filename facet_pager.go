package mongopager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AggregationPager paginates over a caller-supplied aggregation pipeline.
// The pipeline is forked into two named branches executed as a single
// combined operation: one applies skip+limit to produce the page, the other
// collapses to a count. This avoids two round trips at the cost of processing
// the pre-skip pipeline twice server-side.
type AggregationPager[T any] struct {
	cfg PagerConfig
	log zerolog.Logger
}

func NewAggregationPager[T any]() *AggregationPager[T] {
	return &AggregationPager[T]{
		cfg: DefaultPagerConfig(),
		log: zerolog.Nop(),
	}
}

// WithConfig replaces the pager configuration.
func (p *AggregationPager[T]) WithConfig(cfg PagerConfig) *AggregationPager[T] {
	if p == nil {
		p = NewAggregationPager[T]()
	}

	p.cfg = cfg

	return p
}

// WithLogger sets the logger.
func (p *AggregationPager[T]) WithLogger(log zerolog.Logger) *AggregationPager[T] {
	if p == nil {
		p = NewAggregationPager[T]()
	}

	p.log = log

	return p
}

// facetPage is the shape of the single document produced by the forked
// pipeline.
type facetPage struct {
	Data       []bson.Raw `bson:"data"`
	TotalCount []struct {
		Count int64 `bson:"count"`
	} `bson:"totalCount"`
}

// Paginate appends the sort from params to the pipeline, forks it with
// $facet and decodes both branches from the single result document.
func (p *AggregationPager[T]) Paginate(ctx context.Context, coll Collection, pipeline mongo.Pipeline, params Params) (*PaginationResult[T], error) {
	if p == nil {
		p = NewAggregationPager[T]()
	}

	params = params.normalized(p.cfg)
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	var (
		start = time.Now()
		skip  = int64(params.Page-1) * int64(params.Limit)
	)

	forked := make(mongo.Pipeline, 0, len(pipeline)+2)
	forked = append(forked, pipeline...)
	if len(params.Sort) > 0 {
		forked = append(forked, bson.D{{Key: "$sort", Value: params.Sort.ToBSON()}})
	}
	forked = append(forked, bson.D{{Key: "$facet", Value: bson.M{
		"data": []bson.M{
			{"$skip": skip},
			{"$limit": int64(params.Limit)},
		},
		"totalCount": []bson.M{
			{"$count": "count"},
		},
	}}})

	var pages []facetPage
	if err := coll.Aggregate(ctx, forked, &pages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	items := make([]T, 0)
	var total int64
	if len(pages) > 0 {
		page := pages[0]

		for _, raw := range page.Data {
			var item T
			if err := bson.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("%w: decode aggregation result: %v", ErrQueryFailed, err)
			}
			items = append(items, item)
		}

		if len(page.TotalCount) > 0 {
			total = page.TotalCount[0].Count
		}
	}

	totalPages := totalPagesFor(total, params.Limit)

	return &PaginationResult[T]{
		Data: items,
		Pagination: PageInfo{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    params.Page < totalPages,
			HasPrev:    params.Page > 1,
		},
		Performance: Performance{
			ExecutionTime:     time.Since(start),
			DocumentsExamined: int64(len(items)),
			IndexUsed:         len(params.Sort) > 0,
		},
	}, nil
}
