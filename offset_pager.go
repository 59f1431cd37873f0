package mongopager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// OffsetPager implements page/limit/skip pagination with a concurrent count
// query. For skips beyond PagerConfig.HighOffsetThreshold the exact count is
// replaced with the collection's approximate count, trading precision for
// latency.
type OffsetPager[T any] struct {
	cfg PagerConfig
	log zerolog.Logger
}

func NewOffsetPager[T any]() *OffsetPager[T] {
	return &OffsetPager[T]{
		cfg: DefaultPagerConfig(),
		log: zerolog.Nop(),
	}
}

// WithConfig replaces the pager configuration.
func (p *OffsetPager[T]) WithConfig(cfg PagerConfig) *OffsetPager[T] {
	if p == nil {
		p = NewOffsetPager[T]()
	}

	p.cfg = cfg

	return p
}

// WithLogger sets the logger used for deep-pagination warnings and
// degraded-precision notices.
func (p *OffsetPager[T]) WithLogger(log zerolog.Logger) *OffsetPager[T] {
	if p == nil {
		p = NewOffsetPager[T]()
	}

	p.log = log

	return p
}

// Paginate fetches the requested page and the total count concurrently.
//
// Page numbers beyond PagerConfig.DeepPageWarn produce a warning log entry
// (never a failure) signaling the caller should prefer cursor pagination.
func (p *OffsetPager[T]) Paginate(ctx context.Context, coll Collection, filter Expr, params Params) (*PaginationResult[T], error) {
	if p == nil {
		p = NewOffsetPager[T]()
	}

	params = params.normalized(p.cfg)
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	if params.Page > p.cfg.DeepPageWarn {
		p.log.Warn().
			Int("page", params.Page).
			Int("threshold", p.cfg.DeepPageWarn).
			Str("collection", coll.Name()).
			Msg("deep offset pagination, consider cursor pagination")
	}

	var (
		start      = time.Now()
		skip       = int64(params.Page-1) * int64(params.Limit)
		filterBSON = filterToBSON(filter)

		items []T
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		opts := &FindOptions{
			Sort:  params.Sort.ToBSON(),
			Skip:  skip,
			Limit: int64(params.Limit),
		}
		if err := coll.Find(gctx, filterBSON, opts, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}

		return nil
	})

	g.Go(func() error {
		var err error
		total, err = p.countTotal(gctx, coll, filterBSON, skip)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if items == nil {
		items = make([]T, 0)
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

// countTotal returns the exact count, or the collection's approximate count
// when the skip is past the high-offset threshold. The approximation is the
// full-collection total as reported by collection statistics, with no skip
// subtracted: Pagination.Total always means "matching documents", not
// "documents remaining". The approximation is a degraded-precision notice,
// not an error; it falls back to the exact count when statistics are
// unavailable.
func (p *OffsetPager[T]) countTotal(ctx context.Context, coll Collection, filter bson.M, skip int64) (int64, error) {
	if skip > p.cfg.HighOffsetThreshold {
		estimated, err := coll.EstimatedCount(ctx)
		if err == nil {
			p.log.Info().
				Int64("skip", skip).
				Int64("estimated_total", estimated).
				Str("collection", coll.Name()).
				Msg("using approximate count for deep offset")

			return estimated, nil
		}

		p.log.Warn().
			Err(err).
			Str("collection", coll.Name()).
			Msg("collection statistics unavailable, falling back to exact count")
	}

	return coll.Count(ctx, filter)
}

// totalPagesFor computes ceil(total/limit) with a minimum of one page.
func totalPagesFor(total int64, limit int) int {
	if total == 0 {
		return 1
	}

	return int((total + int64(limit) - 1) / int64(limit))
}
