package mongopager

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Strategy names the pagination strategy the selector picked.
type Strategy string

const (
	StrategyOffset Strategy = "offset"
	StrategyCursor Strategy = "cursor"
)

// StrategyConfig holds the selector thresholds.
type StrategyConfig struct {
	// CursorPreferPage is the page depth beyond which the selector switches
	// to cursor pagination. Deliberately independent from
	// PagerConfig.DeepPageWarn.
	CursorPreferPage int
	// IDField is the unique field used for the synthesized default sort and
	// as the cursor tie-breaker.
	IDField string
}

func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		CursorPreferPage: 50,
		IDField:          DefaultIDField,
	}
}

// StrategyResult carries the result of whichever strategy ran. Exactly one of
// Offset/Cursor is set, matching Strategy.
type StrategyResult[T any] struct {
	Strategy Strategy
	Offset   *PaginationResult[T]
	Cursor   *CursorPaginationResult[T]
}

// Selector picks between offset and cursor pagination. Offset pagination's
// cost grows with skip; beyond a fixed depth the cursor strategy's O(limit)
// cost dominates.
type Selector[T any] struct {
	cfg      StrategyConfig
	pagerCfg PagerConfig
	getters  Getters[T]
	log      zerolog.Logger
}

func NewSelector[T any]() *Selector[T] {
	return &Selector[T]{
		cfg:      DefaultStrategyConfig(),
		pagerCfg: DefaultPagerConfig(),
		log:      zerolog.Nop(),
	}
}

// WithConfig replaces the selector thresholds.
func (s *Selector[T]) WithConfig(cfg StrategyConfig) *Selector[T] {
	if s == nil {
		s = NewSelector[T]()
	}

	s.cfg = cfg

	return s
}

// WithPagerConfig replaces the configuration passed down to the pagers.
func (s *Selector[T]) WithPagerConfig(cfg PagerConfig) *Selector[T] {
	if s == nil {
		s = NewSelector[T]()
	}

	s.pagerCfg = cfg

	return s
}

// WithGetters sets the field getters used by the cursor path.
func (s *Selector[T]) WithGetters(getters Getters[T]) *Selector[T] {
	if s == nil {
		s = NewSelector[T]()
	}

	s.getters = getters

	return s
}

// WithLogger sets the logger.
func (s *Selector[T]) WithLogger(log zerolog.Logger) *Selector[T] {
	if s == nil {
		s = NewSelector[T]()
	}

	s.log = log

	return s
}

// Pick returns the strategy for the given params without running a query.
func (s *Selector[T]) Pick(params Params) Strategy {
	if params.Cursor != "" || params.Page > s.cfg.CursorPreferPage {
		return StrategyCursor
	}

	return StrategyOffset
}

// Paginate delegates to the picked strategy. On the cursor path, cursor
// parameters are synthesized from Params, with a default sort on the unique
// id field when none was given.
func (s *Selector[T]) Paginate(ctx context.Context, coll Collection, filter Expr, params Params) (*StrategyResult[T], error) {
	if s == nil {
		s = NewSelector[T]()
	}

	strategy := s.Pick(params)
	s.log.Debug().
		Str("strategy", string(strategy)).
		Int("page", params.Page).
		Bool("cursor_set", params.Cursor != "").
		Msg("pagination strategy picked")

	switch strategy {
	case StrategyCursor:
		sort := params.Sort
		if len(sort) == 0 {
			sort = Orderings{{Field: s.cfg.IDField, Direction: DirectionASC}}
		}

		limit := NormalizeLimitMax(params.Limit, s.pagerCfg.MaxLimit)
		pager, err := DecodeCursorPager[T](limit, params.Cursor, sort...)
		if err != nil {
			return nil, err
		}

		result, err := pager.
			WithIDField(s.cfg.IDField).
			WithGetters(s.getters).
			WithLogger(s.log).
			Paginate(ctx, coll, filter)
		if err != nil {
			return nil, err
		}

		return &StrategyResult[T]{Strategy: StrategyCursor, Cursor: result}, nil

	case StrategyOffset:
		result, err := NewOffsetPager[T]().
			WithConfig(s.pagerCfg).
			WithLogger(s.log).
			Paginate(ctx, coll, filter, params)
		if err != nil {
			return nil, err
		}

		return &StrategyResult[T]{Strategy: StrategyOffset, Offset: result}, nil

	default:
		return nil, fmt.Errorf("unknown pagination strategy '%s'", strategy)
	}
}
