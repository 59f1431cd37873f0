package mongopager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

// PageDirection defines the traversal direction for cursor pagination.
type PageDirection string

const (
	PageForward  PageDirection = "forward"
	PageBackward PageDirection = "backward"
)

func (d PageDirection) Valid() bool {
	return d == PageForward || d == PageBackward
}

// DefaultIDField is the unique tie-breaking field appended to the sort spec
// when the caller's sort lacks one.
const DefaultIDField = "_id"

// CursorPager implements keyset pagination over a document collection. It
// fetches limit+1 records to detect the next page without a count query.
type CursorPager[T any] struct {
	limit     int
	cursor    *Cursor
	sort      Orderings
	direction PageDirection
	idField   string
	getters   Getters[T]
	log       zerolog.Logger
}

func NewCursorPager[T any]() *CursorPager[T] {
	return &CursorPager[T]{
		direction: PageForward,
		idField:   DefaultIDField,
		log:       zerolog.Nop(),
	}
}

// DecodeCursorPager decodes a cursor token into *CursorPager.
func DecodeCursorPager[T any](limit int, rawStartToken string, orderBy ...OrderBy) (*CursorPager[T], error) {
	cursor, err := DecodeCursor(rawStartToken)
	if err != nil {
		return nil, err
	}

	return NewCursorPager[T]().
		WithCursor(cursor).
		WithSubstitutedSort(orderBy...).
		WithLimit(limit), nil
}

// WithLimit sets the maximum number of returned records. The limit is
// normalized to [MinLimit, MaxLimit].
func (c *CursorPager[T]) WithLimit(limit int) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.limit = NormalizeLimit(limit)

	return c
}

// WithCursor sets the cursor explicitly.
func (c *CursorPager[T]) WithCursor(cursor *Cursor) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.cursor = cursor

	return c
}

// WithDirection sets the traversal direction. PageBackward walks the dataset
// against the sort order; results are returned in the requested order.
func (c *CursorPager[T]) WithDirection(direction PageDirection) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.direction = direction

	return c
}

// WithIDField sets the unique tie-breaking field. It is appended to the sort
// spec (ascending) when the caller's sort lacks it.
func (c *CursorPager[T]) WithIDField(field string) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.idField = field

	return c
}

// WithGetters sets the field getters used to build next/prev page cursors.
// bson.M records need no getters, fields are read directly.
func (c *CursorPager[T]) WithGetters(getters Getters[T]) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.getters = getters

	return c
}

// WithLogger sets the logger.
func (c *CursorPager[T]) WithLogger(log zerolog.Logger) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.log = log

	return c
}

// WithSubstitutedSort resets previous orderings and applies the provided ones.
func (c *CursorPager[T]) WithSubstitutedSort(orderBy ...OrderBy) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	c.sort = nil

	return c.WithSort(orderBy...)
}

// WithSort appends sort orderings without overwriting existing ones.
// Order is preserved as if calling:
//
//	OrderBy(o1).ThenBy(o2).ThenBy(o3)...
func (c *CursorPager[T]) WithSort(orderBy ...OrderBy) *CursorPager[T] {
	if c == nil {
		c = NewCursorPager[T]()
	}

	for _, o := range orderBy {
		idx := slices.IndexFunc(c.sort, func(processed OrderBy) bool {
			return processed.Field == o.Field
		})

		// Remove previous occurrence (avoid duplication).
		if idx != -1 {
			c.sort = slices.Delete(c.sort, idx, idx+1)
		}

		c.sort = append(c.sort, o)
	}

	return c
}

// GetSort returns orderings that will be applied to the dataset, including
// the tie-breaking id field.
func (c *CursorPager[T]) GetSort() Orderings {
	if c == nil {
		return nil
	}

	return c.effectiveSort()
}

// GetLimit returns the limit as it is stored in CursorPager.
func (c *CursorPager[T]) GetLimit() int {
	if c == nil {
		return 0
	}

	return c.limit
}

// GetCursor returns the cursor stored in CursorPager as-is.
func (c *CursorPager[T]) GetCursor() *Cursor {
	if c == nil {
		return nil
	}

	return c.cursor
}

// effectiveSort returns the configured sort with the unique id field appended
// as a tie-breaker when missing.
func (c *CursorPager[T]) effectiveSort() Orderings {
	if c.idField == "" || c.sort.contains(c.idField) {
		return c.sort
	}

	return append(slices.Clone(c.sort), OrderBy{Field: c.idField, Direction: DirectionASC})
}

func (c *CursorPager[T]) validate(sort Orderings) error {
	if c == nil {
		return fmt.Errorf("cursor pager is nil")
	}

	if !c.direction.Valid() {
		return fmt.Errorf("%w: invalid page direction '%s'", ErrInvalidParams, c.direction)
	}

	err := sort.validate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return c.cursor.validate(sort)
}

// Paginate fetches one page of the dataset.
//
// For a single sort field the cursor expands to a strict comparison; for
// multiple sort fields it expands to a disjunction of conjunctions
// implementing lexicographic tie-breaking. Either way the query cost is
// O(limit) regardless of position in the dataset.
func (c *CursorPager[T]) Paginate(ctx context.Context, coll Collection, filter Expr) (*CursorPaginationResult[T], error) {
	if c == nil {
		c = NewCursorPager[T]()
	}

	start := time.Now()

	sort := c.effectiveSort()
	if err := c.validate(sort); err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	var (
		limit    = NormalizeLimit(c.limit)
		backward = c.direction == PageBackward

		querySort   = sort
		queryCursor = c.cursor
	)
	if backward {
		querySort = sort.inverted()
		queryCursor = c.cursor.inverted()
	}

	queryFilter := combineFilters(filterToBSON(filter), queryCursor.ToBSON())

	// Fetch one extra record to determine whether there is a page beyond
	// this one, without a separate count query.
	var fetched []T
	opts := &FindOptions{
		Sort:  querySort.ToBSON(),
		Limit: int64(limit + 1),
	}
	if err := coll.Find(ctx, queryFilter, opts, &fetched); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	lookahead := len(fetched) > limit
	if lookahead {
		fetched = fetched[:limit]
	}

	items := fetched
	if backward {
		items = lo.Reverse(items)
	}

	var hasNext, hasPrev bool
	if backward {
		hasPrev = lookahead
		hasNext = !c.cursor.IsEmpty()
	} else {
		hasNext = lookahead
		hasPrev = !c.cursor.IsEmpty()
	}

	var nextToken, prevToken string
	if hasNext && len(items) > 0 {
		next, err := NextPageCursor(items, sort, c.getters)
		if err != nil {
			return nil, fmt.Errorf("cannot build next page cursor: %w", err)
		}
		nextToken = next.String()
	}
	if hasPrev && len(items) > 0 {
		prev, err := PrevPageCursor(items, sort, c.getters)
		if err != nil {
			return nil, fmt.Errorf("cannot build prev page cursor: %w", err)
		}
		prevToken = prev.String()
	}

	if items == nil {
		items = make([]T, 0)
	}

	return &CursorPaginationResult[T]{
		Data: items,
		Pagination: CursorPageInfo{
			Limit:      limit,
			HasNext:    hasNext,
			HasPrev:    hasPrev,
			NextCursor: nextToken,
			PrevCursor: prevToken,
		},
		Performance: Performance{
			ExecutionTime:     time.Since(start),
			DocumentsExamined: int64(len(items)),
			IndexUsed:         true,
		},
	}, nil
}

// combineFilters joins the caller filter with the cursor condition. Either
// side may be empty.
func combineFilters(filter, cursorCond bson.M) bson.M {
	switch {
	case cursorCond == nil:
		return filter
	case len(filter) == 0:
		return cursorCond
	default:
		return bson.M{"$and": []bson.M{filter, cursorCond}}
	}
}
