package mongopager

import (
	"fmt"
	"net/url"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// PagerConfig holds pagination tuning knobs. The zero value is unusable, use
// DefaultPagerConfig.
type PagerConfig struct {
	// MaxLimit is the upper bound the requested limit is clamped to.
	MaxLimit int
	// DefaultLimit is used when the request carries no limit at all.
	DefaultLimit int
	// HighOffsetThreshold is the skip depth beyond which the offset pager
	// trades an exact count for the collection's approximate count.
	HighOffsetThreshold int64
	// DeepPageWarn is the page number beyond which the offset pager logs a
	// deep-pagination warning. Kept independent from
	// StrategyConfig.CursorPreferPage on purpose.
	DeepPageWarn int
}

func DefaultPagerConfig() PagerConfig {
	return PagerConfig{
		MaxLimit:            MaxLimit,
		DefaultLimit:        DefaultLimit,
		HighOffsetThreshold: 10_000,
		DeepPageWarn:        100,
	}
}

// Params holds offset-pagination parameters, typically parsed from URL query
// parameters.
type Params struct {
	// Page - 1-based page number.
	Page int `json:"page"`
	// Limit - maximum number of records to return in the response. Clamped
	// to [MinLimit, PagerConfig.MaxLimit] before use.
	Limit int `json:"limit"`
	// Sort - ordered list of sort fields. Optional for offset pagination.
	Sort Orderings `json:"sort,omitempty"`
	// Cursor - base64-encoded cursor token obtained via Cursor.String().
	// When set, the strategy selector prefers cursor pagination.
	Cursor string `json:"cursor,omitempty"`
}

// normalized clamps the limit and returns the adjusted params.
func (p Params) normalized(cfg PagerConfig) Params {
	p.Limit = NormalizeLimitMax(p.Limit, cfg.MaxLimit)
	return p
}

// validate rejects params before any query is issued.
func (p Params) validate() error {
	if p.Page < 1 {
		return fmt.Errorf("%w: page must be a positive integer", ErrInvalidParams)
	}

	if len(p.Sort) > 0 {
		if err := p.Sort.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}

	return nil
}

// ParseQuery parses pagination parameters from URL query values:
//
//	page   - 1-based page number (default 1)
//	limit  - page size (default cfg.DefaultLimit, clamped to cfg.MaxLimit)
//	sort   - repeatable "alias asc|desc" entries resolved via fieldMapping
//	cursor - opaque cursor token
//
// Returns an error if a parameter is present but invalid.
func ParseQuery(values url.Values, cfg PagerConfig, fieldMapping FieldMapping) (Params, error) {
	params := Params{
		Page:   1,
		Limit:  cfg.DefaultLimit,
		Cursor: values.Get("cursor"),
	}

	if pageStr := values.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return params, fmt.Errorf("%w: page must be a positive integer", ErrInvalidParams)
		}
		params.Page = page
	}

	if limitStr := values.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return params, fmt.Errorf("%w: limit must be an integer", ErrInvalidParams)
		}
		params.Limit = NormalizeLimitMax(limit, cfg.MaxLimit)
	}

	if sortStrs, ok := values["sort"]; ok {
		sort, err := ParseSort(sortStrs, fieldMapping)
		if err != nil {
			return params, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		params.Sort = sort
	}

	return params, nil
}

// RawCursorPager is intended for API payloads. For proper code generation,
// inline it:
//
//	type MyFilter struct {
//	    Paging RawCursorPager `json:",inline"`
//	}
type RawCursorPager struct {
	// Limit - maximum number of records to return in the response.
	Limit int `json:"limit"`
	// StartToken - base64-encoded cursor token obtained via Cursor.String().
	// If empty, the first page with Limit records is returned.
	StartToken string `json:"startToken"`
}

// Decode converts RawCursorPager into *CursorPager over raw documents,
// normalizing Limit and validating StartToken. Returns *CursorPager with
// WithSort applied.
func (p RawCursorPager) Decode(orderBy ...OrderBy) (*CursorPager[bson.M], error) {
	return DecodeCursorPager[bson.M](p.Limit, p.StartToken, orderBy...)
}
