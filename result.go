package mongopager

import "time"

// PageInfo holds offset-pagination metadata included in API responses.
type PageInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// CursorPageInfo holds cursor-pagination metadata. No totals are provided in
// this mode by design: cursor pagination trades counts for O(limit) cost
// independent of position.
type CursorPageInfo struct {
	Limit      int    `json:"limit"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
	NextCursor string `json:"next_cursor,omitempty"`
	PrevCursor string `json:"prev_cursor,omitempty"`
}

// Performance holds query execution diagnostics.
type Performance struct {
	ExecutionTime     time.Duration `json:"execution_time_ms"`
	DocumentsExamined int64         `json:"documents_examined"`
	IndexUsed         bool          `json:"index_used"`
}

// PaginationResult is a generic paginated result container for offset and
// aggregation pagination.
type PaginationResult[T any] struct {
	Data        []T         `json:"data"`
	Pagination  PageInfo    `json:"pagination"`
	Performance Performance `json:"performance"`
}

// CursorPaginationResult is a generic paginated result container for cursor
// pagination.
type CursorPaginationResult[T any] struct {
	Data        []T            `json:"data"`
	Pagination  CursorPageInfo `json:"pagination"`
	Performance Performance    `json:"performance"`
}

// BatchInfo describes how a batch load was split.
type BatchInfo struct {
	BatchSize  int `json:"batch_size"`
	BatchCount int `json:"batch_count"`
	TotalItems int `json:"total_items"`
}

// LoadResult is the result of a batch load.
type LoadResult[T any] struct {
	Data          []T           `json:"data"`
	FromCache     bool          `json:"from_cache"`
	ExecutionTime time.Duration `json:"execution_time_ms"`
	BatchInfo     *BatchInfo    `json:"batch_info,omitempty"`
}
