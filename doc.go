// Package mongopager provides pagination and relation-loading primitives for
// MongoDB-style document stores.
//
// Overview
//
// mongopager implements three pagination strategies:
//   - OffsetPager: classic page/limit pagination with a concurrent count query
//     and an approximate-count fallback for deep offsets.
//   - CursorPager: keyset pagination using comparison operators against the
//     last element of the previous page. This scales well on large datasets and
//     requires a deterministic ordering with at least one unique field.
//   - AggregationPager: pagination over a caller-supplied aggregation pipeline
//     using a single $facet round trip for both data and count.
//
// On top of the pagers, the package implements the dataloader pattern:
//   - BatchLoader: collapses many single-key lookups into bounded-size
//     "$in" batches executed with bounded concurrency, optionally backed by a
//     cache with per-key write-back.
//   - Preloader: enriches a list of primary documents with related documents
//     across one or more declared relations, isolating failures per relation.
//   - Optimizer: scores query complexity and picks between a single $lookup
//     join pipeline and batch loading.
//
// Key concepts
//   - Selector: picks offset vs cursor pagination based on cursor presence and
//     page depth.
//   - Orderings: defines multi-field ordering with explicit directions.
//   - Getters: maps document fields to values for building the next page cursor.
//   - Expr: a closed filter expression tree rendered to bson and analyzable by
//     the complexity scorer.
package mongopager
