package mongopager

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeCollection is an in-memory Collection double. It records every issued
// query and evaluates filters against its documents, so tests can assert on
// both the query the pager builds and the page it produces.
type fakeCollection struct {
	name string
	docs []bson.M

	findErr      error
	countErr     error
	aggErr       error
	estimated    int64
	estimatedErr error

	// aggResult, when set, is returned from Aggregate verbatim instead of
	// evaluating the pipeline.
	aggResult []bson.M

	mu         sync.Mutex
	finds      []fakeFind
	counts     []bson.M
	aggregates []mongo.Pipeline
	estimates  int
}

type fakeFind struct {
	Filter bson.M
	Opts   *FindOptions
}

func newFakeCollection(name string, docs ...bson.M) *fakeCollection {
	return &fakeCollection{name: name, docs: docs}
}

func (f *fakeCollection) Name() string { return f.name }

func (f *fakeCollection) Find(_ context.Context, filter bson.M, opts *FindOptions, dest any) error {
	f.mu.Lock()
	f.finds = append(f.finds, fakeFind{Filter: filter, Opts: opts})
	f.mu.Unlock()

	if f.findErr != nil {
		return f.findErr
	}

	matched := filterDocs(f.docs, filter)
	if opts != nil {
		if len(opts.Sort) > 0 {
			sortDocs(matched, opts.Sort)
		}
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(matched)) {
				matched = nil
			} else {
				matched = matched[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
			matched = matched[:opts.Limit]
		}
	}

	return copyDocs(matched, dest)
}

func (f *fakeCollection) Count(_ context.Context, filter bson.M) (int64, error) {
	f.mu.Lock()
	f.counts = append(f.counts, filter)
	f.mu.Unlock()

	if f.countErr != nil {
		return 0, f.countErr
	}

	return int64(len(filterDocs(f.docs, filter))), nil
}

func (f *fakeCollection) EstimatedCount(_ context.Context) (int64, error) {
	f.mu.Lock()
	f.estimates++
	f.mu.Unlock()

	if f.estimatedErr != nil {
		return 0, f.estimatedErr
	}

	return f.estimated, nil
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline mongo.Pipeline, dest any) error {
	f.mu.Lock()
	f.aggregates = append(f.aggregates, pipeline)
	f.mu.Unlock()

	if f.aggErr != nil {
		return f.aggErr
	}
	if f.aggResult != nil {
		return copyDocs(f.aggResult, dest)
	}

	docs := append([]bson.M(nil), f.docs...)
	for _, stage := range pipeline {
		var err error
		docs, err = applyStage(docs, stage)
		if err != nil {
			return err
		}
	}

	return copyDocs(docs, dest)
}

func (f *fakeCollection) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.finds)
}

// fakeStore resolves fakeCollections by name, creating empty ones on demand.
type fakeStore struct {
	mu    sync.Mutex
	colls map[string]*fakeCollection
}

func newFakeStore(colls ...*fakeCollection) *fakeStore {
	s := &fakeStore{colls: make(map[string]*fakeCollection)}
	for _, coll := range colls {
		s.colls[coll.name] = coll
	}

	return s
}

func (s *fakeStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.colls[name]; ok {
		return coll
	}
	coll := newFakeCollection(name)
	s.colls[name] = coll

	return coll
}

// fakeCache is an in-memory Cache double.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	gets   int
	sets   int
	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}

	value, ok := c.data[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	if c.setErr != nil {
		return c.setErr
	}

	c.data[key] = value
	c.ttls[key] = ttl

	return nil
}

// copyDocs decodes documents into dest (a pointer to a slice) through a bson
// round trip, matching what the driver does.
func copyDocs(docs []bson.M, dest any) error {
	slice := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(slice.Type(), 0, len(docs))

	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return err
		}

		elem := reflect.New(slice.Type().Elem())
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}

		out = reflect.Append(out, elem.Elem())
	}

	slice.Set(out)

	return nil
}

func filterDocs(docs []bson.M, filter bson.M) []bson.M {
	matched := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		if matchDoc(doc, filter) {
			matched = append(matched, doc)
		}
	}

	return matched
}

func matchDoc(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range asFilterList(cond) {
				if !matchDoc(doc, sub) {
					return false
				}
			}
		case "$or":
			matchedAny := false
			for _, sub := range asFilterList(cond) {
				if matchDoc(doc, sub) {
					matchedAny = true
					break
				}
			}
			if !matchedAny {
				return false
			}
		default:
			if !matchField(doc[key], cond) {
				return false
			}
		}
	}

	return true
}

func matchField(value, cond any) bool {
	operators, ok := cond.(bson.M)
	if !ok {
		return valuesEqual(value, cond)
	}

	for op, operand := range operators {
		if !matchOperator(value, op, operand) {
			return false
		}
	}

	return true
}

func matchOperator(value any, op string, operand any) bool {
	switch op {
	case "$eq":
		return valuesEqual(value, operand)
	case "$ne":
		return !valuesEqual(value, operand)
	case "$in":
		for _, item := range asValueList(operand) {
			if valuesEqual(value, item) {
				return true
			}
		}
		return false
	case "$gt":
		cmp, ok := compareValues(value, operand)
		return ok && cmp > 0
	case "$gte":
		cmp, ok := compareValues(value, operand)
		return ok && cmp >= 0
	case "$lt":
		cmp, ok := compareValues(value, operand)
		return ok && cmp < 0
	case "$lte":
		cmp, ok := compareValues(value, operand)
		return ok && cmp <= 0
	default:
		panic(fmt.Errorf("fake collection does not support operator '%s'", op))
	}
}

func asFilterList(value any) []bson.M {
	switch v := value.(type) {
	case []bson.M:
		return v
	case bson.A:
		ret := make([]bson.M, 0, len(v))
		for _, item := range v {
			ret = append(ret, item.(bson.M))
		}
		return ret
	case []any:
		ret := make([]bson.M, 0, len(v))
		for _, item := range v {
			ret = append(ret, item.(bson.M))
		}
		return ret
	default:
		panic(fmt.Errorf("fake collection cannot interpret '%T' as filter list", value))
	}
}

func asValueList(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case bson.A:
		return v
	default:
		panic(fmt.Errorf("fake collection cannot interpret '%T' as value list", value))
	}
}

func valuesEqual(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders numbers, strings and timestamps, smoothing over the
// type changes a bson or json round trip introduces.
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if at, aok := toTime(a); aok {
		bt, bok := toTime(b)
		if !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}

	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return float64(v), true
	default:
		return 0, false
	}
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case primitive.DateTime:
		return v.Time(), true
	default:
		return time.Time{}, false
	}
}

func sortDocs(docs []bson.M, sortSpec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range sortSpec {
			cmp, ok := compareValues(docs[i][field.Key], docs[j][field.Key])
			if !ok || cmp == 0 {
				continue
			}

			if asc, _ := toFloat(field.Value); asc < 0 {
				return cmp > 0
			}
			return cmp < 0
		}

		return false
	})
}

func applyStage(docs []bson.M, stage bson.D) ([]bson.M, error) {
	if len(stage) != 1 {
		return nil, fmt.Errorf("fake collection expects single-element stages, got %d", len(stage))
	}

	name, value := stage[0].Key, stage[0].Value
	switch name {
	case "$match":
		return filterDocs(docs, value.(bson.M)), nil
	case "$sort":
		sortDocs(docs, value.(bson.D))
		return docs, nil
	case "$facet":
		return applyFacet(docs, value.(bson.M))
	default:
		return nil, fmt.Errorf("fake collection does not support stage '%s'", name)
	}
}

func applyFacet(docs []bson.M, branches bson.M) ([]bson.M, error) {
	result := bson.M{}
	for branch, stages := range branches {
		branchDocs := append([]bson.M(nil), docs...)

		for _, rawStage := range stages.([]bson.M) {
			for name, value := range rawStage {
				switch name {
				case "$skip":
					skip, _ := toFloat(value)
					if int64(skip) >= int64(len(branchDocs)) {
						branchDocs = nil
					} else {
						branchDocs = branchDocs[int64(skip):]
					}
				case "$limit":
					limit, _ := toFloat(value)
					if int64(len(branchDocs)) > int64(limit) {
						branchDocs = branchDocs[:int64(limit)]
					}
				case "$count":
					branchDocs = []bson.M{{value.(string): len(branchDocs)}}
				default:
					return nil, fmt.Errorf("fake collection does not support facet stage '%s'", name)
				}
			}
		}

		result[branch] = branchDocs
	}

	return []bson.M{result}, nil
}

var (
	_ Collection = (*fakeCollection)(nil)
	_ Store      = (*fakeStore)(nil)
	_ Cache      = (*fakeCache)(nil)
)
