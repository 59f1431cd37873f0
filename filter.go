package mongopager

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Expr is a closed filter expression tree. Expressions render to bson for
// find filters and $match stages, and expose structural metrics for the
// relation optimizer's complexity scoring.
//
// A nil Expr matches every document.
type Expr interface {
	// ToBSON renders the expression as a document-store filter.
	ToBSON() bson.M

	depth() int
	operators() int
}

// Eq matches documents whose field equals the value.
type Eq struct {
	Field string
	Value any
}

func (e Eq) ToBSON() bson.M { return bson.M{e.Field: e.Value} }
func (e Eq) depth() int     { return 1 }
func (e Eq) operators() int { return 1 }

// Ne matches documents whose field does not equal the value.
type Ne struct {
	Field string
	Value any
}

func (e Ne) ToBSON() bson.M { return bson.M{e.Field: bson.M{"$ne": e.Value}} }
func (e Ne) depth() int     { return 1 }
func (e Ne) operators() int { return 1 }

// In matches documents whose field equals any of the values.
type In struct {
	Field  string
	Values []any
}

func (e In) ToBSON() bson.M { return bson.M{e.Field: bson.M{"$in": e.Values}} }
func (e In) depth() int     { return 1 }
func (e In) operators() int { return 1 }

// Range matches documents whose field lies within the set bounds.
// Unset (nil) bounds are omitted from the rendered filter.
type Range struct {
	Field string
	GT    any
	GTE   any
	LT    any
	LTE   any
}

func (e Range) ToBSON() bson.M {
	bounds := bson.M{}
	if e.GT != nil {
		bounds["$gt"] = e.GT
	}
	if e.GTE != nil {
		bounds["$gte"] = e.GTE
	}
	if e.LT != nil {
		bounds["$lt"] = e.LT
	}
	if e.LTE != nil {
		bounds["$lte"] = e.LTE
	}

	return bson.M{e.Field: bounds}
}

func (e Range) depth() int { return 1 }

func (e Range) operators() int {
	count := 0
	for _, bound := range []any{e.GT, e.GTE, e.LT, e.LTE} {
		if bound != nil {
			count++
		}
	}

	return count
}

// Regex matches documents whose field matches the pattern.
type Regex struct {
	Field   string
	Pattern string
	Options string
}

func (e Regex) ToBSON() bson.M {
	ret := bson.M{"$regex": e.Pattern}
	if e.Options != "" {
		ret["$options"] = e.Options
	}

	return bson.M{e.Field: ret}
}

func (e Regex) depth() int     { return 1 }
func (e Regex) operators() int { return 1 }

// And matches documents satisfying every child expression.
type And []Expr

func (e And) ToBSON() bson.M {
	return bson.M{"$and": childrenToBSON(e)}
}

func (e And) depth() int     { return 1 + childrenDepth(e) }
func (e And) operators() int { return 1 + childrenOperators(e) }

// Or matches documents satisfying at least one child expression.
type Or []Expr

func (e Or) ToBSON() bson.M {
	return bson.M{"$or": childrenToBSON(e)}
}

func (e Or) depth() int     { return 1 + childrenDepth(e) }
func (e Or) operators() int { return 1 + childrenOperators(e) }

func childrenToBSON(children []Expr) []bson.M {
	ret := make([]bson.M, 0, len(children))
	for _, child := range children {
		if child == nil {
			continue
		}

		ret = append(ret, child.ToBSON())
	}

	return ret
}

func childrenDepth(children []Expr) int {
	maxDepth := 0
	for _, child := range children {
		if child == nil {
			continue
		}

		if d := child.depth(); d > maxDepth {
			maxDepth = d
		}
	}

	return maxDepth
}

func childrenOperators(children []Expr) int {
	total := 0
	for _, child := range children {
		if child == nil {
			continue
		}

		total += child.operators()
	}

	return total
}

// filterToBSON renders an expression, treating nil as match-all.
func filterToBSON(filter Expr) bson.M {
	if filter == nil {
		return bson.M{}
	}

	return filter.ToBSON()
}

var (
	_ Expr = Eq{}
	_ Expr = Ne{}
	_ Expr = In{}
	_ Expr = Range{}
	_ Expr = Regex{}
	_ Expr = And{}
	_ Expr = Or{}
)
