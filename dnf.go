package mongopager

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

type (
	tConjunct struct {
		Field    string
		Value    any
		Operator Operator
	}

	tDisjunct []tConjunct

	// tDNF represents the disjunctive normal form (DNF) of a logical expression.
	// Each disjunct is joined by OR, and each disjunct consists of a list of
	// conjuncts which are joined by AND. A conjunct is the value of
	// Operator(Field, Value).
	//
	// Thus:
	//
	//	DNF = X1 OR X2 ... OR Xn, where Xi = Ai1 AND Ai2 ... AND Aim.
	//	DNF = (A11 AND A12 AND A13) OR (A21 AND A22 AND A23), for n=2, m=3.
	//
	//  Where (A11 AND A12 AND A13), (A21 AND A22 AND A23) are disjuncts and
	//  A11, A12, A13, A21, A22, A23 are conjuncts.
	tDNF []tDisjunct
)

// toBSON converts a conjunct of the form Operator(Field, Value) into a
// document-store condition {Field: {$op: Value}}.
//
// Example:
//
//	tConjunct = { Field: "id", Operator: ">", Value: 123}
//
// Result:
//
//	{"id": {"$gt": 123}}
func (c tConjunct) toBSON() bson.M {
	return bson.M{c.Field: bson.M{c.Operator.mongo(): parseAnyValue(c.Value)}}
}

// parseAnyValue restores timestamp values flattened by the cursor's JSON
// round trip. A decoded token carries timestamps as RFC3339 strings, and a
// string bound against a Date-typed field never matches it, so strings that
// parse as time.Time are rebound as time.Time.
func parseAnyValue(v any) any {
	// Try parsing a value as time.Time. If it succeeds, return time.Time.
	// Otherwise return the original value.
	fnParseBytesToTimeOrValue := func(vBytes []byte) any {
		dst := time.Time{}
		err := dst.UnmarshalText(vBytes)
		if err == nil {
			return dst
		}

		return v
	}

	switch vt := v.(type) {
	case string:
		return fnParseBytesToTimeOrValue([]byte(vt))
	case []byte:
		return fnParseBytesToTimeOrValue(vt)
	default:
		return v
	}
}

// toBSON converts a disjunct (K1, K2, K3) into a condition
// {$and: [K1, K2, K3]} where each Ki is expanded via tConjunct.toBSON.
// A single-conjunct disjunct collapses to the conjunct itself.
func (d tDisjunct) toBSON() bson.M {
	if len(d) == 0 {
		return nil
	}
	if len(d) == 1 {
		return d[0].toBSON()
	}

	andConditions := make([]bson.M, 0, len(d))
	for _, conjunct := range d {
		andConditions = append(andConditions, conjunct.toBSON())
	}

	return bson.M{"$and": andConditions}
}

// toBSON converts a DNF (tDNF) into a condition {$or: [X1, X2, ...]}.
// For each disjunct it calls tDisjunct.toBSON and joins disjuncts with OR.
// A single-disjunct DNF collapses to the disjunct itself; an empty DNF
// renders to nil (no condition).
//
// Example:
//
//	tDNF = {
//		{{Field: "id", Operator: "<", Value: 10}},
//		{{Field: "id", Operator: "=", Value: 10}, {Field: "name", Operator: "<", Value: "abc"}},
//	}
//
// Result:
//
//	{"$or": [
//		{"id": {"$lt": 10}},
//		{"$and": [{"id": {"$eq": 10}}, {"name": {"$lt": "abc"}}]},
//	]}
func (d tDNF) toBSON() bson.M {
	orConditions := make([]bson.M, 0, len(d))

	for _, disjunct := range d {
		andConditions := disjunct.toBSON()
		if andConditions == nil {
			continue
		}

		orConditions = append(orConditions, andConditions)
	}

	if len(orConditions) == 1 {
		return orConditions[0]
	} else if len(orConditions) > 1 {
		return bson.M{"$or": orConditions}
	}

	return nil
}
